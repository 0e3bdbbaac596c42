package imah

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"

	"github.com/muurk/rotortool/internal/container"
	"github.com/muurk/rotortool/internal/integrity"
)

// PackChunk is one chunk to place into a packed container.
type PackChunk struct {
	ID       string // four-character chunk id
	Encrypt  bool
	LoadAddr uint32
	Data     []byte // payload; must be block-aligned when Encrypt
}

// PackOptions carries the header fields of a packed container.
type PackOptions struct {
	Model string

	// CipherSlot names the keyring AES key the scramble key is
	// wrapped with; empty means chunks are stored plain and
	// ScrambleKey is ignored.
	CipherSlot  string
	ScrambleKey [16]byte

	// AuthSlot, when set, reserves a zeroed signature block under
	// that key tag. Re-signing needs a private key this tool never
	// holds, so repacked images always re-extract with the signature
	// recorded as skipped or failed.
	AuthSlot      string
	SignatureSize int
}

// Pack builds a complete IMaH v1 container image.
func (d *Driver) Pack(opts PackOptions, chunks []PackChunk) ([]byte, error) {
	if len(chunks) > container.MaxSections {
		return nil, fmt.Errorf("cannot pack %d chunks, limit is %d", len(chunks), container.MaxSections)
	}
	if len(opts.Model) > 31 {
		return nil, fmt.Errorf("model must fit 31 bytes")
	}
	if opts.AuthSlot != "" && opts.SignatureSize <= 0 {
		return nil, fmt.Errorf("auth slot %q set without a signature size", opts.AuthSlot)
	}

	headerSize := fixedHeaderSize + len(chunks)*chunkEntrySize
	sigSize := 0
	if opts.AuthSlot != "" {
		sigSize = opts.SignatureSize
	}

	stored := make([][]byte, len(chunks))
	for i, c := range chunks {
		if len(c.ID) != 4 {
			return nil, fmt.Errorf("chunk %d: id %q is not four characters", i, c.ID)
		}
		if !c.Encrypt {
			stored[i] = c.Data
			continue
		}
		if opts.CipherSlot == "" {
			return nil, fmt.Errorf("chunk %q: encrypted chunk without a cipher slot", c.ID)
		}
		if len(c.Data)%aes.BlockSize != 0 {
			return nil, fmt.Errorf("chunk %q: encrypted payload length %d not block-aligned", c.ID, len(c.Data))
		}
		enc, err := integrity.EncryptCBC(c.Data, opts.ScrambleKey[:])
		if err != nil {
			return nil, fmt.Errorf("chunk %q: %w", c.ID, err)
		}
		stored[i] = enc
	}

	payloadSize := 0
	for _, data := range stored {
		payloadSize += len(data)
	}
	totalSize := headerSize + sigSize + payloadSize
	out := make([]byte, totalSize)

	copy(out[0:4], Magic[:])
	binary.LittleEndian.PutUint32(out[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(headerSize))
	binary.LittleEndian.PutUint32(out[12:16], uint32(sigSize))
	binary.LittleEndian.PutUint32(out[16:20], uint32(payloadSize))
	binary.LittleEndian.PutUint32(out[20:24], uint32(totalSize))
	if opts.AuthSlot != "" {
		copy(out[24:28], opts.AuthSlot)
	}
	if opts.CipherSlot != "" {
		kek, ok := d.ring.AES(opts.CipherSlot)
		if !ok {
			return nil, fmt.Errorf("cipher slot %q not in keyring", opts.CipherSlot)
		}
		wrapped, err := integrity.EncryptECBBlock(opts.ScrambleKey[:], kek)
		if err != nil {
			return nil, err
		}
		copy(out[28:32], opts.CipherSlot)
		copy(out[32:48], wrapped)
	}
	copy(out[48:80], opts.Model)
	binary.LittleEndian.PutUint32(out[80:84], uint32(len(chunks)))

	offset := 0
	for i, c := range chunks {
		raw := out[fixedHeaderSize+i*chunkEntrySize:]
		copy(raw[0:4], c.ID)
		binary.LittleEndian.PutUint32(raw[4:8], uint32(offset))
		binary.LittleEndian.PutUint32(raw[8:12], uint32(len(stored[i])))
		var attrib uint32
		if c.Encrypt {
			attrib |= attribEncrypted
		}
		binary.LittleEndian.PutUint32(raw[12:16], attrib)
		binary.LittleEndian.PutUint32(raw[16:20], c.LoadAddr)
		digest := integrity.SHA256(c.Data)
		copy(raw[20:52], digest[:])

		copy(out[headerSize+sigSize+offset:], stored[i])
		offset += len(stored[i])
	}

	return out, nil
}
