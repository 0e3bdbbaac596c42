package xv4

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"

	"github.com/muurk/rotortool/internal/container"
	"github.com/muurk/rotortool/internal/integrity"
)

// PackSection is one module to place into a packed container.
type PackSection struct {
	TargetKind  byte   // low 5 bits of the target byte
	TargetIndex byte   // upper 3 bits of the target byte
	Version     uint32 // packed module version
	Encrypt     bool   // scramble with the coding 0x0A key
	Data        []byte // payload; must be block-aligned when Encrypt
}

// PackOptions carries the header fields of a packed container.
type PackOptions struct {
	Manufacturer    string
	Model           string
	Timestamp       uint32
	VersionLatest   uint32
	VersionRollback uint32
}

// Pack builds a complete xV4 container image. It is the inverse of
// extraction for this format and exists for repacking patched modules;
// the round-trip tests lean on it as well.
func (d *Driver) Pack(opts PackOptions, secs []PackSection) ([]byte, error) {
	if len(secs) > container.MaxSections {
		return nil, fmt.Errorf("cannot pack %d modules, limit is %d", len(secs), container.MaxSections)
	}
	if len(opts.Manufacturer) > 15 || len(opts.Model) > 15 {
		return nil, fmt.Errorf("manufacturer and model must fit 15 bytes")
	}

	hdrEnd := fixedHeaderSize + len(secs)*entrySize + trailerSize

	// Materialize stored module bytes first so entry digests and
	// offsets are known before the header is laid down.
	stored := make([][]byte, len(secs))
	for i, s := range secs {
		if s.TargetKind > 0x1F || s.TargetIndex > 0x07 {
			return nil, fmt.Errorf("module %d: target kind/index out of range", i)
		}
		if !s.Encrypt {
			stored[i] = s.Data
			continue
		}
		if len(s.Data)%aes.BlockSize != 0 {
			return nil, fmt.Errorf("module %d: scrambled payload length %d not block-aligned", i, len(s.Data))
		}
		key, ok := d.ring.AES(keySlot(codingAES))
		if !ok {
			return nil, fmt.Errorf("module %d: scramble key %q not in keyring", i, keySlot(codingAES))
		}
		enc, err := integrity.EncryptCBC(s.Data, key)
		if err != nil {
			return nil, fmt.Errorf("module %d: %w", i, err)
		}
		stored[i] = enc
	}

	total := hdrEnd
	for _, data := range stored {
		total += len(data)
	}
	out := make([]byte, total)

	binary.LittleEndian.PutUint32(out[0:4], Magic)
	binary.LittleEndian.PutUint16(out[4:6], MagicVer)
	binary.LittleEndian.PutUint16(out[6:8], uint16(hdrEnd))
	binary.LittleEndian.PutUint32(out[8:12], opts.Timestamp)
	copy(out[12:28], opts.Manufacturer)
	copy(out[28:44], opts.Model)
	binary.LittleEndian.PutUint16(out[44:46], uint16(len(secs)))
	binary.LittleEndian.PutUint32(out[46:50], opts.VersionLatest)
	binary.LittleEndian.PutUint32(out[50:54], opts.VersionRollback)

	offset := hdrEnd
	for i, s := range secs {
		raw := out[fixedHeaderSize+i*entrySize:]
		coding := byte(codingPlain)
		if s.Encrypt {
			coding = codingAES
		}
		raw[0] = s.TargetKind | s.TargetIndex<<5
		raw[1] = coding
		binary.LittleEndian.PutUint32(raw[4:8], s.Version)
		binary.LittleEndian.PutUint32(raw[8:12], uint32(offset))
		binary.LittleEndian.PutUint32(raw[12:16], uint32(len(stored[i])))
		allocLen := (len(stored[i]) + aes.BlockSize - 1) &^ (aes.BlockSize - 1)
		binary.LittleEndian.PutUint32(raw[16:20], uint32(allocLen))

		storedMD5 := integrity.MD5(stored[i])
		copy(raw[20:36], storedMD5[:])
		if s.Encrypt {
			plainMD5 := integrity.MD5(s.Data)
			copy(raw[36:52], plainMD5[:])
		}

		copy(out[offset:], stored[i])
		offset += len(stored[i])
	}

	crc := integrity.CRC16(out[:hdrEnd-trailerSize])
	binary.LittleEndian.PutUint16(out[hdrEnd-trailerSize:hdrEnd], crc)

	return out, nil
}
