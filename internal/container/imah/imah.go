// Package imah implements version 1 of the IMaH signed firmware
// container, the envelope the newer update packages ship in.
//
// Layout (little-endian): a 128-byte fixed header naming an auth key
// and a cipher key by four-character tag and carrying the chunk
// scramble key encrypted under the cipher key; a table of 52-byte
// chunk entries inside the declared header size; an optional RSA
// signature over the whole header; then the chunk payloads. Chunk
// integrity is SHA-256 over the decoded bytes.
package imah

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/muurk/rotortool/internal/container"
	"github.com/muurk/rotortool/internal/fwimage"
	"github.com/muurk/rotortool/internal/integrity"
	"github.com/muurk/rotortool/internal/keyring"
	"github.com/muurk/rotortool/internal/logging"
)

// FormatName identifies this driver in headers, manifests and errors.
const FormatName container.Format = "IMaH v1"

// Magic is the four leading bytes of every IMaH container.
var Magic = [4]byte{'I', 'M', '*', 'H'}

const (
	FormatVersion = 1

	fixedHeaderSize = 128
	chunkEntrySize  = 52

	attribEncrypted = 1 << 0
)

// Driver implements container.Driver for IMaH v1 packages.
type Driver struct {
	ring *keyring.Ring
}

// New returns an IMaH v1 driver drawing key material from ring.
func New(ring *keyring.Ring) *Driver {
	return &Driver{ring: ring}
}

// Format implements container.Driver.
func (d *Driver) Format() container.Format {
	return FormatName
}

// Probe implements container.Driver.
func (d *Driver) Probe(prefix []byte) bool {
	return len(prefix) >= 4 && bytes.Equal(prefix[:4], Magic[:])
}

type header struct {
	headerSize    int
	signatureSize int
	payloadSize   int
	totalSize     int
	authSlot      string // "" when unsigned
	cipherSlot    string // "" when chunks are stored plain
	scrambleSlot  [16]byte
	model         string
	chunks        []chunk
}

func (h *header) payloadStart() int {
	return h.headerSize + h.signatureSize
}

type chunk struct {
	id       string
	offset   int // relative to payload start
	size     int
	attrib   uint32
	loadAddr uint32
	digest   [sha256.Size]byte
}

func (c chunk) encrypted() bool {
	return c.attrib&attribEncrypted != 0
}

func chunkKind(id string) container.Kind {
	switch id {
	case "bldr":
		return container.KindBootloader
	case "app0", "app1":
		return container.KindApplication
	case "para", "cfg0":
		return container.KindConfig
	case "sys0", "rtos":
		return container.KindSystemImage
	case "rdio":
		return container.KindRadio
	default:
		return container.KindUnknown
	}
}

// fourcc decodes a key tag slot; all-zero means absent.
func fourcc(b []byte) string {
	if b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 0 {
		return ""
	}
	return string(b[:4])
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (d *Driver) parse(img *fwimage.Image) (*header, error) {
	raw, err := img.Slice(0, fixedHeaderSize)
	if err != nil {
		return nil, container.NewTruncatedImage(FormatName, "image is %d bytes, fixed header needs %d", img.Len(), fixedHeaderSize)
	}

	logging.LogRawBytes("imah fixed header", raw)

	if !bytes.Equal(raw[0:4], Magic[:]) {
		return nil, container.NewBadMagic(FormatName, "magic mismatch: % x", raw[0:4])
	}
	if ver := binary.LittleEndian.Uint32(raw[4:8]); ver != FormatVersion {
		return nil, container.NewUnsupportedVersion(FormatName, "format version %d, this driver handles %d", ver, FormatVersion)
	}

	h := &header{
		headerSize:    int(binary.LittleEndian.Uint32(raw[8:12])),
		signatureSize: int(binary.LittleEndian.Uint32(raw[12:16])),
		payloadSize:   int(binary.LittleEndian.Uint32(raw[16:20])),
		totalSize:     int(binary.LittleEndian.Uint32(raw[20:24])),
		authSlot:      fourcc(raw[24:28]),
		cipherSlot:    fourcc(raw[28:32]),
		model:         cstring(raw[48:80]),
	}
	copy(h.scrambleSlot[:], raw[32:48])

	chunkCount := int(binary.LittleEndian.Uint32(raw[80:84]))
	if chunkCount > container.MaxSections {
		return nil, container.NewSectionOutOfBounds(FormatName, "", "chunk count %d exceeds limit %d", chunkCount, container.MaxSections)
	}
	if h.headerSize != fixedHeaderSize+chunkCount*chunkEntrySize {
		return nil, container.NewBadMagic(FormatName, "header size %d inconsistent with %d chunks", h.headerSize, chunkCount)
	}
	if h.totalSize != h.headerSize+h.signatureSize+h.payloadSize {
		return nil, container.NewBadMagic(FormatName, "total size %d != header %d + signature %d + payload %d",
			h.totalSize, h.headerSize, h.signatureSize, h.payloadSize)
	}
	if h.totalSize > img.Len() {
		return nil, container.NewTruncatedImage(FormatName, "container declares %d bytes, image has %d", h.totalSize, img.Len())
	}

	table, err := img.Slice(fixedHeaderSize, chunkCount*chunkEntrySize)
	if err != nil {
		return nil, container.NewTruncatedImage(FormatName, "chunk table outside image: %v", err)
	}

	h.chunks = make([]chunk, chunkCount)
	for i := range h.chunks {
		raw := table[i*chunkEntrySize:]
		c := chunk{
			id:       cstring(raw[0:4]),
			offset:   int(binary.LittleEndian.Uint32(raw[4:8])),
			size:     int(binary.LittleEndian.Uint32(raw[8:12])),
			attrib:   binary.LittleEndian.Uint32(raw[12:16]),
			loadAddr: binary.LittleEndian.Uint32(raw[16:20]),
		}
		copy(c.digest[:], raw[20:52])

		if c.id == "" {
			return nil, container.NewSectionOutOfBounds(FormatName, "", "chunk %d has an empty id", i)
		}
		if c.offset < 0 || c.size < 0 || c.offset+c.size > h.payloadSize || c.offset+c.size < c.offset {
			return nil, container.NewSectionOutOfBounds(FormatName, c.id, "chunk range [%d:%d) outside payload of %d bytes", c.offset, c.offset+c.size, h.payloadSize)
		}
		h.chunks[i] = c
	}

	// No aliasing: reject overlapping chunk ranges.
	sorted := append([]chunk(nil), h.chunks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].offset < sorted[j].offset })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.offset < prev.offset+prev.size {
			return nil, container.NewSectionOutOfBounds(FormatName, cur.id, "chunk range overlaps %s", prev.id)
		}
	}

	return h, nil
}

// signatureStatus checks the header signature when a trusted key is
// available. Absence of the key (or of a signature) is skipped, not
// failed: key material is optional input.
func (d *Driver) signatureStatus(img *fwimage.Image, h *header) container.VerifyStatus {
	if h.signatureSize == 0 || h.authSlot == "" {
		return container.StatusSkipped
	}
	pub, ok := d.ring.RSA(h.authSlot)
	if !ok {
		return container.StatusSkipped
	}
	signed, err := img.Slice(0, h.headerSize)
	if err != nil {
		return container.StatusFailed
	}
	sig, err := img.Slice(h.headerSize, h.signatureSize)
	if err != nil {
		return container.StatusFailed
	}
	if integrity.VerifyRSASignature(pub, signed, sig) {
		return container.StatusVerified
	}
	return container.StatusFailed
}

// ParseHeader implements container.Driver.
func (d *Driver) ParseHeader(img *fwimage.Image) (*container.Header, error) {
	h, err := d.parse(img)
	if err != nil {
		return nil, err
	}

	return &container.Header{
		Format:          FormatName,
		DeclaredSize:    h.totalSize,
		SectionCount:    len(h.chunks),
		Model:           h.model,
		Signed:          h.signatureSize > 0,
		SignatureStatus: d.signatureStatus(img, h),
	}, nil
}

// EnumerateSections implements container.Driver.
func (d *Driver) EnumerateSections(img *fwimage.Image) ([]container.Section, error) {
	h, err := d.parse(img)
	if err != nil {
		return nil, err
	}

	secs := make([]container.Section, len(h.chunks))
	for i, c := range h.chunks {
		coding := container.CodingPlain
		if c.encrypted() {
			coding = container.CodingAES
		}
		secs[i] = container.Section{
			Name:        c.id,
			Index:       i,
			Kind:        chunkKind(c.id),
			Target:      c.id,
			Offset:      h.payloadStart() + c.offset,
			Length:      c.size,
			Coding:      coding,
			CodingRaw:   byte(c.attrib & 0xFF),
			LoadAddress: c.loadAddr,
		}
	}
	return secs, nil
}

// scrambleKey recovers the chunk scramble key, or reports that the
// package cipher key is not in the ring.
func (d *Driver) scrambleKey(h *header) ([]byte, bool, error) {
	if h.cipherSlot == "" {
		return nil, false, nil
	}
	kek, ok := d.ring.AES(h.cipherSlot)
	if !ok {
		return nil, false, nil
	}
	key, err := integrity.DecryptECBBlock(h.scrambleSlot[:], kek)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// DecodeSection implements container.Driver.
func (d *Driver) DecodeSection(img *fwimage.Image, sec container.Section) (*container.Decoded, error) {
	h, err := d.parse(img)
	if err != nil {
		return nil, err
	}
	if sec.Index < 0 || sec.Index >= len(h.chunks) {
		return nil, container.NewSectionOutOfBounds(FormatName, sec.Name, "descriptor index %d outside chunk table of %d", sec.Index, len(h.chunks))
	}
	c := h.chunks[sec.Index]

	stored, err := img.Slice(h.payloadStart()+c.offset, c.size)
	if err != nil {
		return nil, container.NewSectionOutOfBounds(FormatName, sec.Name, "chunk range vanished: %v", err)
	}

	if !c.encrypted() {
		out := append([]byte(nil), stored...)
		status := container.StatusVerified
		note := ""
		if !integrity.VerifySHA256(out, c.digest) {
			status = container.StatusFailed
			note = "chunk digest mismatch"
		}
		return &container.Decoded{Data: out, Status: status, Note: note}, nil
	}

	// Checked before the key lookup so the outcome never depends on
	// what happens to be in the ring.
	if c.size == 0 || c.size%aes.BlockSize != 0 {
		return nil, container.NewDecryptError(FormatName, sec.Name,
			&integrity.DecryptError{Message: "encrypted chunk size is not a positive multiple of the cipher block"})
	}

	key, ok, err := d.scrambleKey(h)
	if err != nil {
		return nil, container.NewDecryptError(FormatName, sec.Name, err)
	}
	if !ok {
		return &container.Decoded{
			Data:   append([]byte(nil), stored...),
			Status: container.StatusSkipped,
			Note:   "cipher key " + orUnnamed(h.cipherSlot) + " unavailable, chunk left encrypted",
		}, nil
	}

	plain, err := integrity.DecryptCBC(stored, key)
	if err != nil {
		return nil, container.NewDecryptError(FormatName, sec.Name, err)
	}
	status := container.StatusVerified
	note := ""
	if !integrity.VerifySHA256(plain, c.digest) {
		status = container.StatusFailed
		note = "chunk digest mismatch"
	}
	return &container.Decoded{Data: plain, Status: status, Note: note}, nil
}

func orUnnamed(slot string) string {
	if slot == "" {
		return "(unnamed)"
	}
	return slot
}
