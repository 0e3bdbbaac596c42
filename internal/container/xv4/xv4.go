// Package xv4 implements the xV4 firmware container format, the
// envelope the older update packages ship in.
//
// Layout (all fields little-endian): a 64-byte fixed header, an array
// of 52-byte module entries, a CRC-16 over everything before it, then
// the module payloads. Each entry carries an MD5 of the stored bytes
// and, for scrambled modules, a second MD5 of the decrypted payload.
package xv4

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/muurk/rotortool/internal/container"
	"github.com/muurk/rotortool/internal/fwimage"
	"github.com/muurk/rotortool/internal/integrity"
	"github.com/muurk/rotortool/internal/keyring"
	"github.com/muurk/rotortool/internal/logging"
)

// FormatName identifies this driver in headers, manifests and errors.
const FormatName container.Format = "xV4"

const (
	// Magic renders as "xV4\x12" in the leading file bytes.
	Magic    = 0x12345678
	MagicVer = 0x0001

	fixedHeaderSize = 64
	entrySize       = 52
	trailerSize     = 2 // CRC-16 after the entry table

	// Module coding tags.
	codingPlain = 0x00
	codingAES   = 0x0A
)

// Module target kinds, low 5 bits of the entry target byte. The upper
// 3 bits select the module index within the kind.
const (
	targetBootloader = 0x01
	targetApp        = 0x03
	targetConfig     = 0x04
	targetSystem     = 0x08
	targetRadio      = 0x0C
)

// Driver implements container.Driver for xV4 packages.
type Driver struct {
	ring *keyring.Ring
}

// New returns an xV4 driver drawing key material from ring.
func New(ring *keyring.Ring) *Driver {
	return &Driver{ring: ring}
}

// Format implements container.Driver.
func (d *Driver) Format() container.Format {
	return FormatName
}

// Probe implements container.Driver. It claims images whose leading
// bytes carry the xV4 magic; full validation happens in ParseHeader.
func (d *Driver) Probe(prefix []byte) bool {
	return len(prefix) >= 4 && binary.LittleEndian.Uint32(prefix[:4]) == Magic
}

// header is the decoded fixed header plus entry table.
type header struct {
	hdrEnd       int
	timestamp    uint32
	manufacturer string
	model        string
	entryCount   int
	verLatest    uint32
	verRollback  uint32
	entries      []entry
}

type entry struct {
	target    byte
	coding    byte
	version   uint32
	offset    int
	length    int
	allocLen  int
	storedMD5 [md5.Size]byte
	plainMD5  [md5.Size]byte
}

func (e entry) kindBits() byte  { return e.target & 0x1F }
func (e entry) indexBits() byte { return e.target >> 5 }

// name renders the module name the way the rest of the tooling expects
// module files to be called, m<kind><index>.
func (e entry) name() string {
	return fmt.Sprintf("m%02d%02d", e.kindBits(), e.indexBits())
}

func (e entry) sectionKind() container.Kind {
	switch e.kindBits() {
	case targetBootloader:
		return container.KindBootloader
	case targetApp:
		return container.KindApplication
	case targetConfig:
		return container.KindConfig
	case targetSystem:
		return container.KindSystemImage
	case targetRadio:
		return container.KindRadio
	default:
		return container.KindUnknown
	}
}

// renderVersion formats the packed BCD-style version field.
func renderVersion(v uint32) string {
	return fmt.Sprintf("%02d.%02d.%04d", v>>24, (v>>16)&0xFF, v&0xFFFF)
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// parse decodes and fully validates the header, entry table, header
// checksum and all entry ranges. Every later call builds on it, so a
// descriptor that survives parse can be decoded without re-checking
// bounds.
func (d *Driver) parse(img *fwimage.Image) (*header, error) {
	raw, err := img.Slice(0, fixedHeaderSize)
	if err != nil {
		return nil, container.NewTruncatedImage(FormatName, "image is %d bytes, fixed header needs %d", img.Len(), fixedHeaderSize)
	}

	logging.LogRawBytes("xv4 fixed header", raw)

	if binary.LittleEndian.Uint32(raw[0:4]) != Magic {
		return nil, container.NewBadMagic(FormatName, "magic mismatch: % x", raw[0:4])
	}
	if ver := binary.LittleEndian.Uint16(raw[4:6]); ver != MagicVer {
		return nil, container.NewUnsupportedVersion(FormatName, "container version 0x%04X, this driver handles 0x%04X", ver, MagicVer)
	}

	h := &header{
		hdrEnd:       int(binary.LittleEndian.Uint16(raw[6:8])),
		timestamp:    binary.LittleEndian.Uint32(raw[8:12]),
		manufacturer: cstring(raw[12:28]),
		model:        cstring(raw[28:44]),
		entryCount:   int(binary.LittleEndian.Uint16(raw[44:46])),
		verLatest:    binary.LittleEndian.Uint32(raw[46:50]),
		verRollback:  binary.LittleEndian.Uint32(raw[50:54]),
	}

	if h.entryCount > container.MaxSections {
		return nil, container.NewSectionOutOfBounds(FormatName, "", "entry count %d exceeds limit %d", h.entryCount, container.MaxSections)
	}
	wantHdrEnd := fixedHeaderSize + h.entryCount*entrySize + trailerSize
	if h.hdrEnd != wantHdrEnd {
		return nil, container.NewBadMagic(FormatName, "header end %d inconsistent with %d entries (want %d)", h.hdrEnd, h.entryCount, wantHdrEnd)
	}
	hdrRaw, err := img.Slice(0, h.hdrEnd)
	if err != nil {
		return nil, container.NewTruncatedImage(FormatName, "header claims %d bytes, image has %d", h.hdrEnd, img.Len())
	}

	wantCRC := binary.LittleEndian.Uint16(hdrRaw[h.hdrEnd-trailerSize:])
	if got := integrity.CRC16(hdrRaw[:h.hdrEnd-trailerSize]); got != wantCRC {
		return nil, container.NewBadMagic(FormatName, "header checksum 0x%04X, computed 0x%04X", wantCRC, got)
	}

	h.entries = make([]entry, h.entryCount)
	for i := range h.entries {
		raw := hdrRaw[fixedHeaderSize+i*entrySize:]
		e := entry{
			target:   raw[0],
			coding:   raw[1],
			version:  binary.LittleEndian.Uint32(raw[4:8]),
			offset:   int(binary.LittleEndian.Uint32(raw[8:12])),
			length:   int(binary.LittleEndian.Uint32(raw[12:16])),
			allocLen: int(binary.LittleEndian.Uint32(raw[16:20])),
		}
		copy(e.storedMD5[:], raw[20:36])
		copy(e.plainMD5[:], raw[36:52])

		if e.offset < h.hdrEnd {
			return nil, container.NewSectionOutOfBounds(FormatName, e.name(), "module offset %d inside header (ends %d)", e.offset, h.hdrEnd)
		}
		if e.length < 0 || e.offset+e.length > img.Len() || e.offset+e.length < e.offset {
			return nil, container.NewTruncatedImage(FormatName, "module %s claims [%d:%d), image has %d bytes", e.name(), e.offset, e.offset+e.length, img.Len())
		}
		if e.allocLen < e.length {
			return nil, container.NewSectionOutOfBounds(FormatName, e.name(), "alloc length %d below stored length %d", e.allocLen, e.length)
		}
		h.entries[i] = e
	}

	// The format does not permit aliasing: check for overlaps on a
	// copy sorted by offset so enumeration order stays untouched.
	sorted := append([]entry(nil), h.entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].offset < sorted[j].offset })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.offset < prev.offset+prev.length {
			return nil, container.NewSectionOutOfBounds(FormatName, cur.name(), "module range overlaps %s", prev.name())
		}
	}

	return h, nil
}

// ParseHeader implements container.Driver.
func (d *Driver) ParseHeader(img *fwimage.Image) (*container.Header, error) {
	h, err := d.parse(img)
	if err != nil {
		return nil, err
	}

	declared := h.hdrEnd
	for _, e := range h.entries {
		if end := e.offset + e.length; end > declared {
			declared = end
		}
	}

	return &container.Header{
		Format:          FormatName,
		DeclaredSize:    declared,
		SectionCount:    h.entryCount,
		Manufacturer:    h.manufacturer,
		Model:           h.model,
		Version:         renderVersion(h.verLatest),
		Signed:          false,
		SignatureStatus: container.StatusSkipped,
	}, nil
}

// EnumerateSections implements container.Driver. Sections come back in
// entry-table order, which mirrors the device's partition order.
func (d *Driver) EnumerateSections(img *fwimage.Image) ([]container.Section, error) {
	h, err := d.parse(img)
	if err != nil {
		return nil, err
	}

	secs := make([]container.Section, len(h.entries))
	for i, e := range h.entries {
		coding := container.CodingUnknown
		switch e.coding {
		case codingPlain:
			coding = container.CodingPlain
		case codingAES:
			coding = container.CodingAES
		}
		secs[i] = container.Section{
			Name:      e.name(),
			Index:     i,
			Kind:      e.sectionKind(),
			Target:    fmt.Sprintf("0x%02X", e.target),
			Offset:    e.offset,
			Length:    e.length,
			Coding:    coding,
			CodingRaw: e.coding,
		}
	}
	return secs, nil
}

// keySlot names the keyring slot for a coding tag.
func keySlot(coding byte) string {
	return fmt.Sprintf("xv4:%02x", coding)
}

// DecodeSection implements container.Driver.
//
// The stored-data digest is checked first in all cases; for scrambled
// modules whose key is known, the payload digest is checked after
// decryption. A module whose key is absent is returned in stored form
// and marked skipped, matching how damaged or keyless dumps are
// handled everywhere else in this tool.
func (d *Driver) DecodeSection(img *fwimage.Image, sec container.Section) (*container.Decoded, error) {
	h, err := d.parse(img)
	if err != nil {
		return nil, err
	}
	if sec.Index < 0 || sec.Index >= len(h.entries) {
		return nil, container.NewSectionOutOfBounds(FormatName, sec.Name, "descriptor index %d outside entry table of %d", sec.Index, len(h.entries))
	}
	e := h.entries[sec.Index]

	stored, err := img.Slice(e.offset, e.length)
	if err != nil {
		// Unreachable after parse, but never trust an offset twice.
		return nil, container.NewSectionOutOfBounds(FormatName, sec.Name, "module range vanished: %v", err)
	}

	storedOK := integrity.VerifyMD5(stored, e.storedMD5)

	switch e.coding {
	case codingPlain:
		out := append([]byte(nil), stored...)
		status := container.StatusVerified
		note := ""
		if !storedOK {
			status = container.StatusFailed
			note = "stored data digest mismatch"
		}
		return &container.Decoded{Data: out, Status: status, Note: note}, nil

	case codingAES:
		key, ok := d.ring.AES(keySlot(e.coding))
		if !ok {
			note := "scramble key unavailable, module left encrypted"
			status := container.StatusSkipped
			if !storedOK {
				status = container.StatusFailed
				note = "stored data digest mismatch"
			}
			return &container.Decoded{Data: append([]byte(nil), stored...), Status: status, Note: note}, nil
		}

		plain, err := integrity.DecryptCBC(stored, key)
		if err != nil {
			return nil, container.NewDecryptError(FormatName, sec.Name, err)
		}
		status := container.StatusVerified
		note := ""
		if !storedOK || !integrity.VerifyMD5(plain, e.plainMD5) {
			status = container.StatusFailed
			note = "payload digest mismatch"
		}
		return &container.Decoded{Data: plain, Status: status, Note: note}, nil

	default:
		return nil, container.NewUnsupportedEncoding(FormatName, sec.Name, "unknown module coding 0x%02X", e.coding)
	}
}
