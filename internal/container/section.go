package container

import "fmt"

// Format identifies a container format family and version.
type Format string

// Coding identifies the stored encoding of a section's bytes.
type Coding int

const (
	// CodingPlain means the stored bytes are the payload.
	CodingPlain Coding = iota
	// CodingAES means the stored bytes are AES-128-CBC scrambled.
	CodingAES
	// CodingUnknown means the format declared a transform tag this
	// driver does not implement. The descriptor is still enumerated;
	// decoding it fails with UnsupportedEncoding. Keeping the entry
	// visible preserves partial results for the sections before it.
	CodingUnknown
)

// String returns the manifest spelling of the coding.
func (c Coding) String() string {
	switch c {
	case CodingPlain:
		return "plain"
	case CodingAES:
		return "aes"
	case CodingUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Coding(%d)", int(c))
	}
}

// Kind is the declared role of a section's payload on the device.
// Downstream tools use it to decide how to treat the artifact (the
// hardcoders read ArchHint, the ELF converter reads the kind itself).
type Kind int

const (
	KindUnknown Kind = iota
	KindBootloader
	KindApplication
	KindConfig
	KindSystemImage
	KindRadio
)

// String returns the manifest spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindBootloader:
		return "bootloader"
	case KindApplication:
		return "application"
	case KindConfig:
		return "config"
	case KindSystemImage:
		return "system-image"
	case KindRadio:
		return "radio"
	default:
		return "unknown"
	}
}

// ArchHint returns the target architecture downstream disassembly
// tools should assume for this kind of payload, or "" when there is
// no useful hint (configuration blobs, unknown kinds).
func (k Kind) ArchHint() string {
	switch k {
	case KindBootloader, KindApplication:
		return "arm"
	case KindSystemImage:
		return "arm64"
	case KindRadio:
		return "thumb"
	default:
		return ""
	}
}

// Header is the format-agnostic view of a parsed container header.
type Header struct {
	Format       Format
	DeclaredSize int // total bytes the container claims to occupy
	SectionCount int
	Manufacturer string
	Model        string
	Version      string // firmware package version, format-specific rendering

	// Signed is true when the header carries a signature block;
	// SignatureStatus records the outcome of checking it.
	Signed          bool
	SignatureStatus VerifyStatus
}

// Section describes one validated entry of a container's section
// table. A Section value only exists if its range lies inside the
// image; decode-time code never re-checks bounds.
type Section struct {
	Name   string // artifact base name, unique within the image
	Index  int    // position in the format-defined enumeration order
	Kind   Kind
	Target string // raw format-specific target tag, for the manifest
	Offset int    // absolute byte offset of the stored data
	Length int    // stored byte length
	Coding Coding
	// CodingRaw is the format's transform tag byte as stored, kept
	// for diagnostics when Coding is CodingUnknown.
	CodingRaw byte

	// LoadAddress is the device address the payload is flashed or
	// loaded at, when the format declares one (IMaH does, xV4 not).
	LoadAddress uint32
}

// VerifyStatus is the per-section integrity outcome. It is a value,
// not an error: a failed checksum still yields extractable bytes.
type VerifyStatus int

const (
	// StatusVerified means the declared digest matched the payload.
	StatusVerified VerifyStatus = iota
	// StatusSkipped means verification could not be attempted
	// (no digest declared, or key material unavailable).
	StatusSkipped
	// StatusFailed means the declared digest did not match.
	StatusFailed
)

// String returns the manifest spelling of the status.
func (s VerifyStatus) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusSkipped:
		return "verification-skipped"
	case StatusFailed:
		return "verification-failed"
	default:
		return fmt.Sprintf("VerifyStatus(%d)", int(s))
	}
}

// Decoded is the result of decoding one section.
type Decoded struct {
	Data   []byte
	Status VerifyStatus
	Note   string // human-readable reason when Status != StatusVerified
}
