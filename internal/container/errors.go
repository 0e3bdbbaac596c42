package container

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes parse failures. Every kind here is a hard
// error: the run (or the remainder of it) cannot continue. Checksum
// mismatch is deliberately absent: it is a VerifyStatus, not an error.
type ErrorKind int

const (
	// KindUnrecognizedFormat indicates no registered driver claimed
	// the image.
	KindUnrecognizedFormat ErrorKind = iota
	// KindBadMagic indicates the driver's magic value or header
	// checksum did not match.
	KindBadMagic
	// KindTruncatedImage indicates declared sizes exceed the bytes
	// actually present.
	KindTruncatedImage
	// KindUnsupportedVersion indicates a recognized family with a
	// version this driver does not handle.
	KindUnsupportedVersion
	// KindSectionOutOfBounds indicates a section table entry whose
	// range is outside the image, overlapping, or implausible.
	KindSectionOutOfBounds
	// KindUnsupportedEncoding indicates a section transform tag the
	// driver does not know how to apply.
	KindUnsupportedEncoding
	// KindDecrypt indicates structurally invalid ciphertext or key
	// material for a section that should have decrypted.
	KindDecrypt
)

// String returns a stable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUnrecognizedFormat:
		return "UnrecognizedFormat"
	case KindBadMagic:
		return "BadMagic"
	case KindTruncatedImage:
		return "TruncatedImage"
	case KindUnsupportedVersion:
		return "UnsupportedVersion"
	case KindSectionOutOfBounds:
		return "SectionOutOfBounds"
	case KindUnsupportedEncoding:
		return "UnsupportedEncoding"
	case KindDecrypt:
		return "DecryptError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ParseError is the error type all drivers and the registry return.
type ParseError struct {
	Kind    ErrorKind
	Format  Format // empty for UnrecognizedFormat
	Section string // section name, when the failure is section-scoped
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	var where string
	if e.Format != "" {
		where = string(e.Format)
	}
	if e.Section != "" {
		where += " section " + e.Section
	}
	if where != "" {
		where = " [" + where + "]"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s%s: %s (caused by: %v)", e.Kind, where, e.Message, e.Err)
	}
	return fmt.Sprintf("%s%s: %s", e.Kind, where, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ParseError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, format Format, msg string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Format: format, Message: fmt.Sprintf(msg, args...)}
}

// NewUnrecognizedFormat reports that no driver claimed the image.
func NewUnrecognizedFormat(msg string, args ...any) *ParseError {
	return newError(KindUnrecognizedFormat, "", msg, args...)
}

// NewBadMagic reports a magic or header checksum mismatch.
func NewBadMagic(format Format, msg string, args ...any) *ParseError {
	return newError(KindBadMagic, format, msg, args...)
}

// NewTruncatedImage reports declared length exceeding the file.
func NewTruncatedImage(format Format, msg string, args ...any) *ParseError {
	return newError(KindTruncatedImage, format, msg, args...)
}

// NewUnsupportedVersion reports a version outside this driver's range.
func NewUnsupportedVersion(format Format, msg string, args ...any) *ParseError {
	return newError(KindUnsupportedVersion, format, msg, args...)
}

// NewSectionOutOfBounds reports an invalid section table entry.
func NewSectionOutOfBounds(format Format, section, msg string, args ...any) *ParseError {
	e := newError(KindSectionOutOfBounds, format, msg, args...)
	e.Section = section
	return e
}

// NewUnsupportedEncoding reports an unknown section transform tag.
func NewUnsupportedEncoding(format Format, section, msg string, args ...any) *ParseError {
	e := newError(KindUnsupportedEncoding, format, msg, args...)
	e.Section = section
	return e
}

// NewDecryptError wraps a cipher-level failure for one section.
func NewDecryptError(format Format, section string, err error) *ParseError {
	return &ParseError{
		Kind:    KindDecrypt,
		Format:  format,
		Section: section,
		Message: "section could not be decrypted",
		Err:     err,
	}
}

// kindOf extracts the ErrorKind from an error chain.
func kindOf(err error) (ErrorKind, bool) {
	var perr *ParseError
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return 0, false
}

// IsUnrecognizedFormat checks whether err is an UnrecognizedFormat failure.
func IsUnrecognizedFormat(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnrecognizedFormat
}

// IsBadMagic checks whether err is a BadMagic failure.
func IsBadMagic(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindBadMagic
}

// IsTruncatedImage checks whether err is a TruncatedImage failure.
func IsTruncatedImage(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTruncatedImage
}

// IsUnsupportedVersion checks whether err is an UnsupportedVersion failure.
func IsUnsupportedVersion(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnsupportedVersion
}

// IsSectionOutOfBounds checks whether err is a SectionOutOfBounds failure.
func IsSectionOutOfBounds(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindSectionOutOfBounds
}

// IsUnsupportedEncoding checks whether err is an UnsupportedEncoding failure.
func IsUnsupportedEncoding(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnsupportedEncoding
}

// IsDecryptError checks whether err is a section decryption failure.
func IsDecryptError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindDecrypt
}
