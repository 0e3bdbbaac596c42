package container

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKindStrings(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindUnrecognizedFormat, "UnrecognizedFormat"},
		{KindBadMagic, "BadMagic"},
		{KindTruncatedImage, "TruncatedImage"},
		{KindUnsupportedVersion, "UnsupportedVersion"},
		{KindSectionOutOfBounds, "SectionOutOfBounds"},
		{KindUnsupportedEncoding, "UnsupportedEncoding"},
		{KindDecrypt, "DecryptError"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseErrorFormatting(t *testing.T) {
	err := NewSectionOutOfBounds("xV4", "m0801", "range [%d:%d) outside image", 100, 200)

	msg := err.Error()
	for _, want := range []string{"SectionOutOfBounds", "xV4", "m0801", "[100:200)"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestParseErrorUnwrap(t *testing.T) {
	cause := errors.New("short read")
	err := NewDecryptError("IMaH v1", "app0", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find the wrapped cause")
	}
	var perr *ParseError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &perr) {
		t.Fatal("errors.As did not find the ParseError through wrapping")
	}
	if perr.Kind != KindDecrypt {
		t.Errorf("Kind = %v, want KindDecrypt", perr.Kind)
	}
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{"unrecognized", NewUnrecognizedFormat("no magic"), IsUnrecognizedFormat},
		{"bad magic", NewBadMagic("xV4", "nope"), IsBadMagic},
		{"truncated", NewTruncatedImage("xV4", "short"), IsTruncatedImage},
		{"version", NewUnsupportedVersion("xV4", "v9"), IsUnsupportedVersion},
		{"bounds", NewSectionOutOfBounds("xV4", "m0100", "out"), IsSectionOutOfBounds},
		{"encoding", NewUnsupportedEncoding("xV4", "m0100", "tag 0x7F"), IsUnsupportedEncoding},
		{"decrypt", NewDecryptError("xV4", "m0100", errors.New("bad block")), IsDecryptError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.pred(tt.err) {
				t.Error("predicate rejected its own kind")
			}
			if tt.pred(errors.New("plain error")) {
				t.Error("predicate accepted a plain error")
			}
			// Predicates see through wrapping.
			if !tt.pred(fmt.Errorf("context: %w", tt.err)) {
				t.Error("predicate failed through fmt.Errorf wrapping")
			}
		})
	}
}

func TestStatusAndCodingStrings(t *testing.T) {
	if StatusVerified.String() != "verified" ||
		StatusSkipped.String() != "verification-skipped" ||
		StatusFailed.String() != "verification-failed" {
		t.Error("VerifyStatus strings drifted from the manifest vocabulary")
	}
	if CodingPlain.String() != "plain" || CodingAES.String() != "aes" || CodingUnknown.String() != "unknown" {
		t.Error("Coding strings drifted from the manifest vocabulary")
	}
}
