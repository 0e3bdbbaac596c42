package fwimage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSliceBounds(t *testing.T) {
	img := FromBytes([]byte{0, 1, 2, 3, 4, 5, 6, 7})

	tests := []struct {
		name    string
		off, n  int
		want    []byte
		wantErr bool
	}{
		{name: "full range", off: 0, n: 8, want: []byte{0, 1, 2, 3, 4, 5, 6, 7}},
		{name: "interior", off: 2, n: 3, want: []byte{2, 3, 4}},
		{name: "empty at end", off: 8, n: 0, want: []byte{}},
		{name: "negative offset", off: -1, n: 2, wantErr: true},
		{name: "negative length", off: 0, n: -1, wantErr: true},
		{name: "past end", off: 6, n: 3, wantErr: true},
		{name: "offset past end", off: 9, n: 0, wantErr: true},
		{name: "overflowing length", off: 4, n: int(^uint(0) >> 1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := img.Slice(tt.off, tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Slice(%d, %d) error = %v, wantErr %v", tt.off, tt.n, err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, tt.want) {
				t.Errorf("Slice(%d, %d) = % x, want % x", tt.off, tt.n, got, tt.want)
			}
		})
	}
}

func TestPrefixShortImage(t *testing.T) {
	img := FromBytes([]byte{0xAA, 0xBB})
	if got := img.Prefix(16); len(got) != 2 {
		t.Errorf("Prefix(16) on 2-byte image returned %d bytes", len(got))
	}
}

func TestOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bin")
	content := []byte("not a real firmware")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer img.Close()

	if img.Len() != len(content) {
		t.Errorf("Len() = %d, want %d", img.Len(), len(content))
	}
	if img.Path() != path {
		t.Errorf("Path() = %q, want %q", img.Path(), path)
	}
	got, err := img.Slice(0, img.Len())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Error("image content does not match file content")
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.bin")); err == nil {
		t.Error("Open() on missing file succeeded")
	}
}
