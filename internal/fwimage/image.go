package fwimage

import (
	"fmt"
	"os"
)

// Image is an immutable firmware image loaded into memory.
//
// All reads go through bounds-checked accessors so that a corrupt
// offset or length coming from a container header can never cause an
// out-of-range slice downstream. The image is owned by one extraction
// run and released with Close.
type Image struct {
	path string
	data []byte
}

// Open reads the firmware file at path into a new Image.
func Open(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware image: %w", err)
	}
	return &Image{path: path, data: data}, nil
}

// FromBytes wraps an in-memory buffer as an Image. The buffer must not
// be modified afterwards; tests and in-process callers use this to
// avoid temp files.
func FromBytes(data []byte) *Image {
	return &Image{path: "(memory)", data: data}
}

// Path returns the file path the image was loaded from.
func (img *Image) Path() string {
	return img.path
}

// Len returns the actual byte length of the image.
func (img *Image) Len() int {
	return len(img.data)
}

// Slice returns the byte range [off, off+n). It fails if the range does
// not lie fully within the image.
func (img *Image) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > len(img.data) || n > len(img.data)-off {
		return nil, fmt.Errorf("range [%d:%d) outside image of %d bytes", off, off+n, len(img.data))
	}
	return img.data[off : off+n], nil
}

// Prefix returns up to n leading bytes without failing on short images.
// Format sniffing uses this to inspect magic values.
func (img *Image) Prefix(n int) []byte {
	if n > len(img.data) {
		n = len(img.data)
	}
	return img.data[:n]
}

// Close releases the image buffer. Accessors must not be used after
// Close.
func (img *Image) Close() {
	img.data = nil
}
