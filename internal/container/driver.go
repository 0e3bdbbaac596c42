package container

import (
	"sync"

	"github.com/muurk/rotortool/internal/fwimage"
)

// MaxSections bounds the section count any driver will accept. Real
// packages carry under 30 sections; the cap keeps a corrupt count from
// driving allocation.
const MaxSections = 64

// SniffLen is how many leading bytes Detect hands to each driver's
// Probe. Large enough for every known magic, small enough to stay a
// bounded read.
const SniffLen = 16

// Driver is the contract one container format version implements.
// Drivers are stateless with respect to any particular image; all
// three parse calls take the image explicitly and must not mutate it.
type Driver interface {
	// Format names the family and version, e.g. "xV4" or "IMaH v1".
	Format() Format

	// Probe reports whether the leading bytes look like this format.
	// It must be cheap and must not inspect beyond the prefix.
	Probe(prefix []byte) bool

	// ParseHeader decodes and validates the container header.
	ParseHeader(img *fwimage.Image) (*Header, error)

	// EnumerateSections validates the section table and returns
	// descriptors in the format-defined order. Every returned
	// descriptor is bounds-checked against the image.
	EnumerateSections(img *fwimage.Image) ([]Section, error)

	// DecodeSection returns one section's decoded payload together
	// with its verification outcome. Checksum mismatch is reported
	// in the Decoded value; only structural failures are errors.
	DecodeSection(img *fwimage.Image, sec Section) (*Decoded, error)
}

// Registry holds the open set of known drivers. The zero value is
// usable; Register and Detect may be called from multiple goroutines.
type Registry struct {
	mu      sync.RWMutex
	drivers []Driver
}

// NewRegistry returns a registry preloaded with the given drivers.
func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{}
	for _, d := range drivers {
		r.Register(d)
	}
	return r
}

// Register adds a driver. Later registrations are probed after earlier
// ones, so more specific formats should register first.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = append(r.drivers, d)
}

// Formats lists the registered format names in probe order.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Format, len(r.drivers))
	for i, d := range r.drivers {
		out[i] = d.Format()
	}
	return out
}

// Detect inspects a bounded prefix of the image and returns the driver
// that claims it. The image is not mutated and no driver parse call is
// made; a Probe hit is a claim, not a validation.
func (r *Registry) Detect(img *fwimage.Image) (Driver, error) {
	prefix := img.Prefix(SniffLen)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.drivers {
		if d.Probe(prefix) {
			return d, nil
		}
	}
	return nil, NewUnrecognizedFormat("no known container magic in leading % x", prefix)
}
