package extract

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/muurk/rotortool/internal/container"
)

// ManifestVersion is the schema version written into every manifest.
const ManifestVersion = 1

// Record describes one attempted section of an extraction run. Records
// appear in enumeration order, which mirrors the device's partition
// order; downstream tools rely on that.
type Record struct {
	Name        string `yaml:"name"`
	Index       int    `yaml:"index"`
	Kind        string `yaml:"kind"`
	ArchHint    string `yaml:"arch_hint,omitempty"`
	Target      string `yaml:"target"`
	Offset      int    `yaml:"offset"`
	Length      int    `yaml:"length"`
	Coding      string `yaml:"coding"`
	LoadAddress uint32 `yaml:"load_address,omitempty"`

	// Verification is the per-section integrity outcome; empty when
	// the section failed hard before any bytes were produced.
	Verification string `yaml:"verification,omitempty"`
	Note         string `yaml:"note,omitempty"`

	// Path and Size describe the written artifact; Path is empty and
	// Error set when decoding aborted the run at this section.
	Path  string `yaml:"path,omitempty"`
	Size  int    `yaml:"size,omitempty"`
	Error string `yaml:"error,omitempty"`
}

// Manifest is the ordered, durable record of one extraction run. It
// carries no timestamps so that re-extracting the same image twice
// yields byte-identical manifests.
type Manifest struct {
	Version int    `yaml:"version"`
	Image   string `yaml:"image"`
	Format  string `yaml:"format"`

	Manufacturer    string `yaml:"manufacturer,omitempty"`
	Model           string `yaml:"model,omitempty"`
	FirmwareVersion string `yaml:"firmware_version,omitempty"`
	Signed          bool   `yaml:"signed"`
	Signature       string `yaml:"signature,omitempty"`

	Sections []Record `yaml:"sections"`
}

func newManifest(imagePath string, hdr *container.Header) *Manifest {
	m := &Manifest{
		Version:         ManifestVersion,
		Image:           imagePath,
		Format:          string(hdr.Format),
		Manufacturer:    hdr.Manufacturer,
		Model:           hdr.Model,
		FirmwareVersion: hdr.Version,
		Signed:          hdr.Signed,
	}
	if hdr.Signed {
		m.Signature = hdr.SignatureStatus.String()
	}
	return m
}

// Lookup returns the record with the given section name.
func (m *Manifest) Lookup(name string) (*Record, bool) {
	for i := range m.Sections {
		if m.Sections[i].Name == name {
			return &m.Sections[i], true
		}
	}
	return nil, false
}

// TotalExtracted sums the bytes written across all sections.
func (m *Manifest) TotalExtracted() int {
	total := 0
	for _, rec := range m.Sections {
		total += rec.Size
	}
	return total
}

// Encode renders the manifest as YAML.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return data, nil
}

// LoadManifest reads a manifest file back, for consumers that resolve
// artifacts by name.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, ManifestVersion)
	}
	return &m, nil
}
