package extract

import (
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFilename is the manifest's name inside every output directory.
const ManifestFilename = "manifest.yaml"

// Sink receives the artifacts of one extraction run. The engine never
// touches the filesystem directly, so tests (and callers feeding
// artifacts straight into other tooling) can substitute their own.
type Sink interface {
	// WriteArtifact stores one section's bytes under the given base
	// name and returns the location downstream tools should use.
	WriteArtifact(name string, data []byte) (path string, err error)

	// WriteManifest stores the run's manifest.
	WriteManifest(m *Manifest) (path string, err error)
}

// DirSink writes artifacts into one output directory, one file per
// section plus the manifest. Collision avoidance between concurrent
// runs is the caller's responsibility: give every run its own dir.
type DirSink struct {
	dir string
}

// NewDirSink creates the output directory (and parents) if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

// Dir returns the output directory path.
func (s *DirSink) Dir() string {
	return s.dir
}

// WriteArtifact implements Sink.
func (s *DirSink) WriteArtifact(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name+".bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	return path, nil
}

// WriteManifest implements Sink.
func (s *DirSink) WriteManifest(m *Manifest) (string, error) {
	data, err := m.Encode()
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, ManifestFilename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
