package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ManifestVersion is the layout version written by this package.
const ManifestVersion = 1

// Manifest describes an index directory.
type Manifest struct {
	Version      int    `json:"version"`
	ModelID      string `json:"model_id"`
	Dims         int    `json:"dims"`
	Docs         int    `json:"docs"`
	DocMaxTokens int    `json:"doc_max_tokens"`
	VectorFile   string `json:"vector_file"`
	MetadataFile string `json:"metadata_file"`
	CreatedAt    string `json:"created_at"`
}

// WriteManifest writes m to dir, filling in defaults for empty fields.
func WriteManifest(dir string, m Manifest) error {
	if m.Dims <= 0 {
		return fmt.Errorf("invalid dims: %d", m.Dims)
	}
	if m.Version == 0 {
		m.Version = ManifestVersion
	}
	if m.VectorFile == "" {
		m.VectorFile = VectorFile
	}
	if m.MetadataFile == "" {
		m.MetadataFile = MetadataFile
	}
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := Layout{Dir: dir}.ManifestPath()
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("cannot write manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest in dir. It returns (nil, nil) when the directory has none.
func ReadManifest(dir string) (*Manifest, error) {
	path := Layout{Dir: dir}.ManifestPath()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON %s: %w", path, err)
	}
	if m.Dims <= 0 {
		return nil, fmt.Errorf("%w: invalid dims in manifest: %d", ErrInconsistent, m.Dims)
	}
	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d is newer than supported %d", ErrInconsistent, m.Version, ManifestVersion)
	}
	return &m, nil
}
