// Package index ties a vector file, its metadata database and a manifest together
// as one directory, checks that they agree, and publishes new directories atomically.
package index

import (
	"errors"
	"path/filepath"
)

// File names inside an index directory.
const (
	VectorFile   = "vectors.f32"
	MetadataFile = "doc_meta.sqlite"
	ManifestFile = "index.json"
)

// ErrInconsistent means the artifacts of an index directory disagree with each other.
var ErrInconsistent = errors.New("index is inconsistent")

// Layout resolves artifact paths for an index directory.
type Layout struct {
	Dir string
}

// VectorPath returns the path of the flat vector file.
func (l Layout) VectorPath() string { return filepath.Join(l.Dir, VectorFile) }

// MetadataPath returns the path of the SQLite metadata database.
func (l Layout) MetadataPath() string { return filepath.Join(l.Dir, MetadataFile) }

// ManifestPath returns the path of the manifest.
func (l Layout) ManifestPath() string { return filepath.Join(l.Dir, ManifestFile) }
