package index

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"

	"github.com/hyperjump/localsearch/internal/storage"
	"github.com/hyperjump/localsearch/internal/vector"
)

// Index is an opened, validated index directory. Both stores are read-only.
type Index struct {
	// Dir is the directory the index was opened as; Path is where its files live.
	// They differ when Dir is a published link.
	Dir      string
	Path     string
	Manifest *Manifest
	Vectors  *vector.Store
	Meta     *storage.SQLiteStorage

	lease *flock.Flock
}

// OpenOptions configures Open.
type OpenOptions struct {
	// Dims is the expected vector dimension. Zero takes it from the manifest.
	Dims int
	// MaxOpenConns bounds the metadata connection pool.
	MaxOpenConns int
}

// Open maps the vector file of dir, opens its metadata read-only, and checks that
// vec_map holds exactly rows 0..N-1 and that the manifest, when present, agrees.
// When dir is a published link, the version it points at stays open for the life of
// the Index even if a newer build is published meanwhile.
func Open(ctx context.Context, dir string, opts OpenOptions) (*Index, error) {
	path, lease, err := resolve(ctx, dir)
	if err != nil {
		return nil, err
	}
	idx, err := openAt(ctx, path, opts)
	if err != nil {
		if lease != nil {
			_ = lease.Unlock()
		}
		return nil, err
	}
	idx.Dir = dir
	idx.lease = lease
	return idx, nil
}

func openAt(ctx context.Context, dir string, opts OpenOptions) (*Index, error) {
	layout := Layout{Dir: dir}
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	dims := opts.Dims
	if m != nil {
		if dims == 0 {
			dims = m.Dims
		} else if m.Dims != dims {
			return nil, fmt.Errorf("%w: manifest dims %d, expected %d", ErrInconsistent, m.Dims, dims)
		}
	}
	if dims <= 0 {
		return nil, fmt.Errorf("%w: no manifest in %s and no dimension configured", ErrInconsistent, dir)
	}

	vecs, err := vector.Open(layout.VectorPath(), dims)
	if err != nil {
		return nil, fmt.Errorf("open vectors: %w", err)
	}
	meta, err := storage.OpenReadOnly(layout.MetadataPath(), opts.MaxOpenConns)
	if err != nil {
		_ = vecs.Close()
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	idx := &Index{Dir: dir, Path: dir, Manifest: m, Vectors: vecs, Meta: meta}
	if err := idx.check(ctx); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) check(ctx context.Context) error {
	n := idx.Vectors.Len()
	rows, err := idx.Meta.CountRows(ctx)
	if err != nil {
		return fmt.Errorf("count vec_map rows: %w", err)
	}
	if rows != int64(n) {
		return fmt.Errorf("%w: vec_map has %d rows, vector file has %d", ErrInconsistent, rows, n)
	}
	if n > 0 {
		lo, hi, err := idx.Meta.RowRange(ctx)
		if err != nil {
			return fmt.Errorf("read vec_map range: %w", err)
		}
		if lo != 0 || hi != int64(n-1) {
			return fmt.Errorf("%w: vec_map rows span [%d,%d], expected [0,%d]", ErrInconsistent, lo, hi, n-1)
		}
	}
	if idx.Manifest != nil && idx.Manifest.Docs != n {
		return fmt.Errorf("%w: manifest lists %d docs, vector file has %d", ErrInconsistent, idx.Manifest.Docs, n)
	}
	return nil
}

// Docs returns the number of indexed documents.
func (idx *Index) Docs() int {
	return idx.Vectors.Len()
}

// Dims returns the vector dimension.
func (idx *Index) Dims() int {
	return idx.Vectors.Dims()
}

// Close releases the vector mapping and the metadata pool, then removes versions that
// nothing uses anymore.
func (idx *Index) Close() error {
	verr := idx.Vectors.Close()
	merr := idx.Meta.Close()
	if idx.lease != nil {
		_ = idx.lease.Unlock()
		idx.lease = nil
		_, _ = Prune(idx.Dir)
	}
	if verr != nil {
		return verr
	}
	return merr
}
