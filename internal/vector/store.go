package vector

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"unsafe"
)

// Store is a read-only flat vector file answering brute-force inner product queries.
// It owns the memory mapping; slices returned by Row alias the mapping and must not be
// used after Close. Store is safe for concurrent use.
type Store struct {
	path    string
	dims    int
	n       int
	data    []float32
	release func() error

	mu     sync.RWMutex
	closed bool
}

// Open maps the vector file at path. dims must be positive and the file length must be
// a multiple of dims*4 bytes; otherwise ErrFormat is returned. An empty file yields a
// store with zero rows.
func Open(path string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dims must be > 0, got %d", ErrFormat, dims)
	}
	raw, release, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	rowBytes := dims * 4
	if len(raw)%rowBytes != 0 {
		_ = release()
		return nil, fmt.Errorf("%w: %s length %d is not divisible by %d (dims %d)", ErrFormat, path, len(raw), rowBytes, dims)
	}
	data, copied := float32View(raw)
	if copied {
		// The decoded copy does not reference the mapping any more.
		if err := release(); err != nil {
			return nil, fmt.Errorf("unmap vector file: %w", err)
		}
		release = func() error { return nil }
	}
	return &Store{
		path:    path,
		dims:    dims,
		n:       len(raw) / rowBytes,
		data:    data,
		release: release,
	}, nil
}

// Len returns the number of vectors (rows) in the store.
func (s *Store) Len() int {
	return s.n
}

// Dims returns the dimensionality of each vector.
func (s *Store) Dims() int {
	return s.dims
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Row returns the vector at row i. The slice aliases the mapping and is valid until Close.
func (s *Store) Row(i int) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if i < 0 || i >= s.n {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrRowOutOfRange, i, s.n)
	}
	start := i * s.dims
	end := start + s.dims
	return s.data[start:end:end], nil
}

// SearchTopK scores every row against query by inner product and returns the best
// min(k, Len()) rows ordered by descending score, ties by ascending row. k values below
// 1 are treated as 1. An empty store yields an empty result for any k. Rows whose score
// is NaN are skipped.
func (s *Store) SearchTopK(query []float32, k int) ([]Hit, error) {
	if len(query) != s.dims {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(query), s.dims)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.n == 0 {
		return []Hit{}, nil
	}

	best := newTopK(effectiveK(k, s.n))
	for i := 0; i < s.n; i++ {
		start := i * s.dims
		score := Dot(query, s.data[start:start+s.dims])
		if isNaN32(score) {
			continue
		}
		best.offer(i, score)
	}
	return best.sorted(), nil
}

// Close releases the mapping. It waits for in-flight searches and is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.data = nil
	if s.release != nil {
		return s.release()
	}
	return nil
}

// effectiveK clamps k to [1, n] for n > 0.
func effectiveK(k, n int) int {
	if k > n {
		k = n
	}
	if k < 1 {
		k = 1
	}
	return k
}

var hostLittleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// float32View reinterprets raw little-endian bytes as float32 values without copying
// when the host is little-endian and the buffer is 4-byte aligned; otherwise it decodes
// into a new slice and reports copied=true.
func float32View(raw []byte) (data []float32, copied bool) {
	if len(raw) == 0 {
		return nil, false
	}
	if hostLittleEndian && uintptr(unsafe.Pointer(&raw[0]))%4 == 0 {
		return unsafe.Slice((*float32)(unsafe.Pointer(&raw[0])), len(raw)/4), false
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, true
}
