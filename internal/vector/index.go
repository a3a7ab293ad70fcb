// Package vector provides the flat vector file format: a streaming writer used at
// build time and a memory-mapped, read-only store answering top-k inner product queries.
//
// The file is a raw row-major array of little-endian float32 values with no header.
// Row i occupies bytes [i*dims*4, (i+1)*dims*4).
package vector

import "errors"

// IndexType is reported by health checks for the flat inner-product index.
const IndexType = "FlatIP (in-process)"

var (
	// ErrFormat is returned when a vector file cannot be interpreted with the given dimensions.
	ErrFormat = errors.New("invalid vector file format")
	// ErrDimensionMismatch is returned when a vector's length differs from the store's dimensions.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrClosed is returned by operations on a closed store or writer.
	ErrClosed = errors.New("vector store closed")
	// ErrRowOutOfRange is returned by Row for indices outside [0, Len()).
	ErrRowOutOfRange = errors.New("row out of range")
)

// Hit is a single search result: the 0-based row in the vector file and its inner product with the query.
type Hit struct {
	Row   int
	Score float32
}
