package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Writer appends fixed-dimension vectors to a flat vector file.
type Writer struct {
	f      *os.File
	w      *bufio.Writer
	dims   int
	count  int
	buf    []byte
	closed bool
}

// NewWriter creates (or truncates) the file at path for vectors of the given dimensions.
func NewWriter(path string, dims int) (*Writer, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dims must be > 0, got %d", ErrFormat, dims)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create vector file: %w", err)
	}
	return &Writer{
		f:    f,
		w:    bufio.NewWriterSize(f, 1<<20),
		dims: dims,
		buf:  make([]byte, dims*4),
	}, nil
}

// Append writes vec as the next row.
func (w *Writer) Append(vec []float32) error {
	if w.closed {
		return ErrClosed
	}
	if len(vec) != w.dims {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), w.dims)
	}
	for i, v := range vec {
		binary.LittleEndian.PutUint32(w.buf[i*4:], math.Float32bits(v))
	}
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("write vector row %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Count returns the number of rows written so far.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes buffered rows, syncs the file to disk, and closes it.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.w.Flush(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("flush vector file: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("sync vector file: %w", err)
	}
	return w.f.Close()
}
