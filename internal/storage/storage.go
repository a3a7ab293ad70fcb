// Package storage persists document metadata next to the vector file: a doc table
// keyed by doc_id and a vec_map table joining vector rows to documents.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/localsearch/internal/models"
)

// ErrNotFound is returned when a row has no metadata.
var ErrNotFound = errors.New("not found")

// Reader is the read side used at query time.
type Reader interface {
	// GetByRow returns the document mapped to a vector row, or ErrNotFound.
	GetByRow(ctx context.Context, row int) (*models.Document, error)
	// CountRows returns the number of vec_map rows.
	CountRows(ctx context.Context) (int64, error)
	Close() error
}
