package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/localsearch/internal/models"
)

const schema = `
CREATE TABLE doc (
	doc_id TEXT PRIMARY KEY,
	manga_id INTEGER,
	title TEXT,
	text TEXT
);
CREATE TABLE vec_map (
	row INTEGER PRIMARY KEY,
	doc_id TEXT NOT NULL UNIQUE
);
`

// SQLiteStorage is the doc/vec_map database of one index.
type SQLiteStorage struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// Create makes a new, empty metadata database at path. An existing file is replaced.
// Parent directories are created if they do not exist.
func Create(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale database: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the bulk transaction and the schema on the same handle.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db, path: path}, nil
}

// OpenReadOnly opens an existing metadata database for concurrent lookups.
// maxOpenConns bounds the connection pool; values below 1 mean 1.
func OpenReadOnly(path string, maxOpenConns int) (*SQLiteStorage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("metadata database: %w", err)
	}
	if maxOpenConns < 1 {
		maxOpenConns = 1
	}
	dsn := (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteStorage{db: db, path: path, readOnly: true}, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// GetByRow returns the document mapped to row.
func (s *SQLiteStorage) GetByRow(ctx context.Context, row int) (*models.Document, error) {
	var doc models.Document
	var mangaID sql.NullInt64
	var title, text sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT doc.doc_id, doc.manga_id, doc.title, doc.text
		 FROM vec_map JOIN doc ON vec_map.doc_id = doc.doc_id
		 WHERE vec_map.row = ?`, row,
	).Scan(&doc.DocID, &mangaID, &title, &text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("row %d: %w", row, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup row %d: %w", row, err)
	}
	doc.MangaID = mangaID.Int64
	doc.Title = title.String
	doc.Text = text.String
	return &doc, nil
}

// CountRows returns the number of vec_map rows.
func (s *SQLiteStorage) CountRows(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vec_map`).Scan(&count)
	return count, err
}

// CountDocuments returns the number of doc rows.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc`).Scan(&count)
	return count, err
}

// RowRange returns the smallest and largest vec_map row, or (-1, -1) when empty.
func (s *SQLiteStorage) RowRange(ctx context.Context) (lo, hi int64, err error) {
	var minRow, maxRow sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT MIN(row), MAX(row) FROM vec_map`).Scan(&minRow, &maxRow)
	if err != nil {
		return 0, 0, err
	}
	if !minRow.Valid {
		return -1, -1, nil
	}
	return minRow.Int64, maxRow.Int64, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Batch inserts documents inside one transaction.
type Batch struct {
	tx      *sql.Tx
	docStmt *sql.Stmt
	mapStmt *sql.Stmt
	n       int
}

// Begin starts a bulk insert. Only valid on a database made by Create.
func (s *SQLiteStorage) Begin(ctx context.Context) (*Batch, error) {
	if s.readOnly {
		return nil, errors.New("database is read-only")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	docStmt, err := tx.PrepareContext(ctx, `INSERT INTO doc (doc_id, manga_id, title, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	mapStmt, err := tx.PrepareContext(ctx, `INSERT INTO vec_map (row, doc_id) VALUES (?, ?)`)
	if err != nil {
		_ = docStmt.Close()
		_ = tx.Rollback()
		return nil, err
	}
	return &Batch{tx: tx, docStmt: docStmt, mapStmt: mapStmt}, nil
}

// Insert stores doc and maps row to it. A repeated doc_id or row fails.
func (b *Batch) Insert(ctx context.Context, row int, doc *models.Document) error {
	if _, err := b.docStmt.ExecContext(ctx, doc.DocID, doc.MangaID, doc.Title, doc.Text); err != nil {
		return fmt.Errorf("insert doc %q: %w", doc.DocID, err)
	}
	if _, err := b.mapStmt.ExecContext(ctx, row, doc.DocID); err != nil {
		return fmt.Errorf("insert vec_map row %d: %w", row, err)
	}
	b.n++
	return nil
}

// Len returns the number of documents inserted so far.
func (b *Batch) Len() int {
	return b.n
}

// Commit makes the inserts durable.
func (b *Batch) Commit() error {
	b.closeStmts()
	return b.tx.Commit()
}

// Rollback discards the inserts.
func (b *Batch) Rollback() error {
	b.closeStmts()
	return b.tx.Rollback()
}

func (b *Batch) closeStmts() {
	_ = b.docStmt.Close()
	_ = b.mapStmt.Close()
}
