// Package corpus reads the builder's input: JSON Lines with one document per line, or
// any other file taken whole as a single plain-text document.
package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hyperjump/localsearch/internal/extract"
	"github.com/hyperjump/localsearch/internal/models"
)

// Format is the detected layout of a corpus file.
type Format int

const (
	// FormatEmpty is a file with no non-blank line.
	FormatEmpty Format = iota
	// FormatJSONL has one JSON object per line.
	FormatJSONL
	// FormatPlain is one document holding the whole file.
	FormatPlain
	// FormatRich is a PDF, XLSX or DOCX whose text becomes one document.
	FormatRich
)

func (f Format) String() string {
	switch f {
	case FormatEmpty:
		return "empty"
	case FormatJSONL:
		return "jsonl"
	case FormatPlain:
		return "plain"
	case FormatRich:
		return "rich"
	}
	return "unknown"
}

// Fallback document fields used for plain-text and rich inputs.
const (
	SummaryDocID = "manga:summary"
	SummaryTitle = "summary"
	DefaultTitle = "(no title)"
)

// ErrMalformed wraps JSON errors; the message names the offending line.
var ErrMalformed = errors.New("malformed corpus line")

// record is a JSONL line. Absent or null fields take per-row defaults.
type record struct {
	DocID   *string `json:"docId"`
	MangaID *int64  `json:"mangaId"`
	Title   *string `json:"title"`
	Text    *string `json:"text"`
}

// Reader yields documents in file order.
type Reader struct {
	format Format
	f      *os.File
	br     *bufio.Reader
	line   int
	row    int64
	single *models.Document
}

// Open detects the format of path and prepares to read it.
func Open(path string) (*Reader, error) {
	if extract.Supported(path) {
		text, err := extract.File(path)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", path, err)
		}
		return &Reader{format: FormatRich, single: summaryDoc(text)}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	format, err := sniff(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rewind corpus: %w", err)
	}

	r := &Reader{format: format}
	switch format {
	case FormatEmpty:
		_ = f.Close()
	case FormatPlain:
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read corpus: %w", err)
		}
		r.single = summaryDoc(extract.Plain(content))
	case FormatJSONL:
		r.f = f
		r.br = bufio.NewReaderSize(f, 1<<20)
	}
	return r, nil
}

// sniff classifies the file by its first non-blank line.
func sniff(f *os.File) (Format, error) {
	br := bufio.NewReader(f)
	for {
		line, err := br.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if strings.HasPrefix(trimmed, "{") {
				return FormatJSONL, nil
			}
			return FormatPlain, nil
		}
		if errors.Is(err, io.EOF) {
			return FormatEmpty, nil
		}
		if err != nil {
			return FormatEmpty, fmt.Errorf("read corpus: %w", err)
		}
	}
}

func summaryDoc(text string) *models.Document {
	return &models.Document{DocID: SummaryDocID, MangaID: 0, Title: SummaryTitle, Text: text}
}

// Format returns the detected format.
func (r *Reader) Format() Format {
	return r.format
}

// Next returns the next document, or io.EOF when the corpus is exhausted.
func (r *Reader) Next() (*models.Document, error) {
	switch r.format {
	case FormatPlain, FormatRich:
		if r.single == nil {
			return nil, io.EOF
		}
		doc := r.single
		r.single = nil
		r.row++
		return doc, nil
	case FormatJSONL:
		return r.nextJSON()
	}
	return nil, io.EOF
}

func (r *Reader) nextJSON() (*models.Document, error) {
	for {
		raw, err := r.br.ReadBytes('\n')
		if len(raw) == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read corpus line %d: %w", r.line+1, err)
		}
		r.line++
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			continue
		}

		var rec record
		if jerr := json.Unmarshal(raw, &rec); jerr != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, r.line, jerr)
		}
		doc := r.withDefaults(rec)
		r.row++
		return doc, nil
	}
}

func (r *Reader) withDefaults(rec record) *models.Document {
	doc := &models.Document{
		DocID:   "manga:" + strconv.FormatInt(r.row, 10),
		MangaID: r.row,
		Title:   DefaultTitle,
	}
	if rec.DocID != nil {
		doc.DocID = *rec.DocID
	}
	if rec.MangaID != nil {
		doc.MangaID = *rec.MangaID
	}
	if rec.Title != nil {
		doc.Title = *rec.Title
	}
	if rec.Text != nil {
		doc.Text = *rec.Text
	}
	return doc
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
