// Package extract pulls plain text out of rich document formats so their content can
// be indexed as a single plain-text document.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

type textFunc func(content []byte) (string, error)

var byExt = map[string]textFunc{
	".pdf":  pdfText,
	".xlsx": xlsxText,
	".docx": docxText,
}

// Supported reports whether path has a rich format this package can read.
func Supported(path string) bool {
	_, ok := byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// File reads path and returns its text. Files without a rich format extension are
// returned as UTF-8 text.
func File(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return Bytes(content, filepath.Ext(path))
}

// Bytes extracts text from content according to ext (with leading dot).
func Bytes(content []byte, ext string) (string, error) {
	if fn, ok := byExt[strings.ToLower(ext)]; ok {
		return fn(content)
	}
	return Plain(content), nil
}

// Plain returns content as a string, replacing invalid UTF-8 with U+FFFD.
func Plain(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "\ufffd")
}
