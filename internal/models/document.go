// Package models defines the documents stored in an index and the request and
// response bodies exchanged with the search service.
package models

// Document is one indexed record. It is immutable once the index is built.
type Document struct {
	DocID   string `json:"docId"`
	MangaID int64  `json:"mangaId"`
	Title   string `json:"title"`
	Text    string `json:"text"`
}

// SourceLocal tags hits served from the in-process index.
const SourceLocal = "local"
