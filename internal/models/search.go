package models

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query          string `json:"query"`
	TopK           int    `json:"topK"`
	IncludeSnippet bool   `json:"includeSnippet"`
}

// SearchResponse lists hits by descending score; Rank starts at 1.
type SearchResponse struct {
	Query  string      `json:"query"`
	TopK   int         `json:"topK"`
	TookMs int64       `json:"tookMs"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit is one ranked document.
type SearchHit struct {
	Rank  int       `json:"rank"`
	DocID string    `json:"docId"`
	Score float32   `json:"score"`
	Manga MangaMeta `json:"manga"`
	Chunk *Chunk    `json:"chunk,omitempty"`
}

// MangaMeta describes the title a hit belongs to.
type MangaMeta struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// Chunk is a text snippet of a hit. Documents are indexed whole, so ID is always 0.
type Chunk struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// EmbedRequest is the body of POST /api/embed. Normalize defaults to true.
type EmbedRequest struct {
	Text      string `json:"text"`
	Normalize bool   `json:"normalize"`
}

// EmbedResponse carries a single embedding.
type EmbedResponse struct {
	Dims       int       `json:"dims"`
	Normalized bool      `json:"normalized"`
	Embedding  []float32 `json:"embedding"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	OK      bool        `json:"ok"`
	Version string      `json:"version"`
	Model   ModelInfo   `json:"model"`
	Index   IndexStatus `json:"index"`
}

// ModelInfo identifies the embedding model.
type ModelInfo struct {
	ID   string `json:"id"`
	Dims int    `json:"dims"`
}

// IndexStatus describes the served index.
type IndexStatus struct {
	Type string `json:"type"`
	Docs int    `json:"docs"`
}

// Problem is an RFC 7807 problem document.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}
