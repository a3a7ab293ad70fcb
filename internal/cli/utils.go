// Package cli provides CLI utilities for localsearch.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/localsearch/internal/index"
	"github.com/hyperjump/localsearch/internal/models"
	"github.com/hyperjump/localsearch/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json" in any case; empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// Status is what the status command reports, from a server or a local index directory.
type Status struct {
	Source   string                `json:"source"`
	Health   models.HealthResponse `json:"health"`
	IndexDir string                `json:"indexDir,omitempty"`
	Manifest *index.Manifest       `json:"manifest,omitempty"`
	Disk     *index.Usage          `json:"disk,omitempty"`
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", len(response.Hits), response.Query, response.TookMs)
	for _, hit := range response.Hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", hit.Rank, hit.Score)
		fmt.Fprintf(w, "ID: %s (manga %d)\n", hit.DocID, hit.Manga.ID)
		if hit.Manga.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", hit.Manga.Title)
		}
		if hit.Chunk != nil && hit.Chunk.Text != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(hit.Chunk.Text, 200))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteEmbedding writes an embedding to w. Text output shows the first values only.
func WriteEmbedding(w io.Writer, response *models.EmbedResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	const preview = 8
	n := min(preview, len(response.Embedding))
	parts := make([]string, n)
	for i, v := range response.Embedding[:n] {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	more := ""
	if len(response.Embedding) > n {
		more = ", ..."
	}
	fmt.Fprintf(w, "dims: %d\nnormalized: %t\nembedding: [%s%s]\n",
		response.Dims, response.Normalized, strings.Join(parts, ", "), more)
	return nil
}

// WriteStatus writes a status report to w.
func WriteStatus(w io.Writer, st *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Source:     %s\n", st.Source)
	if st.Health.Version != "" {
		fmt.Fprintf(w, "Version:    %s\n", st.Health.Version)
	}
	fmt.Fprintf(w, "Model:      %s (%d dims)\n", st.Health.Model.ID, st.Health.Model.Dims)
	fmt.Fprintf(w, "Index:      %s\n", st.Health.Index.Type)
	fmt.Fprintf(w, "Documents:  %d\n", st.Health.Index.Docs)
	if st.IndexDir != "" {
		fmt.Fprintf(w, "Directory:  %s\n", st.IndexDir)
	}
	if st.Manifest != nil && st.Manifest.CreatedAt != "" {
		fmt.Fprintf(w, "Built:      %s\n", st.Manifest.CreatedAt)
	}
	if st.Disk != nil {
		fmt.Fprintf(w, "Disk usage: %s (vectors %s, metadata %s)\n",
			FormatBytes(st.Disk.TotalBytes), FormatBytes(st.Disk.VectorBytes), FormatBytes(st.Disk.MetadataBytes))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// ReorderArgs moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse sees them. Go's flag package stops at
// the first non-flag argument, so `localsearch search "query" -top-k 5` would
// otherwise leave -top-k unparsed.
func ReorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// JoinArgs joins positional arguments into one query string.
func JoinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
