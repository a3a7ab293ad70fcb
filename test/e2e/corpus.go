// Package e2e provides end-to-end tests with a generated corpus and multiple queries.
package e2e

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hyperjump/localsearch/internal/models"
)

// QueryTestCase defines a query and the document IDs its top hits must come from.
// With Exact set, the first hit must be ExpectedDocIDs[0]; otherwise every hit in the
// top TopK must be one of ExpectedDocIDs.
type QueryTestCase struct {
	Query          string
	TopK           int
	Exact          bool
	ExpectedDocIDs []string
	Description    string
}

// Corpus holds documents and query test cases for E2E tests.
type Corpus struct {
	Documents    []models.Document
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

// Title words and genre phrases use disjoint vocabularies, so a title query only
// matches documents sharing a title word and a genre query only documents of that genre.
var (
	titleAdjectives = []string{"Crimson", "Silent", "Iron", "Hollow", "Golden", "Frozen", "Wandering", "Broken", "Hidden", "Eternal"}
	titleNouns      = []string{"Falcon", "Blade", "Lantern", "Garden", "Tide", "Citadel", "Fox", "Compass", "Harbor", "Mirror"}
	genres          = []struct {
		name   string
		phrase string
	}{
		{"shonen", "tournament rival training arc"},
		{"mystery", "detective locked room alibi"},
		{"romance", "confession festival first date"},
		{"isekai", "reincarnated another world guild"},
		{"mecha", "pilot cockpit giant robot"},
	}
	fillers = []string{
		"serialized weekly with colored pages",
		"collected into twelve volumes",
		"adapted into a late night anime",
		"drawn with heavy ink and screentone",
	}
)

// BuildCorpus returns a corpus of n documents (at most 100) with query test cases.
// Every document has a unique two-word title; a query for the title must return it first.
func BuildCorpus(n int) *Corpus {
	n = min(n, len(titleAdjectives)*len(titleNouns))
	docs := make([]models.Document, n)
	byGenre := make(map[string][]string)
	for i := range docs {
		adj := titleAdjectives[i%len(titleAdjectives)]
		noun := titleNouns[i/len(titleAdjectives)]
		g := genres[i%len(genres)]
		docs[i] = models.Document{
			DocID:   fmt.Sprintf("e2e:%03d", i),
			MangaID: int64(1000 + i),
			Title:   adj + " " + noun,
			Text: fmt.Sprintf("%s %s is a %s manga with %s %s",
				adj, noun, g.name, g.phrase, fillers[i%len(fillers)]),
		}
		byGenre[g.name] = append(byGenre[g.name], docs[i].DocID)
	}

	var cases []QueryTestCase
	for i := 0; i < n; i += 7 {
		cases = append(cases, QueryTestCase{
			Query:          docs[i].Title,
			TopK:           3,
			Exact:          true,
			ExpectedDocIDs: []string{docs[i].DocID},
			Description:    "title " + docs[i].Title,
		})
	}
	for _, g := range genres {
		ids := byGenre[g.name]
		if len(ids) == 0 {
			continue
		}
		cases = append(cases, QueryTestCase{
			Query:          g.phrase,
			TopK:           min(5, len(ids)),
			ExpectedDocIDs: ids,
			Description:    "genre " + g.name,
		})
	}
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

// WriteJSONL writes the documents as one JSON object per line.
func (c *Corpus) WriteJSONL(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range c.Documents {
		if err := enc.Encode(&c.Documents[i]); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// DocByID returns the document with id, or nil.
func (c *Corpus) DocByID(id string) *models.Document {
	for i := range c.Documents {
		if c.Documents[i].DocID == id {
			return &c.Documents[i]
		}
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func describeHits(hits []models.SearchHit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("%s(%.3f)", h.DocID, h.Score)
	}
	return strings.Join(parts, ", ")
}
