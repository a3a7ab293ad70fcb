package corpus

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/localsearch/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll(t *testing.T, path string) (Format, []models.Document, error) {
	t.Helper()
	r, err := Open(path)
	if err != nil {
		return FormatEmpty, nil, err
	}
	defer r.Close()
	var docs []models.Document
	for {
		doc, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Format(), docs, nil
		}
		if err != nil {
			return r.Format(), docs, err
		}
		docs = append(docs, *doc)
	}
}

func TestReader_jsonl(t *testing.T) {
	path := writeFile(t, "corpus.jsonl",
		`{"docId":"a","mangaId":1,"title":"T1","text":"hello world"}`+"\n"+
			`{"docId":"b","mangaId":2,"title":"T2","text":"goodbye"}`+"\n")

	format, docs, err := readAll(t, path)
	require.NoError(t, err)
	assert.Equal(t, FormatJSONL, format)
	assert.Equal(t, []models.Document{
		{DocID: "a", MangaID: 1, Title: "T1", Text: "hello world"},
		{DocID: "b", MangaID: 2, Title: "T2", Text: "goodbye"},
	}, docs)
}

func TestReader_jsonlDefaultsUseRowNumber(t *testing.T) {
	path := writeFile(t, "corpus.jsonl", "\n\n"+`{"text":"first"}`+"\n\n"+`{"title":null}`+"\n"+`{"docId":"x"}`)

	_, docs, err := readAll(t, path)
	require.NoError(t, err)
	assert.Equal(t, []models.Document{
		{DocID: "manga:0", MangaID: 0, Title: DefaultTitle, Text: "first"},
		{DocID: "manga:1", MangaID: 1, Title: DefaultTitle, Text: ""},
		{DocID: "x", MangaID: 2, Title: DefaultTitle, Text: ""},
	}, docs)
}

func TestReader_malformedLineNamesLine(t *testing.T) {
	path := writeFile(t, "corpus.jsonl", `{"docId":"a"}`+"\n\n"+`{"docId":`+"\n")

	_, docs, err := readAll(t, path)
	require.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "line 3")
	assert.Len(t, docs, 1)
}

func TestReader_wrongFieldType(t *testing.T) {
	path := writeFile(t, "corpus.jsonl", `{"mangaId":"seven"}`)
	_, _, err := readAll(t, path)
	require.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "line 1")
}

func TestReader_plainText(t *testing.T) {
	content := "\n  A story about a cat.\n{not json}\n"
	path := writeFile(t, "summary.txt", content)

	format, docs, err := readAll(t, path)
	require.NoError(t, err)
	assert.Equal(t, FormatPlain, format)
	require.Len(t, docs, 1)
	assert.Equal(t, models.Document{DocID: SummaryDocID, MangaID: 0, Title: SummaryTitle, Text: content}, docs[0])
}

func TestReader_emptyAndBlankFiles(t *testing.T) {
	for name, content := range map[string]string{"empty": "", "blank": " \n\t\n\n"} {
		t.Run(name, func(t *testing.T) {
			format, docs, err := readAll(t, writeFile(t, name+".jsonl", content))
			require.NoError(t, err)
			assert.Equal(t, FormatEmpty, format)
			assert.Empty(t, docs)
		})
	}
}

func TestReader_richDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>rich text</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	format, docs, err := readAll(t, path)
	require.NoError(t, err)
	assert.Equal(t, FormatRich, format)
	require.Len(t, docs, 1)
	assert.Equal(t, SummaryDocID, docs[0].DocID)
	assert.Equal(t, "rich text", docs[0].Text)
}

func TestOpen_missingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.Error(t, err)
}

func TestFormat_String(t *testing.T) {
	assert.Equal(t, "jsonl", FormatJSONL.String())
	assert.Equal(t, "plain", FormatPlain.String())
	assert.Equal(t, "unknown", Format(42).String())
}
