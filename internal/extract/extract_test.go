package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func TestBytes_plain(t *testing.T) {
	got, err := Bytes([]byte("Hello world\nLine 2"), ".txt")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello world\nLine 2" {
		t.Errorf("got %q", got)
	}
}

func TestPlain_invalidUTF8(t *testing.T) {
	if got := Plain([]byte("hello\x80world")); got != "hello�world" {
		t.Errorf("got %q", got)
	}
	if got := Plain([]byte("caf\xc3\xa9")); got != "café" {
		t.Errorf("got %q", got)
	}
}

func TestBytes_xlsx(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := Bytes(buf.Bytes(), ".XLSX")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Title\nValue 1\tValue 2" {
		t.Errorf("got %q", got)
	}
}

func TestBytes_docx(t *testing.T) {
	doc := `<?xml version="1.0"?><w:document ` + wordNS + `><w:body>` +
		`<w:p w:rsidR="00A1"><w:r><w:t>Searchable</w:t></w:r><w:r><w:t xml:space="preserve"> docx</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>second paragraph</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	got, err := Bytes(zipOf(t, map[string]string{"word/document.xml": doc}), ".docx")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Searchable docx\nsecond paragraph" {
		t.Errorf("got %q", got)
	}
}

func TestBytes_docxMainPartFromContentTypes(t *testing.T) {
	types := `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Override ContentType="` + docxMainType + `" PartName="/word/document2.xml"/></Types>`
	doc := `<w:document ` + wordNS + `><w:body><w:p><w:r><w:t>moved body</w:t></w:r></w:p></w:body></w:document>`
	got, err := Bytes(zipOf(t, map[string]string{
		docxContentTypes:     types,
		"word/document2.xml": doc,
	}), ".docx")
	if err != nil {
		t.Fatal(err)
	}
	if got != "moved body" {
		t.Errorf("got %q", got)
	}
}

func TestBytes_docxNotZip(t *testing.T) {
	if _, err := Bytes([]byte("plain bytes"), ".docx"); err == nil {
		t.Error("expected error")
	}
}

func TestBytes_docxMissingPart(t *testing.T) {
	if _, err := Bytes(zipOf(t, map[string]string{"other.xml": "<x/>"}), ".docx"); err == nil {
		t.Error("expected error for missing document part")
	}
}

func TestBytes_pdfInvalid(t *testing.T) {
	if _, err := Bytes([]byte("not a pdf"), ".pdf"); err == nil {
		t.Error("expected error")
	}
}

func TestSupported(t *testing.T) {
	for path, want := range map[string]bool{
		"a.pdf":        true,
		"b.XLSX":       true,
		"c.docx":       true,
		"d.jsonl":      false,
		"e.txt":        false,
		"no-extension": false,
	} {
		if got := Supported(path); got != want {
			t.Errorf("Supported(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "File content" {
		t.Errorf("got %q", got)
	}

	if _, err := File(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}
