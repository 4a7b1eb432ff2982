package importer

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"aira/internal/editor"
	"aira/internal/workspace"
)

const samplePage = `<html><head><title>Quarterly Plan</title></head>
<body>
  <h1>Goals</h1>
  <p>Ship the   editor
     adapters.</p>
  <ul><li>Docs</li><li><p>Sheets</p></li></ul>
  <pre>a  b</pre>
  <p>   </p>
</body></html>`

func TestHTMLToDoc(t *testing.T) {
	doc, err := HTMLToDoc(strings.NewReader(samplePage))
	if err != nil {
		t.Fatalf("HTMLToDoc: %v", err)
	}
	if doc.Title != "Quarterly Plan" {
		t.Fatalf("title = %q", doc.Title)
	}
	want := []string{"Goals", "Ship the editor adapters.", "- Docs", "- Sheets", "a  b"}
	if !reflect.DeepEqual(doc.Blocks, want) {
		t.Fatalf("blocks = %q, want %q", doc.Blocks, want)
	}

	content, err := doc.Snapshot("7")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	text := editor.DefaultEngines().PlainText(workspace.File{ID: "7", Kind: workspace.KindDoc, Content: content})
	if text != strings.Join(want, "\n") {
		t.Fatalf("text = %q", text)
	}
}

func TestCSVToSheet(t *testing.T) {
	sheet, err := CSVToSheet(strings.NewReader("item,cost\nrent,1200\nfood\n"))
	if err != nil {
		t.Fatalf("CSVToSheet: %v", err)
	}
	if len(sheet.Rows) != 3 || len(sheet.Rows[2]) != 1 {
		t.Fatalf("rows = %q", sheet.Rows)
	}
	content, err := sheet.Snapshot("9")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	text := editor.DefaultEngines().PlainText(workspace.File{ID: "9", Kind: workspace.KindSheet, Content: content})
	if text != "item\tcost\nrent\t1200\nfood\n" {
		t.Fatalf("text = %q", text)
	}
}

func TestWideCSVGrowsSheet(t *testing.T) {
	row := make([]string, 30)
	for i := range row {
		row[i] = "x"
	}
	sheet := Sheet{Rows: [][]string{row}}
	if _, err := sheet.Snapshot("1"); err != nil {
		t.Fatalf("Snapshot of 30 columns: %v", err)
	}
}

func TestImportCreatesFiles(t *testing.T) {
	store, err := workspace.NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	dir := t.TempDir()
	files := map[string]string{
		"page.html":  samplePage,
		"budget.csv": "a,b\n1,2\n",
		"notes.txt":  "first\n\nsecond\n",
		"image.png":  "",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f, err := Import(store, filepath.Join(dir, "page.html"))
	if err != nil || f.Name != "Quarterly Plan" || f.Kind != workspace.KindDoc {
		t.Fatalf("html import = %+v, %v", f, err)
	}
	f, err = Import(store, filepath.Join(dir, "budget.csv"))
	if err != nil || f.Name != "budget" || f.Kind != workspace.KindSheet {
		t.Fatalf("csv import = %+v, %v", f, err)
	}
	f, err = Import(store, filepath.Join(dir, "notes.txt"))
	if err != nil {
		t.Fatalf("txt import: %v", err)
	}
	if text := editor.DefaultEngines().PlainText(f); text != "first\nsecond" {
		t.Fatalf("txt text = %q", text)
	}
	if _, err := Import(store, filepath.Join(dir, "image.png")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("png import = %v", err)
	}
	if n := len(store.Files()); n != 3 {
		t.Fatalf("files = %d, want 3", n)
	}
}
