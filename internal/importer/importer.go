// Package importer turns HTML, CSV and plain text files into workspace files.
package importer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"aira/internal/editor"
	"aira/internal/workspace"
)

// ErrUnsupportedFormat is returned for file extensions Import does not know.
var ErrUnsupportedFormat = errors.New("unsupported import format")

// Doc is imported document text: a title and paragraphs in reading order.
type Doc struct {
	Title  string
	Blocks []string
}

// Snapshot renders the document as editor content for fileID.
func (d Doc) Snapshot(fileID string) (json.RawMessage, error) {
	inst := editor.DocEngine{}.Blank(fileID)
	defer inst.Dispose()
	appender, ok := inst.(editor.TextAppender)
	if !ok {
		return nil, fmt.Errorf("%w: document engine cannot append", editor.ErrUnsupported)
	}
	if err := appender.AppendText(strings.Join(d.Blocks, "\r")); err != nil {
		return nil, err
	}
	return inst.Snapshot()
}

// HTMLToDoc extracts the title and the text of headings, paragraphs, list
// items and preformatted blocks.
func HTMLToDoc(r io.Reader) (Doc, error) {
	page, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Doc{}, fmt.Errorf("parse html: %w", err)
	}
	doc := Doc{Title: strings.TrimSpace(page.Find("title").First().Text())}
	page.Find("h1, h2, h3, h4, h5, h6, p, li, pre").Each(func(_ int, sel *goquery.Selection) {
		// A paragraph inside a list item is already covered by the item.
		if sel.Is("p") && sel.ParentsFiltered("li").Length() > 0 {
			return
		}
		text := sel.Text()
		if !sel.Is("pre") {
			text = strings.Join(strings.Fields(text), " ")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if sel.Is("li") {
			text = "- " + text
		}
		doc.Blocks = append(doc.Blocks, text)
	})
	if doc.Title == "" {
		doc.Title = strings.TrimSpace(page.Find("h1").First().Text())
	}
	return doc, nil
}

// TextToDoc splits plain text into paragraphs on blank lines.
func TextToDoc(r io.Reader) (Doc, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Doc{}, err
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	var doc Doc
	for _, para := range strings.Split(text, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			doc.Blocks = append(doc.Blocks, para)
		}
	}
	return doc, nil
}

// Sheet is imported tabular data.
type Sheet struct {
	Rows [][]string
}

// Snapshot renders the rows into the first sheet of a workbook for fileID.
func (s Sheet) Snapshot(fileID string) (json.RawMessage, error) {
	inst := editor.SheetEngine{}.Blank(fileID)
	defer inst.Dispose()
	setter, ok := inst.(editor.CellSetter)
	if !ok {
		return nil, fmt.Errorf("%w: sheet engine cannot set cells", editor.ErrUnsupported)
	}
	cols := 0
	for _, row := range s.Rows {
		cols = max(cols, len(row))
	}
	if resizer, ok := inst.(editor.Resizer); ok {
		resizer.EnsureSize(len(s.Rows), cols)
	}
	for r, row := range s.Rows {
		for c, value := range row {
			if value == "" {
				continue
			}
			if err := setter.SetCell(r, c, value); err != nil {
				return nil, fmt.Errorf("cell %s: %w", editor.FormatA1(r, c), err)
			}
		}
	}
	return inst.Snapshot()
}

// CSVToSheet reads comma separated rows. Ragged rows are accepted.
func CSVToSheet(r io.Reader) (Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return Sheet{}, fmt.Errorf("parse csv: %w", err)
	}
	return Sheet{Rows: rows}, nil
}

// Import reads path and creates a matching file in store. The file name is
// the HTML title when there is one, otherwise the base name without extension.
func Import(store *workspace.Store, path string) (workspace.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return workspace.File{}, fmt.Errorf("read %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var (
		kind     workspace.Kind
		snapshot func(string) (json.RawMessage, error)
	)
	switch ext {
	case ".html", ".htm":
		doc, err := HTMLToDoc(bytes.NewReader(data))
		if err != nil {
			return workspace.File{}, err
		}
		if doc.Title != "" {
			name = doc.Title
		}
		kind, snapshot = workspace.KindDoc, doc.Snapshot
	case ".txt", ".md":
		doc, err := TextToDoc(bytes.NewReader(data))
		if err != nil {
			return workspace.File{}, err
		}
		kind, snapshot = workspace.KindDoc, doc.Snapshot
	case ".csv":
		sheet, err := CSVToSheet(bytes.NewReader(data))
		if err != nil {
			return workspace.File{}, err
		}
		kind, snapshot = workspace.KindSheet, sheet.Snapshot
	default:
		return workspace.File{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := store.CreateFile(name, kind)
	if err != nil {
		return workspace.File{}, err
	}
	content, err := snapshot(f.ID)
	if err != nil {
		store.DeleteFile(f.ID)
		return workspace.File{}, err
	}
	store.UpdateFile(f.ID, content)
	f, _ = store.File(f.ID)
	return f, nil
}
