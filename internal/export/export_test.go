package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"aira/internal/workspace"
)

func sampleState() workspace.State {
	folder := "10"
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return workspace.State{
		Folders: []workspace.Folder{{ID: "10", Name: "Q3", CreatedAt: created}},
		Files: []workspace.File{
			{ID: "11", Name: "Plan", Kind: workspace.KindDoc, Content: json.RawMessage(`{"body":{"dataStream":"hello\r\n"}}`), CreatedAt: created, ParentFolderID: &folder},
			{ID: "12", Name: "Budget", Kind: workspace.KindSheet, Content: json.RawMessage(`{}`), CreatedAt: created},
		},
	}
}

func fixedExporter(t *testing.T, format string) *Exporter {
	t.Helper()
	e, err := New(format)
	if err != nil {
		t.Fatalf("New(%q): %v", format, err)
	}
	e.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

func TestJSONExport(t *testing.T) {
	var buf bytes.Buffer
	if err := fixedExporter(t, "json").Write(&buf, sampleState()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Files) != 2 || len(doc.Folders) != 1 {
		t.Fatalf("doc = %+v", doc)
	}
	plan := doc.Files[0]
	if plan.Text != "hello" || plan.Folder != "Q3" {
		t.Fatalf("plan = %+v", plan)
	}
	body, ok := plan.Content.(map[string]any)["body"].(map[string]any)
	if !ok || body["dataStream"] != "hello\r\n" {
		t.Fatalf("content = %#v", plan.Content)
	}
}

func TestYAMLExportSelectedFiles(t *testing.T) {
	var buf bytes.Buffer
	if err := fixedExporter(t, "yml").Write(&buf, sampleState(), "12"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var doc struct {
		Files []struct {
			ID   string `yaml:"id"`
			Type string `yaml:"type"`
		} `yaml:"files"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Files) != 1 || doc.Files[0].ID != "12" || doc.Files[0].Type != "sheet" {
		t.Fatalf("files = %+v", doc.Files)
	}
	if !strings.HasPrefix(buf.String(), "exported_at: 2024-06-01T00:00:00Z") {
		t.Fatalf("yaml = %s", buf.String())
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := New("xml"); err == nil {
		t.Fatalf("expected error")
	}
}
