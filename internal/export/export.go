// Package export writes the workspace out as JSON or YAML.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aira/internal/editor"
	"aira/internal/workspace"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Document is the exported workspace.
type Document struct {
	ExportedAt time.Time `json:"exported_at" yaml:"exported_at"`
	Folders    []Folder  `json:"folders" yaml:"folders"`
	Files      []File    `json:"files" yaml:"files"`
}

type Folder struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// File carries both the plain text and the decoded editor snapshot.
type File struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Type      string    `json:"type" yaml:"type"`
	Folder    string    `json:"folder,omitempty" yaml:"folder,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Text      string    `json:"text" yaml:"text"`
	Content   any       `json:"content,omitempty" yaml:"content,omitempty"`
}

// Exporter renders workspace state in one format.
type Exporter struct {
	Format  string
	Engines editor.Engines
	now     func() time.Time
}

// New returns an exporter for format, json or yaml.
func New(format string) (*Exporter, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "", FormatJSON:
		format = FormatJSON
	case FormatYAML, "yml":
		format = FormatYAML
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	return &Exporter{Format: format, Engines: editor.DefaultEngines(), now: time.Now}, nil
}

// Build converts st into a Document. When ids are given only those files are
// included; folders are always listed.
func (e *Exporter) Build(st workspace.State, ids ...string) Document {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	folderNames := make(map[string]string, len(st.Folders))
	doc := Document{ExportedAt: e.now().UTC(), Folders: []Folder{}, Files: []File{}}
	for _, f := range st.Folders {
		folderNames[f.ID] = f.Name
		doc.Folders = append(doc.Folders, Folder{ID: f.ID, Name: f.Name})
	}
	for _, f := range st.Files {
		if len(want) > 0 && !want[f.ID] {
			continue
		}
		out := File{
			ID:        f.ID,
			Name:      f.Name,
			Type:      string(f.Kind),
			CreatedAt: f.CreatedAt,
			Text:      e.Engines.PlainText(f),
		}
		if f.ParentFolderID != nil {
			out.Folder = folderNames[*f.ParentFolderID]
		}
		var content any
		if err := json.Unmarshal(f.Content, &content); err == nil {
			out.Content = content
		}
		doc.Files = append(doc.Files, out)
	}
	return doc
}

// Write renders st to w.
func (e *Exporter) Write(w io.Writer, st workspace.State, ids ...string) error {
	doc := e.Build(st, ids...)
	switch e.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}
