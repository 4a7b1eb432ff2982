package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"aira/internal/workspace"
)

const (
	filesName   = "files.json"
	foldersName = "folders.json"
)

// JSONStore keeps files and folders in two JSON documents inside a directory.
type JSONStore struct {
	dir string
}

// NewJSONStore prepares dir for use.
func NewJSONStore(dir string) (*JSONStore, error) {
	if dir == "" {
		return nil, errors.New("json store directory must be set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

// Paths lists the files the store writes.
func (s *JSONStore) Paths() []string {
	return []string{filepath.Join(s.dir, filesName), filepath.Join(s.dir, foldersName)}
}

// Load reads both documents. A missing document is an empty list.
func (s *JSONStore) Load() (workspace.Records, error) {
	var recs workspace.Records
	if err := readJSON(filepath.Join(s.dir, filesName), &recs.Files); err != nil {
		return workspace.Records{}, err
	}
	if err := readJSON(filepath.Join(s.dir, foldersName), &recs.Folders); err != nil {
		return workspace.Records{}, err
	}
	if recs.Files == nil {
		recs.Files = []workspace.File{}
	}
	if recs.Folders == nil {
		recs.Folders = []workspace.Folder{}
	}
	// MarshalIndent re-indents embedded snapshots.
	for i, f := range recs.Files {
		var buf bytes.Buffer
		if err := json.Compact(&buf, f.Content); err == nil {
			recs.Files[i].Content = json.RawMessage(buf.Bytes())
		}
	}
	return recs, nil
}

// Save writes both documents, each through a temp file and a rename.
func (s *JSONStore) Save(recs workspace.Records) error {
	files := recs.Files
	if files == nil {
		files = []workspace.File{}
	}
	folders := recs.Folders
	if folders == nil {
		folders = []workspace.Folder{}
	}
	if err := writeJSON(filepath.Join(s.dir, filesName), files); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.dir, foldersName), folders)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
