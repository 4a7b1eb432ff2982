package workspace

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyName     = errors.New("name is required")
	ErrInvalidKind   = errors.New("kind must be doc or sheet")
	ErrUnknownFolder = errors.New("unknown folder")
	ErrUnknownFile   = errors.New("unknown file")
	ErrTabNotOpen    = errors.New("tab is not open")
)

// Kind is the editor family of a file. It never changes after creation.
type Kind string

const (
	KindDoc   Kind = "doc"
	KindSheet Kind = "sheet"
)

// ParseKind accepts "doc" or "sheet" (case-insensitive, with a few aliases).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "doc", "document":
		return KindDoc, nil
	case "sheet", "spreadsheet":
		return KindSheet, nil
	}
	return "", ErrInvalidKind
}

// File is one document or spreadsheet. Content is the editor's opaque snapshot.
type File struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Kind           Kind            `json:"type"`
	Content        json.RawMessage `json:"content"`
	CreatedAt      time.Time       `json:"createdAt"`
	ParentFolderID *string         `json:"parentFolderId,omitempty"`
}

// Folder groups files one level deep.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tab is a reference to an open file. Name and kind are copied when the tab opens.
type Tab struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"type"`
}

// State is the complete workspace snapshot handed to readers and subscribers.
type State struct {
	Files     []File   `json:"files"`
	Folders   []Folder `json:"folders"`
	OpenTabs  []Tab    `json:"openTabs"`
	ActiveTab *string  `json:"activeTab"`
}

// Records is the durable part of the state.
type Records struct {
	Files   []File   `json:"files"`
	Folders []Folder `json:"folders"`
}

// Persister reads and writes the two durable records.
type Persister interface {
	Load() (Records, error)
	Save(Records) error
}

// PathProvider is implemented by persisters backed by files that can be watched.
type PathProvider interface {
	Paths() []string
}

func (s State) clone() State {
	out := State{
		Files:    make([]File, len(s.Files)),
		Folders:  make([]Folder, len(s.Folders)),
		OpenTabs: make([]Tab, len(s.OpenTabs)),
	}
	for i, f := range s.Files {
		out.Files[i] = f.clone()
	}
	copy(out.Folders, s.Folders)
	copy(out.OpenTabs, s.OpenTabs)
	if s.ActiveTab != nil {
		id := *s.ActiveTab
		out.ActiveTab = &id
	}
	return out
}

func (f File) clone() File {
	if f.Content != nil {
		f.Content = append(json.RawMessage(nil), f.Content...)
	}
	if f.ParentFolderID != nil {
		p := *f.ParentFolderID
		f.ParentFolderID = &p
	}
	return f
}

// Active returns the active tab id, or "" when none.
func (s State) Active() string {
	if s.ActiveTab == nil {
		return ""
	}
	return *s.ActiveTab
}

// TabOpen reports whether a tab for id is open.
func (s State) TabOpen(id string) bool {
	for _, t := range s.OpenTabs {
		if t.ID == id {
			return true
		}
	}
	return false
}

func (s State) fileIndex(id string) int {
	for i, f := range s.Files {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (s State) folderIndex(id string) int {
	for i, f := range s.Folders {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func strPtr(s string) *string { return &s }
