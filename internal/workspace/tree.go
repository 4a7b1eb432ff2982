package workspace

import "time"

// Entry is a file without its content, for listings.
type Entry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Kind           Kind      `json:"type"`
	CreatedAt      time.Time `json:"createdAt"`
	ParentFolderID *string   `json:"parentFolderId,omitempty"`
	Open           bool      `json:"open"`
	Active         bool      `json:"active"`
}

// FolderNode is a folder and the files inside it.
type FolderNode struct {
	Folder Folder  `json:"folder"`
	Files  []Entry `json:"files"`
}

// Tree is the render order of the shell: folders first, then root files.
type Tree struct {
	Folders []FolderNode `json:"folders"`
	Root    []Entry      `json:"root"`
}

// Tree groups files by folder. A parent reference naming a folder that no
// longer exists renders the file at the root.
func (s *Store) Tree() Tree {
	return BuildTree(s.State())
}

// BuildTree groups the files of st by folder.
func BuildTree(st State) Tree {
	tree := Tree{Folders: make([]FolderNode, 0, len(st.Folders)), Root: []Entry{}}
	index := make(map[string]int, len(st.Folders))
	for i, f := range st.Folders {
		index[f.ID] = i
		tree.Folders = append(tree.Folders, FolderNode{Folder: f, Files: []Entry{}})
	}
	active := st.Active()
	for _, f := range st.Files {
		e := Entry{
			ID:             f.ID,
			Name:           f.Name,
			Kind:           f.Kind,
			CreatedAt:      f.CreatedAt,
			ParentFolderID: f.ParentFolderID,
			Open:           st.TabOpen(f.ID),
			Active:         f.ID == active,
		}
		if f.ParentFolderID != nil {
			if i, ok := index[*f.ParentFolderID]; ok {
				tree.Folders[i].Files = append(tree.Folders[i].Files, e)
				continue
			}
		}
		tree.Root = append(tree.Root, e)
	}
	return tree
}
