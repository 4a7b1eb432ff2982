package chat

import (
	"strings"

	"aira/internal/workspace"
)

// Resolve finds the file a tool call addresses. It tries an exact id among
// all files, then a case-insensitive name, and finally falls back to the
// single attached context file of the tool's kind.
func Resolve(files []workspace.File, context []workspace.File, ident string, kind workspace.Kind) (workspace.File, bool) {
	ident = strings.TrimSpace(ident)
	if ident != "" {
		for _, f := range files {
			if f.ID == ident {
				return f, true
			}
		}
		var byName []workspace.File
		for _, f := range files {
			if strings.EqualFold(f.Name, ident) {
				byName = append(byName, f)
			}
		}
		for _, f := range byName {
			if f.Kind == kind {
				return f, true
			}
		}
		if len(byName) > 0 {
			return byName[0], true
		}
	}
	var match workspace.File
	n := 0
	for _, f := range context {
		if f.Kind == kind {
			match = f
			n++
		}
	}
	if n == 1 {
		return match, true
	}
	return workspace.File{}, false
}
