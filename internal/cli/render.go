package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"aira/internal/state"
	"aira/internal/workspace"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	folderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("135"))

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	activeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// renderTree prints folders first, then root files. Open files are marked
// with "*", the active one with ">".
func renderTree(w io.Writer, tree workspace.Tree) {
	if len(tree.Folders) == 0 && len(tree.Root) == 0 {
		fmt.Fprintln(w, idStyle.Render("(no files yet)"))
		return
	}
	for _, node := range tree.Folders {
		fmt.Fprintf(w, "%s %s\n", folderStyle.Render(node.Folder.Name+"/"), idStyle.Render(node.Folder.ID))
		for _, e := range node.Files {
			fmt.Fprintln(w, "  "+entryLine(e))
		}
	}
	for _, e := range tree.Root {
		fmt.Fprintln(w, entryLine(e))
	}
}

func entryLine(e workspace.Entry) string {
	mark := " "
	name := nameStyle.Render(e.Name)
	switch {
	case e.Active:
		mark = ">"
		name = activeStyle.Render(e.Name)
	case e.Open:
		mark = "*"
	}
	return fmt.Sprintf("%s %s %s %s", mark, name, kindStyle.Render("["+string(e.Kind)+"]"), idStyle.Render(e.ID))
}

// renderFileTable prints one row per file, like `ls -l`.
func renderFileTable(w io.Writer, st workspace.State) error {
	folders := make(map[string]string, len(st.Folders))
	for _, f := range st.Folders {
		folders[f.ID] = f.Name
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("ID")+"\t"+headerStyle.Render("NAME")+"\t"+headerStyle.Render("TYPE")+"\t"+headerStyle.Render("FOLDER")+"\t"+headerStyle.Render("CREATED"))
	for _, f := range st.Files {
		folder := "-"
		if f.ParentFolderID != nil {
			if name, ok := folders[*f.ParentFolderID]; ok {
				folder = name
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			idStyle.Render(f.ID),
			nameStyle.Render(f.Name),
			kindStyle.Render(string(f.Kind)),
			folder,
			dateStyle.Render(f.CreatedAt.Local().Format("2006-01-02 15:04")),
		)
	}
	return tw.Flush()
}

func renderTabs(w io.Writer, st workspace.State) {
	if len(st.OpenTabs) == 0 {
		fmt.Fprintln(w, idStyle.Render("(no open tabs)"))
		return
	}
	active := st.Active()
	for _, tab := range st.OpenTabs {
		label := nameStyle.Render(tab.Name)
		mark := " "
		if tab.ID == active {
			label = activeStyle.Render(tab.Name)
			mark = ">"
		}
		fmt.Fprintf(w, "%s %s %s %s\n", mark, label, kindStyle.Render("["+string(tab.Kind)+"]"), idStyle.Render(tab.ID))
	}
}

func renderSessions(w io.Writer, summaries []state.Summary, current string) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, idStyle.Render("(no conversations yet)"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, s := range summaries {
		key := nameStyle.Render(s.Key)
		if s.Key == current {
			key = activeStyle.Render(s.Key + " *")
		}
		fmt.Fprintf(tw, "%s\t%d messages\t%s\n", key, s.MessageCount, dateStyle.Render(s.UpdatedAt.Local().Format("2006-01-02 15:04")))
	}
	_ = tw.Flush()
}

// renderContext lists the selected context files by name.
func renderContext(w io.Writer, store *workspace.Store, ids []string) {
	if len(ids) == 0 {
		fmt.Fprintln(w, idStyle.Render("(no context files selected)"))
		return
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if f, ok := store.File(id); ok {
			names = append(names, fmt.Sprintf("%s %s", nameStyle.Render(f.Name), idStyle.Render(f.ID)))
			continue
		}
		names = append(names, idStyle.Render(id+" (deleted)"))
	}
	fmt.Fprintln(w, "context: "+strings.Join(names, ", "))
}
