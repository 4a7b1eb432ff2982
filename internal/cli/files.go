package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aira/internal/editor"
	"aira/internal/workspace"
)

func newFilesCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List and manage workspace files",
	}
	cmd.AddCommand(
		newFilesListCommand(opts),
		newFilesCreateCommand(opts),
		newFilesShowCommand(opts),
		newFilesMoveCommand(opts),
		newFilesDeleteCommand(opts),
	)
	return cmd
}

func newFilesListCommand(opts *globalOptions) *cobra.Command {
	var (
		table  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the file tree",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a.store.Tree())
			case table:
				return renderFileTable(out, a.store.State())
			default:
				renderTree(out, a.store.Tree())
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&table, "table", false, "print one row per file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tree as JSON")
	return cmd
}

func newFilesCreateCommand(opts *globalOptions) *cobra.Command {
	var (
		kind   string
		folder string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a document or spreadsheet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := workspace.ParseKind(kind)
			if err != nil {
				return err
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			var parent *string
			if folder != "" {
				f, ok := a.store.FindFolder(folder)
				if !ok {
					return fmt.Errorf("%w: %s", workspace.ErrUnknownFolder, folder)
				}
				parent = &f.ID
			}
			f, err := a.store.CreateFile(strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			if parent != nil {
				if err := a.store.UpdateFileParent(f.ID, parent); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", nameStyle.Render(f.Name), kindStyle.Render("["+string(f.Kind)+"]"), idStyle.Render(f.ID))
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "doc", "file type: doc or sheet")
	cmd.Flags().StringVar(&folder, "folder", "", "folder name or id to create the file in")
	return cmd
}

func newFilesShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Print a file's plain text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ref := strings.Join(args, " ")
			f, ok := a.store.FindFile(ref)
			if !ok {
				return fmt.Errorf("%w: %s", workspace.ErrUnknownFile, ref)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(editor.DefaultEngines().PlainText(f), "\n"))
			return nil
		},
	}
}

func newFilesMoveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <file> [folder]",
		Short: "Move a file into a folder, or back to the root",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			f, ok := a.store.FindFile(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", workspace.ErrUnknownFile, args[0])
			}
			var parent *string
			if len(args) == 2 {
				folder, ok := a.store.FindFolder(args[1])
				if !ok {
					return fmt.Errorf("%w: %s", workspace.ErrUnknownFolder, args[1])
				}
				parent = &folder.ID
			}
			if err := a.store.UpdateFileParent(f.ID, parent); err != nil {
				return err
			}
			renderTree(cmd.OutOrStdout(), a.store.Tree())
			return nil
		},
	}
}

func newFilesDeleteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <file>",
		Aliases: []string{"rm"},
		Short:   "Delete a file",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ref := strings.Join(args, " ")
			f, ok := a.store.FindFile(ref)
			if !ok {
				return fmt.Errorf("%w: %s", workspace.ErrUnknownFile, ref)
			}
			a.store.DeleteFile(f.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", f.Name, idStyle.Render(f.ID))
			return nil
		},
	}
}
