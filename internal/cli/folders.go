package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aira/internal/workspace"
)

func newFoldersCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "List and manage folders",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List folders with their file counts",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := opts.open()
				if err != nil {
					return err
				}
				defer a.Close()
				tree := a.store.Tree()
				out := cmd.OutOrStdout()
				if len(tree.Folders) == 0 {
					fmt.Fprintln(out, idStyle.Render("(no folders yet)"))
					return nil
				}
				for _, node := range tree.Folders {
					fmt.Fprintf(out, "%s %s %s\n", folderStyle.Render(node.Folder.Name+"/"), idStyle.Render(node.Folder.ID), dateStyle.Render(fmt.Sprintf("%d files", len(node.Files))))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a folder",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := opts.open()
				if err != nil {
					return err
				}
				defer a.Close()
				folder, err := a.store.CreateFolder(strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", folderStyle.Render(folder.Name+"/"), idStyle.Render(folder.ID))
				return nil
			},
		},
		&cobra.Command{
			Use:     "delete <folder>",
			Aliases: []string{"rm"},
			Short:   "Delete a folder; its files move to the root",
			Args:    cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := opts.open()
				if err != nil {
					return err
				}
				defer a.Close()
				ref := strings.Join(args, " ")
				folder, ok := a.store.FindFolder(ref)
				if !ok {
					return fmt.Errorf("%w: %s", workspace.ErrUnknownFolder, ref)
				}
				a.store.DeleteFolder(folder.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", folder.Name, idStyle.Render(folder.ID))
				return nil
			},
		},
	)
	return cmd
}
