package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"aira/internal/export"
	"aira/internal/importer"
)

func newImportCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>...",
		Short: "Create files from .html, .txt, .md or .csv sources",
		Long: `HTML and text become documents, one paragraph per block. CSV becomes a
spreadsheet with the rows in the first sheet.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			for _, path := range args {
				f, err := importer.Import(a.store, path)
				if err != nil {
					return err
				}
				a.logger.Printf("imported %s as %s %s", path, f.Kind, f.ID)
				fmt.Fprintf(out, "%s -> %s %s %s\n", path, nameStyle.Render(f.Name), kindStyle.Render("["+string(f.Kind)+"]"), idStyle.Render(f.ID))
			}
			return nil
		},
	}
}

func newExportCommand(opts *globalOptions) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export [file]...",
		Short: "Write files and folders with their plain text as JSON or YAML",
		Long: `Without arguments every file is exported. Files may be named by id or
name. Folders are always listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := export.New(format)
			if err != nil {
				return err
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ids := make([]string, 0, len(args))
			for _, ref := range args {
				f, ok := a.store.FindFile(ref)
				if !ok {
					return fmt.Errorf("no file named %q", ref)
				}
				ids = append(ids, f.ID)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			if err := exp.Write(w, a.store.State(), ids...); err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "exported to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}
