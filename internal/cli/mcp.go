package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aira/internal/mcpserver"
	"aira/internal/workspace"
)

func newMCPCommand(opts *globalOptions, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the workspace as MCP tools over stdio",
		Long: `Runs a Model Context Protocol server on stdin/stdout. Tools cover listing,
reading, creating, moving and deleting files, plus edit_doc and edit_sheet with
the same addressing rules as the chat assistant. Nothing but protocol frames
is written to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			editors := a.editors()
			defer editors.Close()
			if w := workspace.NewWatcher(a.store, a.logger); w != nil {
				go w.Run(ctx)
			}

			s := mcpserver.New(mcpserver.Options{
				Version:            version,
				Store:              a.store,
				Editors:            editors,
				Engines:            editors.Engines(),
				DocAppendModelText: a.cfg.DocAppendModelText,
				Logger:             a.logger,
			})
			a.logger.Printf("mcp server ready on stdio")
			return mcpserver.Serve(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
