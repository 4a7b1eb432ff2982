// Package cli is the aira command line: the chat REPL, the HTTP server, the
// MCP server and scriptable workspace commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "aira",
		Short: "A workspace of documents and spreadsheets with an AI assistant",
		Long: `aira keeps a small workspace of documents and spreadsheets on disk and
lets an assistant read and edit them.

Quick Start:
  aira chat                        # interactive session with the assistant
  aira chat -p "summarise Budget"  # one message, then exit
  aira serve                       # run the chat endpoint and workspace API
  aira files list                  # show the file tree
  aira mcp                         # expose the workspace as MCP tools over stdio

Set AIRA_API_KEY (or OPENAI_API_KEY) before chatting, or AIRA_MOCK_LLM=1 to
use the offline echo model.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "aira %s\n" .Version}}`)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $AIRA_CONFIG_PATH or ~/.aira/config.yaml)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "workspace data directory (overrides data_dir)")
	root.PersistentFlags().StringVar(&opts.storage, "storage", "", "storage backend: json or sqlite (overrides storage)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "mirror the log file to stderr")
	root.PersistentFlags().BoolVar(&opts.jsonLogs, "json-logs", false, "write structured log lines as JSON")

	root.AddCommand(
		newChatCommand(opts, version),
		newServeCommand(opts),
		newMCPCommand(opts, version),
		newFilesCommand(opts),
		newFoldersCommand(opts),
		newImportCommand(opts),
		newExportCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs the command tree and exits non-zero on error.
func Execute(version string) {
	if err := NewRootCommand(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
