package cli

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"aira/internal/chat"
	"aira/internal/state"
	"aira/internal/workspace"
)

func newChatCommand(opts *globalOptions, version string) *cobra.Command {
	var (
		promptText string
		mode       string
		session    string
		endpoint   string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant about the workspace",
		Long: `Starts an interactive session. Lines starting with ':' are workspace
commands (:help lists them); anything else is sent to the assistant together
with the selected context files. In Agent mode the assistant's edits are
applied to the addressed files as they stream in.

Without --endpoint (or endpoint in the config) the chat endpoint runs inside
this process on a loopback port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			a.logger.Printf("aira %s chat starting", version)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			editors := a.editors()
			defer editors.Close()
			editors.Watch(ctx)
			if w := workspace.NewWatcher(a.store, a.logger); w != nil {
				go w.Run(ctx)
			}

			if endpoint == "" {
				endpoint = a.cfg.Endpoint
			}
			if endpoint == "" {
				if endpoint, err = startEmbedded(ctx, a, editors); err != nil {
					return err
				}
			}

			history, err := state.NewManager(a.cfg.ConversationDir, a.logger)
			if err != nil {
				return err
			}
			if session = strings.TrimSpace(session); session != "" {
				if _, err := history.Ensure(session); err != nil {
					return err
				}
			}

			sh, err := newShell(shellOptions{
				Store:   a.store,
				Editors: editors,
				History: history,
				Relay: chat.Options{
					Endpoint:           endpoint,
					Store:              a.store,
					Editors:            editors,
					History:            history,
					Mode:               defaultMode(mode, a.cfg),
					DocAppendModelText: a.cfg.DocAppendModelText,
					Logger:             a.logger,
					JSONLogs:           a.cfg.LogJSON,
				},
				Lines:  loadInputHistory(a.cfg.HistoryPath),
				Out:    cmd.OutOrStdout(),
				Logger: a.logger,
			})
			if err != nil {
				return err
			}
			defer sh.close()

			go sh.handleInterrupts(ctx, cancel)
			if promptText != "" {
				return sh.runOneShot(ctx, promptText)
			}
			if term.IsTerminal(int(os.Stdin.Fd())) {
				return sh.runPrompt(ctx, cancel)
			}
			return sh.runNonInteractive(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&promptText, "prompt", "p", "", "send one message and exit")
	cmd.Flags().StringVar(&mode, "mode", "", "chat mode: agent or ask (default default_mode)")
	cmd.Flags().StringVar(&session, "session", "", "conversation to resume or create")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "chat endpoint base URL, e.g. http://127.0.0.1:3737")
	return cmd
}
