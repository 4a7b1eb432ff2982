package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aira/internal/config"
	"aira/internal/editor"
	"aira/internal/server"
	"aira/internal/workspace"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat endpoint and the workspace API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := a.client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if w := workspace.NewWatcher(a.store, a.logger); w != nil {
				go w.Run(ctx)
			}
			srv := server.New(server.Options{
				Config: a.cfg,
				Client: client,
				Store:  a.store,
				Logger: a.logger,
			})
			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default listen_addr, "+config.DefaultListenAddr+")")
	return cmd
}

// startEmbedded serves the chat endpoint on a loopback port for the REPL and
// returns its base URL. It stops when ctx ends.
func startEmbedded(ctx context.Context, a *app, editors *editor.Manager) (string, error) {
	client, err := a.client()
	if err != nil {
		return "", err
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen for embedded server: %w", err)
	}
	srv := server.New(server.Options{
		Config:  a.cfg,
		Client:  client,
		Store:   a.store,
		Editors: editors,
		Logger:  a.logger,
	})
	go func() {
		if err := srv.Serve(ctx, listener); err != nil {
			a.logger.Printf("embedded server stopped: %v", err)
		}
	}()
	return "http://" + listener.Addr().String(), nil
}
