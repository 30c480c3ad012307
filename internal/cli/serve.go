package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/quadrant/internal/server"
	"github.com/roach88/quadrant/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		Long: `Run the task sync server.

The server opens (or creates) the SQLite task store, starts the
single-writer engine loop and accepts WebSocket connections. Each new
connection receives a snapshot of the task list; every mutation is
broadcast to all connected clients.

Example:
  quadrant serve --db ./quadrant.db --addr :8080
  QUADRANT_OWNER_SCOPED=false quadrant serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("db", "", "path to SQLite database (overrides store.path)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *RootOptions) error {
	cfg, logger := opts.Config, opts.Logger

	logger.Info("opening database", "path", cfg.Store.Path)
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	srv := server.New(cfg, st, logger)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s%s. Press Ctrl-C to stop.\n", cfg.Server.Addr, cfg.Server.WSPath)

	if err := srv.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, derived
// from the command's context when one is set.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
