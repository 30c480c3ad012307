package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/quadrant/internal/channel"
	"github.com/roach88/quadrant/internal/reconcile"
	"github.com/roach88/quadrant/internal/render"
	"github.com/roach88/quadrant/internal/session"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Once bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Render the live task list",
		Long: `Connect to a running server and redraw the task matrix every time the
reconciled list changes. Rejected operations from this connection are
reported on stderr. The view survives reconnects: the server sends a
fresh snapshot each time the connection is re-established.

Examples:
  quadrant watch
  quadrant watch --once --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().String("url", "", "server WebSocket URL (overrides client.url)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "print the first snapshot and exit")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	cs, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer cs.Close()

	out := &viewPrinter{w: cmd.OutOrStdout(), format: opts.Format}
	if err := out.print(cs.Reconciler().View()); err != nil {
		return err
	}
	if opts.Once {
		return nil
	}

	errOut := cmd.ErrOrStderr()
	cs.OnFailure(func(f session.Failure) {
		fmt.Fprintln(errOut, f.String())
	})
	cs.OnStateChange(func(state channel.ConnState) {
		opts.Logger.Info("connection state changed", "state", state.String())
	})
	unsubscribe := cs.Reconciler().Subscribe(func(v reconcile.View) {
		if err := out.print(v); err != nil {
			opts.Logger.Error("render failed", "error", err)
		}
	})
	defer unsubscribe()

	<-ctx.Done()
	return nil
}

// viewPrinter serialises renders from the reconciler's publish goroutine.
type viewPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

func (p *viewPrinter) print(v reconcile.View) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.format == "json" {
		return json.NewEncoder(p.w).Encode(v)
	}
	if _, err := fmt.Fprintln(p.w, "----"); err != nil {
		return err
	}
	return render.Text(p.w, v)
}
