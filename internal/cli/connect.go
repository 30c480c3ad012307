package cli

import (
	"context"
	"fmt"

	"github.com/roach88/quadrant/internal/channel"
	"github.com/roach88/quadrant/internal/reconcile"
	"github.com/roach88/quadrant/internal/session"
	"github.com/roach88/quadrant/internal/task"
)

// clientSession is a session plus the goroutine driving its channel.
type clientSession struct {
	*session.Session
	client *channel.Client
	cancel context.CancelFunc
	done   chan error
}

// openSession connects to the configured server and waits for the first
// snapshot. The caller must Close the returned session.
func openSession(ctx context.Context, opts *RootOptions) (*clientSession, error) {
	cfg := opts.Config
	logger := opts.Logger.With("component", "client")

	client := channel.NewClient(channel.ClientConfig{
		URL:            cfg.Client.URL,
		Owner:          cfg.Owner.ID,
		RequestTimeout: cfg.Client.RequestTimeout,
		Backoff:        channel.Backoff{Min: cfg.Client.ReconnectMin, Max: cfg.Client.ReconnectMax},
		Logger:         logger,
	})
	s := session.New(client,
		reconcile.New(reconcile.WithLogger(logger)),
		session.WithSnapshotTimeout(cfg.Client.SnapshotTimeout),
		session.WithLogger(logger),
	)

	runCtx, cancel := context.WithCancel(ctx)
	cs := &clientSession{Session: s, client: client, cancel: cancel, done: make(chan error, 1)}
	go func() { cs.done <- s.Run(runCtx) }()

	s.WaitForSnapshot(ctx)
	if !client.Connected() {
		cs.Close()
		return nil, WrapExitError(ExitCommandError, "cannot reach server",
			fmt.Errorf("%s: %w", cfg.Client.URL, channel.ErrNotConnected))
	}
	return cs, nil
}

// Close stops the channel and waits for it to exit.
func (c *clientSession) Close() {
	c.cancel()
	<-c.done
}

// node returns the reconciled node for a record the server acknowledged.
// The reconciler has already applied the reply when the request resolves.
func (c *clientSession) node(rec task.Task) reconcile.Node {
	if n, ok := c.Reconciler().View().Find(rec.ID); ok {
		return n
	}
	return reconcile.Node{Task: rec}
}
