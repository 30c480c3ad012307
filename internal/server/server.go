// Package server runs the sync engine behind an HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/quadrant/internal/channel"
	"github.com/roach88/quadrant/internal/config"
	"github.com/roach88/quadrant/internal/engine"
)

// shutdownGrace bounds how long in-flight HTTP requests may take on shutdown.
const shutdownGrace = 5 * time.Second

// Store is what the server needs from the task store.
type Store interface {
	engine.TaskStore
	Pinger
}

// Server owns one engine and the HTTP listener feeding it.
type Server struct {
	engine  *engine.Engine
	router  *mux.Router
	addr    string
	logger  *slog.Logger
	running atomic.Bool
}

// New wires an engine over st according to cfg.
func New(cfg *config.Config, st Store, logger *slog.Logger) *Server {
	e := engine.New(st,
		engine.WithOwnerScoping(cfg.Owner.Scoped),
		engine.WithLogger(logger.With("component", "engine")),
	)

	s := &Server{
		engine: e,
		router: mux.NewRouter(),
		addr:   cfg.Server.Addr,
		logger: logger,
	}

	ws := channel.NewHandler(e,
		channel.WithOutboxSize(cfg.Server.OutboxSize),
		channel.WithDefaultOwner(cfg.Owner.ID),
		channel.WithHandlerLogger(logger.With("component", "channel")),
	)
	RegisterRoutes(s.router, cfg.Server.WSPath, ws, &Readiness{
		Store:   st,
		Running: s.running.Load,
		Peers:   e.PeerCount,
	})
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Engine returns the server's engine.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Run starts the engine loop and serves on the configured address until
// ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	engineCtx, stopEngine := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		s.running.Store(true)
		defer s.running.Store(false)
		s.engine.Run(engineCtx)
	}()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		serveErr <- srv.Serve(ln)
	}()

	var result error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = fmt.Errorf("serve: %w", err)
		}
	}

	// Stop the engine first so hijacked WebSocket connections close.
	s.engine.Stop()
	stopEngine()
	<-engineDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && result == nil {
		result = fmt.Errorf("shutdown: %w", err)
	}
	return result
}
