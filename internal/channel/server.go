package channel

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roach88/quadrant/internal/engine"
	"github.com/roach88/quadrant/internal/protocol"
)

// Engine is the subset of *engine.Engine the handler drives.
type Engine interface {
	Connect(p engine.Peer) bool
	Receive(p engine.Peer, env protocol.Envelope) bool
	Disconnect(p engine.Peer) bool
}

// OwnerParam is the query parameter naming the owner a connection acts for.
const OwnerParam = "owner"

// Handler upgrades HTTP requests to WebSocket event channels.
type Handler struct {
	engine       Engine
	upgrader     websocket.Upgrader
	outboxSize   int
	defaultOwner string
	logger       *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithOutboxSize bounds each connection's pending outbound envelopes.
func WithOutboxSize(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.outboxSize = n
		}
	}
}

// WithDefaultOwner sets the owner used when a request names none.
func WithDefaultOwner(owner string) HandlerOption {
	return func(h *Handler) {
		h.defaultOwner = owner
	}
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHandler creates a Handler feeding e.
func NewHandler(e Engine, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine: e,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		outboxSize:   64,
		defaultOwner: "local",
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get(OwnerParam))
	if owner == "" {
		owner = h.defaultOwner
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := newPeer(uuid.NewString(), owner, conn, h.outboxSize, h.logger)
	go p.writePump()

	if !h.engine.Connect(p) {
		p.Close()
		return
	}
	h.logger.Debug("connection opened", "peer_id", p.ID(), "owner", owner, "remote", r.RemoteAddr)

	h.readPump(p)

	h.engine.Disconnect(p)
	p.Close()
	h.logger.Debug("connection closed", "peer_id", p.ID())
}

// readPump forwards inbound frames to the engine until the socket fails.
func (h *Handler) readPump(p *Peer) {
	conn := p.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("connection read failed", "peer_id", p.ID(), "error", err)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			h.rejectFrame(p, env)
			continue
		}

		if !h.engine.Receive(p, env) {
			return
		}
	}
}

// rejectFrame answers an undecodable frame without involving the engine.
func (h *Handler) rejectFrame(p *Peer, env protocol.Envelope) {
	h.logger.Warn("malformed frame", "peer_id", p.ID())
	reply := protocol.MustNew(protocol.EventOperationFailed, protocol.FailurePayload{
		Code:          string(engine.CodeBadRequest),
		Reason:        "malformed frame",
		OriginalEvent: env.Type,
	}).WithRequestID(env.RequestID)
	if err := p.Send(reply); err != nil {
		p.Close()
	}
}
