package channel

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/quadrant/internal/protocol"
)

// Errors returned by Peer.Send.
var (
	ErrOutboxFull = errors.New("channel: outbox full")
	ErrClosed     = errors.New("channel: connection closed")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Peer is one server-side WebSocket connection.
// It implements engine.Peer.
type Peer struct {
	id     string
	owner  string
	conn   *websocket.Conn
	outbox chan protocol.Envelope
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newPeer(id, owner string, conn *websocket.Conn, outboxSize int, logger *slog.Logger) *Peer {
	return &Peer{
		id:     id,
		owner:  owner,
		conn:   conn,
		outbox: make(chan protocol.Envelope, outboxSize),
		logger: logger.With("peer_id", id),
		done:   make(chan struct{}),
	}
}

// ID returns the connection id.
func (p *Peer) ID() string { return p.id }

// Owner returns the owner this connection acts for.
func (p *Peer) Owner() string { return p.owner }

// Send queues env for the write pump without blocking.
func (p *Peer) Send(env protocol.Envelope) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.outbox <- env:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close stops the write pump, which closes the socket. Safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// Done is closed once Close has been called.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// writePump drains the outbox into the socket and keeps the connection alive
// with pings. It owns every write to conn.
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case env := <-p.outbox:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(env); err != nil {
				p.logger.Debug("write failed", "error", err)
				p.Close()
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.Close()
				return
			}

		case <-p.done:
			p.flush()
			p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is already queued, best effort.
func (p *Peer) flush() {
	for {
		select {
		case env := <-p.outbox:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(env); err != nil {
				return
			}
		default:
			return
		}
	}
}
