// Package server manages individual relay peers, pairing each connection
// with a buffered outbound queue and a dedicated writer goroutine.
package server

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/google/uuid"
)

// Peer is one accepted connection. Its identity is the pointer itself;
// the registry keys members by *Peer.
type Peer struct {
	id             string
	addr           string
	conn           transport
	send           chan []byte
	done           chan struct{}
	closeOnce      sync.Once
	drain          chan struct{}
	drainOnce      sync.Once
	writeTimeout   time.Duration
	maxMessageSize int64
	rateLimiter    *rateLimiter
	logger         *slog.Logger
}

func newPeer(conn transport, cfg Config, logger *slog.Logger) *Peer {
	id := uuid.NewString()
	addr := conn.RemoteAddr()
	return &Peer{
		id:             id,
		addr:           addr,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		done:           make(chan struct{}),
		drain:          make(chan struct{}),
		writeTimeout:   cfg.WriteTimeout,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		logger:         logger.With("peer", id, "addr", addr),
	}
}

// ID returns the peer's unique identifier.
func (p *Peer) ID() string {
	return p.id
}

// Addr returns the remote host:port of the connection.
func (p *Peer) Addr() string {
	return p.addr
}

// Done is closed once the peer has been closed.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Send encodes m and queues it for delivery.
func (p *Peer) Send(m protocol.Message) error {
	body, err := protocol.Marshal(m)
	if err != nil {
		return err
	}
	return p.enqueue(body)
}

// enqueue queues an encoded body without blocking. Bodies larger than the
// peer's MaxMessageSize are refused, since the client would reject the frame.
func (p *Peer) enqueue(body []byte) error {
	if p.maxMessageSize > 0 && int64(len(body)) > p.maxMessageSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, len(body), p.maxMessageSize)
	}

	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}

	select {
	case p.send <- body:
		return nil
	case <-p.done:
		return ErrPeerClosed
	default:
		return fmt.Errorf("%w: %d queued", ErrSendBufferFull, cap(p.send))
	}
}

// Close stops the writer and closes the connection. It is safe to call
// more than once and from any goroutine.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.conn.Close()
		if isExpectedCloseError(err) {
			err = nil
		}
	})
	return err
}

// CloseAfterDrain asks the writer to deliver everything already queued,
// then closes the connection. It waits at most the write timeout before
// closing regardless.
func (p *Peer) CloseAfterDrain() error {
	p.drainOnce.Do(func() { close(p.drain) })

	timer := time.NewTimer(p.writeTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		p.logger.Warn("timed out delivering queued messages before close")
		return p.Close()
	}
}

func (p *Peer) writePump() {
	defer func() {
		if err := p.Close(); err != nil {
			p.logger.Warn("error closing connection in writePump", "error", err)
		}
	}()

	for {
		select {
		case <-p.done:
			return
		case <-p.drain:
			p.writeRemaining()
			return
		case body := <-p.send:
			if !p.writeBatch(body) {
				return
			}
		}
	}
}

// writeRemaining writes whatever is queued right now as one batch.
func (p *Peer) writeRemaining() {
	select {
	case body := <-p.send:
		p.writeBatch(body)
	default:
	}
}

// writeBatch writes body plus anything already queued behind it, then
// flushes once.
func (p *Peer) writeBatch(body []byte) bool {
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
		p.logger.Warn("error setting write deadline", "error", err)
		return false
	}

	if !p.writeMessage(body) {
		return false
	}

	n := len(p.send)
	for i := 0; i < n; i++ {
		if !p.writeMessage(<-p.send) {
			return false
		}
	}

	if err := p.conn.Flush(); err != nil {
		p.logWriteError(err)
		return false
	}
	return true
}

func (p *Peer) writeMessage(body []byte) bool {
	if err := p.conn.WriteMessage(body); err != nil {
		p.logWriteError(err)
		return false
	}
	return true
}

func (p *Peer) logWriteError(err error) {
	if isExpectedCloseError(err) {
		p.logger.Info("connection closed during write", "error", err)
		return
	}
	p.logger.Warn("error writing message", "error", err)
}

// allowChat reports whether the peer is within its chat rate limit.
func (p *Peer) allowChat() bool {
	return p.rateLimiter == nil || p.rateLimiter.allow()
}
