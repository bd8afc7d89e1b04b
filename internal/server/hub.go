// Package server coordinates peer lifecycles, message broadcast, and
// connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/chatrelay/internal/protocol"
)

// Hub owns the room: the member registry, the set of every attached peer
// (joined or not), and the goroutines serving them.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry

	mutex   sync.Mutex
	peers   map[*Peer]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewHub creates a Hub for the given configuration. A nil logger uses
// slog.Default().
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = sanitizeConfig(cfg)
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		registry: NewRegistry(cfg.MaxUsers),
		peers:    make(map[*Peer]struct{}),
	}
}

// Registry returns the hub's member registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// PeerCount returns the number of attached connections, joined or not.
func (h *Hub) PeerCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.peers)
}

// Attach wraps conn in a Peer and starts its writer and session
// goroutines. It returns nil once the hub is shutting down.
func (h *Hub) Attach(conn transport) *Peer {
	peer := newPeer(conn, h.cfg, h.logger)

	h.mutex.Lock()
	if h.closing {
		h.mutex.Unlock()
		_ = conn.Close()
		return nil
	}
	h.peers[peer] = struct{}{}
	peerCount := len(h.peers)
	h.wg.Add(2)
	h.mutex.Unlock()

	peer.logger.Info("client connected", "connections", peerCount)

	go func() {
		defer h.wg.Done()
		peer.writePump()
	}()
	go func() {
		defer h.wg.Done()
		defer h.detach(peer)
		newSession(h, peer).run()
	}()

	return peer
}

func (h *Hub) detach(peer *Peer) {
	h.mutex.Lock()
	delete(h.peers, peer)
	peerCount := len(h.peers)
	h.mutex.Unlock()

	peer.logger.Info("client disconnected", "connections", peerCount)
}

// Broadcast delivers m to every member except exclude, which may be nil.
// A recipient that cannot take the message is logged and skipped; one
// whose queue is full is disconnected. It returns the number of members
// the message was queued for.
func (h *Hub) Broadcast(m protocol.Message, exclude *Peer) int {
	body, err := protocol.Marshal(m)
	if err != nil {
		h.logger.Error("error encoding broadcast", "kind", m.Kind(), "error", err)
		return 0
	}
	return h.fanOut(m.Kind(), body, exclude)
}

// Relay delivers a chat record body exactly as it was received.
func (h *Hub) Relay(body []byte, exclude *Peer) int {
	return h.fanOut(protocol.KindChat, body, exclude)
}

func (h *Hub) fanOut(kind protocol.Kind, body []byte, exclude *Peer) int {
	if int64(len(body)) > h.cfg.MaxMessageSize {
		h.logger.Error("broadcast exceeds maximum message size; not sent",
			"kind", kind, "size", len(body), "limit", h.cfg.MaxMessageSize)
		return 0
	}

	delivered := 0
	for _, peer := range h.registry.Peers() {
		if peer == exclude {
			continue
		}
		if err := peer.enqueue(body); err != nil {
			h.dropRecipient(peer, err)
			continue
		}
		delivered++
	}

	h.logger.Debug("broadcast", "kind", kind, "delivered", delivered)
	return delivered
}

// dropRecipient reports a failed delivery and disconnects peers that
// cannot keep up.
func (h *Hub) dropRecipient(peer *Peer, err error) {
	if errors.Is(err, ErrPeerClosed) {
		peer.logger.Debug("skipping closed recipient")
		return
	}
	peer.logger.Warn("broadcast delivery failed", "error", err)
	if errors.Is(err, ErrSendBufferFull) {
		peer.logger.Warn("client removed due to full send buffer")
		if err := peer.Close(); err != nil {
			peer.logger.Warn("error closing slow client", "error", err)
		}
	}
}

// shutdownPeers closes every attached connection; their sessions then run
// their normal cleanup.
func (h *Hub) shutdownPeers() int {
	h.mutex.Lock()
	peers := make([]*Peer, 0, len(h.peers))
	for peer := range h.peers {
		peers = append(peers, peer)
	}
	h.mutex.Unlock()

	for _, peer := range peers {
		if err := peer.Close(); err != nil {
			peer.logger.Warn("error closing client connection", "error", err)
		}
	}
	return len(peers)
}

// Shutdown stops accepting peers, closes every connection and waits for
// their goroutines to finish. It returns context.DeadlineExceeded when the
// timeout elapses first.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.mutex.Lock()
	h.closing = true
	h.mutex.Unlock()

	closed := h.shutdownPeers()
	h.logger.Info("closed client connections", "count", closed)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
