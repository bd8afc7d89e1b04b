package server

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/client"
	"github.com/Tyrowin/chatrelay/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubTransport is a transport that never delivers input. It records
// whether it was closed.
type stubTransport struct {
	addr string

	mu     sync.Mutex
	closed bool
}

func (s *stubTransport) ReadMessage() (protocol.Message, []byte, error) { return nil, nil, io.EOF }
func (s *stubTransport) WriteMessage([]byte) error                       { return nil }
func (s *stubTransport) Flush() error                                    { return nil }
func (s *stubTransport) SetWriteDeadline(time.Time) error                { return nil }
func (s *stubTransport) RemoteAddr() string                              { return s.addr }

func (s *stubTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubTransport) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// newStubPeer builds a peer without starting its goroutines, so tests can
// inspect its send queue directly.
func newStubPeer(t *testing.T, addr string, cfg Config) (*Peer, *stubTransport) {
	t.Helper()
	st := &stubTransport{addr: addr}
	return newPeer(st, sanitizeConfig(cfg), discardLogger()), st
}

// queued decodes everything waiting in a peer's send queue.
func queued(t *testing.T, p *Peer) []protocol.Message {
	t.Helper()
	var msgs []protocol.Message
	for {
		select {
		case body := <-p.send:
			msg, err := protocol.Unmarshal(body)
			if err != nil {
				t.Fatalf("queued message did not decode: %v", err)
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// pipeClient attaches one end of a net.Pipe to hub and returns a protocol
// client on the other end with a background reader.
type pipeClient struct {
	*client.Client
	inbox  chan protocol.Message
	closed chan struct{}
}

func attachPipeClient(t *testing.T, hub *Hub) *pipeClient {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	if hub.Attach(newTCPTransport(serverSide, hub.cfg.MaxMessageSize)) == nil {
		t.Fatal("Attach returned nil peer")
	}

	pc := &pipeClient{
		Client: client.New(clientSide, 0),
		inbox:  make(chan protocol.Message, 64),
		closed: make(chan struct{}),
	}
	go func() {
		defer close(pc.closed)
		for {
			msg, err := pc.Receive()
			if err != nil {
				return
			}
			pc.inbox <- msg
		}
	}()
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func (pc *pipeClient) expect(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg := <-pc.inbox:
		return msg
	case <-pc.closed:
		t.Fatal("connection closed while waiting for a message")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return nil
}

func (pc *pipeClient) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-pc.inbox:
		t.Fatalf("expected no message, got %#v", msg)
	case <-time.After(wait):
	}
}

func (pc *pipeClient) join(t *testing.T, username string) {
	t.Helper()
	if err := pc.Join(username); err != nil {
		t.Fatalf("Join(%q) returned error: %v", username, err)
	}
	if _, ok := pc.expect(t).(protocol.JoinAccept); !ok {
		t.Fatalf("expected join-accept for %q", username)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
