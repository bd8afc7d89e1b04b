// Package testhelpers provides common utilities and helper functions for testing the chat relay.
//
// It starts real servers on loopback listeners and wraps TCP and WebSocket
// connections in small clients with background readers, so integration
// tests can assert on what each participant receives.
package testhelpers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/client"
	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/gorilla/websocket"
)

// TestOrigin is the Origin header sent by WebSocket helpers.
const TestOrigin = "http://localhost:8080"

// DefaultTimeout bounds every wait in these helpers.
const DefaultTimeout = 2 * time.Second

// TestServer is a relay listening on a loopback TCP port with its HTTP
// routes served by an httptest server.
type TestServer struct {
	*server.Server
	Addr    string
	HTTPURL string
	WSURL   string
}

// StartServer starts a relay with default configuration adjusted by mutate.
// The server is shut down when the test ends.
func StartServer(t *testing.T, mutate func(*server.Config)) *TestServer {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{TestOrigin}
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.New(cfg, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	httpServer := httptest.NewServer(srv.Handler())

	ts := &TestServer{
		Server:  srv,
		Addr:    ln.Addr().String(),
		HTTPURL: httpServer.URL,
		WSURL:   "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws",
	}

	t.Cleanup(func() {
		httpServer.Close()
		if err := srv.Shutdown(DefaultTimeout); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
		select {
		case err := <-serveErr:
			if err != nil {
				t.Errorf("Serve returned error: %v", err)
			}
		case <-time.After(DefaultTimeout):
			t.Error("Serve did not return after shutdown")
		}
	})
	return ts
}

// Conn is a test participant: a protocol client whose incoming messages are
// collected by a background reader.
type Conn struct {
	*client.Client
	inbox  chan protocol.Message
	closed chan struct{}
}

// DialTCP connects a participant to the relay's TCP listener.
func DialTCP(t *testing.T, addr string) *Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	c, err := client.Dial(ctx, addr, 0)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	conn := &Conn{
		Client: c,
		inbox:  make(chan protocol.Message, 128),
		closed: make(chan struct{}),
	}
	go conn.readLoop()
	t.Cleanup(func() { _ = c.Close() })
	return conn
}

func (c *Conn) readLoop() {
	defer close(c.closed)
	for {
		msg, err := c.Receive()
		if err != nil {
			return
		}
		c.inbox <- msg
	}
}

// Closed is closed once the server ends the connection.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Expect waits for the next message.
func (c *Conn) Expect(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg := <-c.inbox:
		return msg
	case <-c.closed:
		t.Fatal("Connection closed while waiting for a message")
	case <-time.After(DefaultTimeout):
		t.Fatal("Timed out waiting for a message")
	}
	return nil
}

// Next waits up to DefaultTimeout for a message without failing the test,
// so it can be used from goroutines other than the test's own.
func (c *Conn) Next() (protocol.Message, bool) {
	select {
	case msg := <-c.inbox:
		return msg, true
	case <-c.closed:
		return nil, false
	case <-time.After(DefaultTimeout):
		return nil, false
	}
}

// ExpectNone fails if any message arrives within wait.
func (c *Conn) ExpectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-c.inbox:
		t.Fatalf("Expected no message, got %#v", msg)
	case <-time.After(wait):
	}
}

// ExpectClosed waits for the server to close the connection.
func (c *Conn) ExpectClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(DefaultTimeout):
		t.Fatal("Expected server to close the connection")
	}
}

// JoinAs joins under username and fails unless the server accepts.
func (c *Conn) JoinAs(t *testing.T, username string) protocol.JoinAccept {
	t.Helper()
	if err := c.Join(username); err != nil {
		t.Fatalf("Join(%q) failed: %v", username, err)
	}
	accept, ok := c.Expect(t).(protocol.JoinAccept)
	if !ok {
		t.Fatalf("Expected join-accept for %q", username)
	}
	return accept
}

// Report requests and returns the member report.
func (c *Conn) Report(t *testing.T) protocol.ReportResponse {
	t.Helper()
	if err := c.RequestReport(); err != nil {
		t.Fatalf("RequestReport failed: %v", err)
	}
	report, ok := c.Expect(t).(protocol.ReportResponse)
	if !ok {
		t.Fatal("Expected report-response")
	}
	return report
}

// ConnectWebSocket opens a WebSocket connection to url with the given
// Origin header; an empty origin sends none.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultTimeout,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// DialWebSocket connects with TestOrigin and fails the test on error.
func DialWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(url, TestOrigin)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendWS writes m as a single JSON text frame.
func SendWS(t *testing.T, conn *websocket.Conn, m protocol.Message) {
	t.Helper()
	body, err := protocol.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		t.Fatalf("WebSocket write failed: %v", err)
	}
}

// ReceiveWS reads one message, failing after DefaultTimeout.
func ReceiveWS(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("WebSocket read failed: %v", err)
	}
	msg, err := protocol.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return msg
}

// ReceiveRecord reads one frame as a raw wire record.
func ReceiveRecord(t *testing.T, conn *websocket.Conn) protocol.Record {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	var rec protocol.Record
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("WebSocket read failed: %v", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("Record did not decode: %v", err)
	}
	return rec
}

// WaitFor polls cond until it holds or DefaultTimeout passes.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
