package integration

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/test/testhelpers"
)

// TestGracefulShutdownWithClients verifies that active TCP and WebSocket
// connections are closed and the room emptied during shutdown.
func TestGracefulShutdownWithClients(t *testing.T) {
	ts := testhelpers.StartServer(t, nil)

	members := make([]*testhelpers.Conn, 3)
	for i, name := range []string{"alice", "bob", "carol"} {
		members[i] = testhelpers.DialTCP(t, ts.Addr)
		members[i].JoinAs(t, name)
	}
	ws := testhelpers.DialWebSocket(t, ts.WSURL)

	done := make(chan error, 1)
	go func() { done <- ts.Shutdown(5 * time.Second) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Shutdown timeout exceeded")
	}

	for _, m := range members {
		m.ExpectClosed(t)
	}
	if err := ws.SetReadDeadline(time.Now().Add(testhelpers.DefaultTimeout)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("Expected WebSocket connection to be closed")
	}

	if n := ts.Hub().Registry().Count(); n != 0 {
		t.Errorf("Expected empty registry after shutdown, got %d", n)
	}
	if n := ts.Hub().PeerCount(); n != 0 {
		t.Errorf("Expected no attached peers after shutdown, got %d", n)
	}
}

// TestShutdownStopsAccepting verifies the listener is closed by Shutdown.
func TestShutdownStopsAccepting(t *testing.T) {
	ts := testhelpers.StartServer(t, nil)

	if err := ts.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	conn, err := net.DialTimeout("tcp", ts.Addr, 200*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		t.Error("Expected dial to fail after shutdown")
	}
}

// TestListenAndServeShutdown runs the full listener setup, including the
// HTTP listener, and shuts it down.
func TestListenAndServeShutdown(t *testing.T) {
	cfg := server.NewConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	srv := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	// Give the listeners a moment to start.
	time.Sleep(100 * time.Millisecond)

	if err := srv.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("ListenAndServe returned error: %v", err)
		}
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("ListenAndServe did not return after shutdown")
	}
}
