package integration

import (
	"encoding/binary"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/test/testhelpers"
)

// TestOriginValidation verifies the WebSocket origin allow-list.
func TestOriginValidation(t *testing.T) {
	ts := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"http://example.com"}
	})

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"Allowed origin", "http://example.com", true},
		{"Case-insensitive match", "HTTP://EXAMPLE.COM", true},
		{"Missing Origin header", "", false},
		{"Different host", "http://evil.example", false},
		{"Unsupported scheme", "ftp://example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := testhelpers.ConnectWebSocket(ts.WSURL, tt.origin)
			if tt.allowed {
				if err != nil {
					t.Fatalf("Expected origin %q to be allowed: %v", tt.origin, err)
				}
				_ = conn.Close()
				return
			}
			if err == nil {
				_ = conn.Close()
				t.Fatalf("Expected origin %q to be refused", tt.origin)
			}
			if resp != nil && resp.StatusCode != http.StatusForbidden {
				t.Errorf("Expected status %d, got %d", http.StatusForbidden, resp.StatusCode)
			}
		})
	}
}

// TestWildcardOrigin verifies that "*" admits any http(s) origin.
func TestWildcardOrigin(t *testing.T) {
	ts := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"*"}
	})

	for _, origin := range []string{"http://example.com", "https://another.com", "http://localhost:3000"} {
		conn, _, err := testhelpers.ConnectWebSocket(ts.WSURL, origin)
		if err != nil {
			t.Errorf("Expected origin %q to be allowed: %v", origin, err)
			continue
		}
		_ = conn.Close()
	}
}

// TestOversizedFrameClosesConnection verifies a TCP frame header announcing
// more than MaxMessageSize ends the session before the body is read.
func TestOversizedFrameClosesConnection(t *testing.T) {
	ts := testhelpers.StartServer(t, func(cfg *server.Config) { cfg.MaxMessageSize = 128 })

	member := testhelpers.DialTCP(t, ts.Addr)
	member.JoinAs(t, "alice")

	conn, err := net.Dial("tcp", ts.Addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	var header [protocol.HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], 1<<20)
	if _, err := conn.Write(header[:]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(testhelpers.DefaultTimeout)); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatal("Expected the server to close the connection")
	}

	member.ExpectNone(t, quietPeriod)
	if report := member.Report(t); report.Count != 1 {
		t.Errorf("Expected room to be unaffected, got %d members", report.Count)
	}
}

// TestChatRateLimiting verifies that chat beyond the burst is dropped while
// the sender stays connected.
func TestChatRateLimiting(t *testing.T) {
	ts := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 3, RefillInterval: time.Hour}
	})

	alice := testhelpers.DialTCP(t, ts.Addr)
	bob := testhelpers.DialTCP(t, ts.Addr)
	alice.JoinAs(t, "alice")
	bob.JoinAs(t, "bob")
	_ = alice.Expect(t)

	for i := 0; i < 10; i++ {
		if err := alice.Say("flood"); err != nil {
			t.Fatalf("Say failed: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		if _, ok := bob.Expect(t).(protocol.Chat); !ok {
			t.Fatalf("Expected chat %d within burst", i+1)
		}
	}
	bob.ExpectNone(t, quietPeriod)

	// Reports are not rate limited.
	if report := alice.Report(t); report.Count != 2 {
		t.Errorf("Expected 2 members, got %d", report.Count)
	}
}
