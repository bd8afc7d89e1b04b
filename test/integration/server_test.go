package integration

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/test/testhelpers"
)

// TestHealthEndpoint verifies the health route reports live occupancy.
func TestHealthEndpoint(t *testing.T) {
	ts := testhelpers.StartServer(t, func(cfg *server.Config) { cfg.MaxUsers = 5 })

	body := getBody(t, ts.HTTPURL+"/")
	if body != "Chat relay is running! 0/5 members online." {
		t.Errorf("Unexpected body %q", body)
	}

	testhelpers.DialTCP(t, ts.Addr).JoinAs(t, "alice")

	body = getBody(t, ts.HTTPURL+"/")
	if body != "Chat relay is running! 1/5 members online." {
		t.Errorf("Unexpected body %q", body)
	}
}

// TestCreateServerTimeouts verifies the HTTP server timeouts.
func TestCreateServerTimeouts(t *testing.T) {
	srv := server.CreateServer(":0", http.NewServeMux())

	if srv.ReadHeaderTimeout != 5*time.Second {
		t.Errorf("Expected ReadHeaderTimeout 5s, got %v", srv.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != 15*time.Second || srv.WriteTimeout != 15*time.Second {
		t.Errorf("Unexpected read/write timeouts %v/%v", srv.ReadTimeout, srv.WriteTimeout)
	}
	if srv.IdleTimeout != 60*time.Second {
		t.Errorf("Expected IdleTimeout 60s, got %v", srv.IdleTimeout)
	}
}

func getBody(t *testing.T, url string) string {
	t.Helper()
	client := &http.Client{Timeout: testhelpers.DefaultTimeout}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Expected content type text/plain, got %s", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Reading body failed: %v", err)
	}
	return string(body)
}
