package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestHealthHandler verifies that the health route reports room occupancy
// for every method.
func TestHealthHandler(t *testing.T) {
	srv := New(NewConfig(), discardLogger())
	peer, _ := newStubPeer(t, "127.0.0.1:5000", srv.Config())
	if err := srv.Hub().Registry().Register(peer, "alice"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			req, err := http.NewRequest(method, "/", http.NoBody)
			if err != nil {
				t.Fatal(err)
			}
			rr := httptest.NewRecorder()

			srv.HealthHandler(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "text/plain" {
				t.Errorf("unexpected content type %q", ct)
			}
			want := "Chat relay is running! 1/3 members online."
			if rr.Body.String() != want {
				t.Errorf("handler returned unexpected body: got %q want %q", rr.Body.String(), want)
			}
		})
	}
}

// TestWebSocketHandlerMethodValidation verifies that only GET requests reach
// the upgrader.
func TestWebSocketHandlerMethodValidation(t *testing.T) {
	srv := New(NewConfig(), discardLogger())

	tests := []struct {
		method     string
		wantStatus int
	}{
		{http.MethodPost, http.StatusMethodNotAllowed},
		{http.MethodPut, http.StatusMethodNotAllowed},
		{http.MethodDelete, http.StatusMethodNotAllowed},
		{http.MethodPatch, http.StatusMethodNotAllowed},
		// A plain GET without upgrade headers is refused by the upgrader.
		{http.MethodGet, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, "/ws", http.NoBody)
			if err != nil {
				t.Fatal(err)
			}
			rr := httptest.NewRecorder()

			srv.WebSocketHandler(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("%s /ws: got status %d want %d", tt.method, rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusMethodNotAllowed &&
				!strings.Contains(rr.Body.String(), "only accepts GET") {
				t.Errorf("unexpected body %q", rr.Body.String())
			}
		})
	}

	if srv.Hub().PeerCount() != 0 {
		t.Errorf("rejected requests attached %d peers", srv.Hub().PeerCount())
	}
}

// TestSetupRoutes verifies both routes are mounted.
func TestSetupRoutes(t *testing.T) {
	srv := New(NewConfig(), discardLogger())
	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	resp, err := http.Get(testServer.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /: got status %d", resp.StatusCode)
	}

	resp, err = http.Post(testServer.URL+"/ws", "text/plain", http.NoBody)
	if err != nil {
		t.Fatalf("POST /ws failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /ws: got status %d", resp.StatusCode)
	}
}
