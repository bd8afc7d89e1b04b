package server

import (
	"net/http"
	"testing"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"exact match", []string{"http://localhost:8080"}, "http://localhost:8080", true},
		{"case insensitive host", []string{"http://example.com"}, "http://EXAMPLE.COM", true},
		{"case insensitive scheme", []string{"http://example.com"}, "HTTP://example.com", true},
		{"path ignored", []string{"http://example.com"}, "http://example.com/chat", true},
		{"different port", []string{"http://localhost:8080"}, "http://localhost:9090", false},
		{"missing origin", []string{"http://localhost:8080"}, "", false},
		{"unsupported scheme", []string{"*"}, "ftp://example.com", false},
		{"wildcard", []string{"*"}, "https://anywhere.example", true},
		{"invalid configured origin skipped", []string{"not-a-url"}, "http://not-a-url", false},
		{"empty allow list", nil, "http://localhost:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, discardLogger())
			req, err := http.NewRequest(http.MethodGet, "/ws", http.NoBody)
			if err != nil {
				t.Fatal(err)
			}
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			if got := policy.check(req); got != tt.want {
				t.Errorf("check(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
