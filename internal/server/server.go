// Package server constructs and starts the relay's TCP listener and optional
// HTTP listener, and shuts both down together with the hub.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Server accepts client connections and hands them to the Hub.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	hub      *Hub
	upgrader websocket.Upgrader

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
}

// New creates a Server. A nil cfg uses defaults; a nil logger uses
// slog.Default().
func New(cfg *Config, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	sanitized := sanitizeConfig(*cfg)
	origins := newOriginPolicy(sanitized.AllowedOrigins, logger)

	return &Server{
		cfg:    sanitized,
		logger: logger,
		hub:    NewHub(sanitized, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// Hub returns the server's hub for inspection and shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// Handler returns the HTTP routes served on HTTPAddr.
func (s *Server) Handler() http.Handler {
	return s.SetupRoutes()
}

// CreateServer creates and configures an HTTP server with the specified
// address and handler. Timeouts only cover the HTTP exchange; upgraded
// WebSocket connections are managed by the hub.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ListenAndServe listens on Addr (and HTTPAddr when set) and serves until
// Shutdown is called or the listener fails.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	if s.cfg.HTTPAddr != "" {
		httpServer := CreateServer(s.cfg.HTTPAddr, s.Handler())
		s.mu.Lock()
		s.httpServer = httpServer
		s.mu.Unlock()

		go func() {
			s.logger.Info("HTTP server listening", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server failed", "error", err)
			}
		}()
	}

	return s.Serve(ln)
}

// Serve accepts connections on ln until it is closed. It returns nil when
// the listener was closed by Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("chat relay listening", "addr", ln.Addr().String(), "max_users", s.cfg.MaxUsers)

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isRetryableAcceptError(err) {
				tempDelay = nextAcceptDelay(tempDelay)
				s.logger.Warn("accept error; retrying", "error", err, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		s.hub.Attach(newTCPTransport(conn, s.cfg.MaxMessageSize))
	}
}

// isRetryableAcceptError reports whether Accept failed for a reason that
// can clear up on its own, such as running out of file descriptors.
func isRetryableAcceptError(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM)
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(2*d, time.Second)
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// Shutdown closes the listeners, then disconnects every client and waits
// for their goroutines, bounded by timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info("shutting down chat relay")

	s.mu.Lock()
	ln := s.listener
	httpServer := s.httpServer
	s.mu.Unlock()

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if httpServer != nil {
		if err := ShutdownServer(httpServer, timeout); err != nil {
			s.logger.Warn("HTTP server shutdown error", "error", err)
			errs = append(errs, err)
		}
	}
	if err := s.hub.Shutdown(timeout); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
