// Package server defines the sentinel errors shared by the registry, the
// broadcast path and the connection handlers.
package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

var (
	// ErrCapacityExceeded rejects a join while the room is full.
	ErrCapacityExceeded = errors.New("chatroom at full capacity")
	// ErrUsernameTaken rejects a join whose username is held by a live member.
	ErrUsernameTaken = errors.New("username already in use")
	// ErrEmptyUsername rejects a join without a username.
	ErrEmptyUsername = errors.New("username must not be empty")
	// ErrUsernameTooLong rejects a join whose username exceeds MaxUsernameLength.
	ErrUsernameTooLong = errors.New("username too long")

	// ErrPeerClosed is returned when queueing to a peer that has been closed.
	ErrPeerClosed = errors.New("peer closed")
	// ErrSendBufferFull is returned when a peer's outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrMessageTooLarge is returned when an outbound body exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
