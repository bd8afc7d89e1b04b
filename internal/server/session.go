// Package server runs the per-connection session state machine that
// admits members, answers reports and relays chat.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/gorilla/websocket"
)

// Replies sent to the requesting connection.
const (
	ReasonRoomFull      = "Chatroom at full capacity."
	ReasonUsernameTaken = "Username already in use."
	ReasonEmptyUsername = "Username must not be empty."
	ReasonUsernameLong  = "Username too long."
	WelcomeText         = "Welcome to the chatroom."
)

// JoinedText is the announcement broadcast when username joins.
func JoinedText(username string) string {
	return fmt.Sprintf("%s joined the chatroom.", username)
}

// LeftText is the announcement broadcast when username leaves.
func LeftText(username string) string {
	return fmt.Sprintf("%s left the chatroom.", username)
}

type sessionState int

const (
	stateUnregistered sessionState = iota
	stateJoined
)

func (s sessionState) String() string {
	if s == stateJoined {
		return "joined"
	}
	return "unregistered"
}

// session drives one peer's read loop. It is owned by a single goroutine.
type session struct {
	hub    *Hub
	peer   *Peer
	state  sessionState
	logger *slog.Logger
}

func newSession(hub *Hub, peer *Peer) *session {
	return &session{
		hub:    hub,
		peer:   peer,
		state:  stateUnregistered,
		logger: peer.logger,
	}
}

// run reads until the stream ends, a frame fails to decode, or the client
// quits. Cleanup runs on every path.
func (s *session) run() {
	defer s.finish()

	for {
		msg, body, err := s.peer.conn.ReadMessage()
		if err != nil {
			if !protocol.IsTerminal(err) {
				s.logger.Info("ignoring unrecognized message", "error", err)
				continue
			}
			s.logReadError(err)
			return
		}

		if s.handle(msg, body) {
			return
		}
	}
}

// handle applies one message and reports whether the session should end.
// body is the record as received.
func (s *session) handle(msg protocol.Message, body []byte) bool {
	switch m := msg.(type) {
	case protocol.ReportRequest:
		s.handleReport()
	case protocol.JoinRequest:
		s.handleJoin(m)
	case protocol.QuitRequest:
		s.handleQuit()
		return true
	case protocol.Chat:
		s.handleChat(body)
	default:
		s.logger.Info("ignoring server-bound message of unexpected kind", "kind", msg.Kind())
	}
	return false
}

func (s *session) handleReport() {
	entries := s.hub.registry.Snapshot()

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Username + "@" + e.Addr
	}

	s.reply(protocol.ReportResponse{
		Count:   len(entries),
		Listing: strings.Join(lines, "\n"),
	})
}

func (s *session) handleJoin(m protocol.JoinRequest) {
	// The accept is queued under the registry lock so it precedes any
	// broadcast that includes the new member.
	err := s.hub.registry.Admit(s.peer, m.Username, func() {
		s.reply(protocol.JoinAccept{Username: m.Username, Welcome: WelcomeText})
	})
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		s.rejectJoin(m.Username, ReasonRoomFull, err)
	case errors.Is(err, ErrUsernameTaken):
		s.rejectJoin(m.Username, ReasonUsernameTaken, err)
	case errors.Is(err, ErrEmptyUsername):
		s.rejectJoin(m.Username, ReasonEmptyUsername, err)
	case errors.Is(err, ErrUsernameTooLong):
		s.rejectJoin(m.Username, ReasonUsernameLong, err)
	case err != nil:
		s.logger.Error("unexpected registration error", "username", m.Username, "error", err)
	default:
		s.state = stateJoined
		s.logger = s.peer.logger.With("username", m.Username)
		s.logger.Info("client joined", "members", s.hub.registry.Count())

		s.hub.Broadcast(protocol.NewUser{Username: m.Username, Text: JoinedText(m.Username)}, s.peer)
	}
}

func (s *session) rejectJoin(username, reason string, err error) {
	s.logger.Info("join rejected", "username", username, "reason", err)
	s.reply(protocol.JoinReject{Reason: reason})
}

func (s *session) handleQuit() {
	username, ok := s.hub.registry.Unregister(s.peer)
	s.state = stateUnregistered
	if !ok {
		s.logger.Info("quit from unregistered client")
		return
	}

	s.logger.Info("client left", "members", s.hub.registry.Count())
	s.hub.Broadcast(protocol.QuitAccept{Username: username, Text: LeftText(username)}, nil)
}

func (s *session) handleChat(body []byte) {
	if !s.peer.allowChat() {
		s.logger.Warn("rate limit exceeded; discarding message",
			"burst", s.hub.cfg.RateLimit.Burst,
			"interval", s.hub.cfg.RateLimit.RefillInterval)
		return
	}
	s.hub.Relay(body, s.peer)
}

func (s *session) reply(m protocol.Message) {
	if err := s.peer.Send(m); err != nil {
		s.logger.Warn("error queueing reply", "kind", m.Kind(), "error", err)
	}
}

// finish removes any registry entry, delivers replies still queued for
// this peer and closes the connection. Only a quit request announces the
// departure unless AnnounceDisconnects is set. After a quit the entry is
// already gone and Unregister reports false.
func (s *session) finish() {
	username, removed := s.hub.registry.Unregister(s.peer)
	if removed {
		s.logger.Info("client dropped without quitting", "members", s.hub.registry.Count())
		if s.hub.cfg.AnnounceDisconnects {
			s.hub.Broadcast(protocol.QuitAccept{Username: username, Text: LeftText(username)}, s.peer)
		}
	}

	if err := s.peer.CloseAfterDrain(); err != nil {
		s.logger.Warn("error closing connection", "error", err)
	}
}

func (s *session) logReadError(err error) {
	switch {
	case errors.Is(err, protocol.ErrFrameTooLarge), errors.Is(err, websocket.ErrReadLimit):
		s.logger.Warn("message exceeded maximum size", "limit", s.hub.cfg.MaxMessageSize, "error", err)
	case errors.Is(err, protocol.ErrMalformed), errors.Is(err, protocol.ErrEmptyFrame):
		s.logger.Warn("invalid message; closing connection", "error", err)
	case isExpectedCloseError(err):
		s.logger.Info("connection closed", "state", s.state, "error", err)
	default:
		s.logger.Warn("read error", "state", s.state, "error", err)
	}
}
