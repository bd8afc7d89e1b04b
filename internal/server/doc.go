// Package server implements the chat relay: the session registry, the
// broadcast hub and the per-connection session state machine.
//
// Clients connect over TCP with length-prefixed frames or over WebSocket;
// both transports join the same room. The implementation is organized into
// specialized files for configuration, registry, hub, peers, sessions,
// transports and HTTP handlers.
package server
