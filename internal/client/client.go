// Package client implements the client side of the chat relay protocol.
//
// A Client owns its connection state explicitly: it is Disconnected,
// Unregistered (connected but not in the room) or Joined. The state only
// changes through the Client's methods and the replies Receive decodes.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/Tyrowin/chatrelay/internal/protocol"
)

// State is the client's position in the session protocol.
type State int

const (
	Disconnected State = iota
	Unregistered
	Joined
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Joined:
		return "joined"
	default:
		return "disconnected"
	}
}

var (
	// ErrNotConnected is returned when sending on a closed client.
	ErrNotConnected = errors.New("client: not connected")
	// ErrNotJoined is returned by Say outside the room.
	ErrNotJoined = errors.New("client: not in the chatroom")
	// ErrAlreadyJoined is returned by Join while already in the room.
	ErrAlreadyJoined = errors.New("client: already in the chatroom")
)

// Client is one connection to the relay. Send methods and Receive may be
// called from different goroutines.
type Client struct {
	conn net.Conn
	dec  *protocol.Decoder

	writeMu sync.Mutex
	enc     *protocol.Encoder

	mu       sync.Mutex
	state    State
	username string
	pending  string
}

// Dial connects to the relay at addr. maxMessageSize bounds incoming frames;
// zero selects the protocol default.
func Dial(ctx context.Context, addr string, maxMessageSize int64) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return New(conn, maxMessageSize), nil
}

// New wraps an established connection.
func New(conn net.Conn, maxMessageSize int64) *Client {
	return &Client{
		conn:  conn,
		dec:   protocol.NewDecoder(conn, maxMessageSize),
		enc:   protocol.NewEncoder(conn),
		state: Unregistered,
	}
}

// State returns the current protocol state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Username returns the name the client joined under, or the empty string.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// LocalAddr returns the local address of the connection, which is the
// address the server lists for this client.
func (c *Client) LocalAddr() string {
	return c.conn.LocalAddr().String()
}

func (c *Client) send(m protocol.Message) error {
	if c.State() == Disconnected {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Encode(m)
}

// RequestReport asks for the member listing.
func (c *Client) RequestReport() error {
	return c.send(protocol.ReportRequest{})
}

// Join asks to enter the room as username. The state stays Unregistered
// until Receive decodes the join-accept.
func (c *Client) Join(username string) error {
	c.mu.Lock()
	if c.state == Joined {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.pending = username
	c.mu.Unlock()

	return c.send(protocol.JoinRequest{Username: username})
}

// Leave sends a quit request and returns to Unregistered. The server closes
// the connection once it handles the request.
func (c *Client) Leave() error {
	c.mu.Lock()
	username := c.username
	if username == "" {
		username = c.pending
	}
	c.mu.Unlock()

	if err := c.send(protocol.QuitRequest{Username: username}); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == Joined {
		c.state = Unregistered
	}
	c.username = ""
	c.pending = ""
	c.mu.Unlock()
	return nil
}

// Say sends a chat line, prefixed with the username as "<username>: <text>".
func (c *Client) Say(text string) error {
	c.mu.Lock()
	state, username := c.state, c.username
	c.mu.Unlock()

	if state != Joined {
		return ErrNotJoined
	}
	return c.send(protocol.Chat{Text: username + ": " + text})
}

// Receive blocks for the next message from the server and advances the
// state on join replies. Any terminal read error moves the client to
// Disconnected.
func (c *Client) Receive() (protocol.Message, error) {
	for {
		msg, err := c.dec.Decode()
		if err != nil {
			if !protocol.IsTerminal(err) {
				continue
			}
			c.setDisconnected()
			return nil, err
		}

		c.mu.Lock()
		switch m := msg.(type) {
		case protocol.JoinAccept:
			c.state = Joined
			c.username = m.Username
			c.pending = ""
		case protocol.JoinReject:
			c.pending = ""
		}
		c.mu.Unlock()

		return msg, nil
	}
}

func (c *Client) setDisconnected() {
	c.mu.Lock()
	c.state = Disconnected
	c.username = ""
	c.pending = ""
	c.mu.Unlock()
}

// Close closes the connection without sending a quit request.
func (c *Client) Close() error {
	c.setDisconnected()
	return c.conn.Close()
}
