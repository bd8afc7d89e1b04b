// Package server adapts raw TCP streams and WebSocket connections to the
// message transport that peers and sessions run on.
package server

import (
	"bufio"
	"encoding/binary"
	"net"
	"time"

	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/gorilla/websocket"
)

// transport is one client connection as seen by a peer. ReadMessage is
// called only from the session goroutine; the write methods only from the
// peer's writer goroutine. ReadMessage also returns the record body as
// received so chat can be relayed without re-encoding.
type transport interface {
	ReadMessage() (protocol.Message, []byte, error)
	WriteMessage(body []byte) error
	Flush() error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// tcpTransport carries length-prefixed JSON frames over a byte stream.
type tcpTransport struct {
	conn net.Conn
	dec  *protocol.Decoder
	w    *bufio.Writer
}

func newTCPTransport(conn net.Conn, maxMessageSize int64) *tcpTransport {
	return &tcpTransport{
		conn: conn,
		dec:  protocol.NewDecoder(conn, maxMessageSize),
		w:    bufio.NewWriter(conn),
	}
}

func (t *tcpTransport) ReadMessage() (protocol.Message, []byte, error) {
	body, err := t.dec.ReadFrame()
	if err != nil {
		return nil, nil, err
	}
	msg, err := protocol.Unmarshal(body)
	return msg, body, err
}

func (t *tcpTransport) WriteMessage(body []byte) error {
	if len(body) == 0 {
		return protocol.ErrEmptyFrame
	}
	var header [protocol.HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := t.w.Write(header[:]); err != nil {
		return err
	}
	_, err := t.w.Write(body)
	return err
}

func (t *tcpTransport) Flush() error {
	return t.w.Flush()
}

func (t *tcpTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

func (t *tcpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

// wsTransport carries one JSON record per WebSocket data frame.
type wsTransport struct {
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn, maxMessageSize int64) *wsTransport {
	conn.SetReadLimit(maxMessageSize)
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadMessage() (protocol.Message, []byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, nil, err
	}
	if len(data) == 0 {
		return nil, nil, protocol.ErrEmptyFrame
	}
	msg, err := protocol.Unmarshal(data)
	return msg, data, err
}

func (t *wsTransport) WriteMessage(body []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, body)
}

// Flush is a no-op; every WebSocket message is written as a complete frame.
func (t *wsTransport) Flush() error {
	return nil
}

func (t *wsTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
