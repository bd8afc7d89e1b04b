package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Tyrowin/chatrelay/internal/client"
	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/Tyrowin/chatrelay/internal/server"
)

const joinReplyTimeout = 5 * time.Second

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg := server.NewConfigFromEnv()

	t := &terminal{
		addr:    cfg.Addr,
		maxSize: cfg.MaxMessageSize,
		in:      bufio.NewScanner(os.Stdin),
		out:     os.Stdout,
		logger:  logger,
	}
	if err := t.run(context.Background()); err != nil {
		logger.Error("client exited with error", "error", err)
		os.Exit(1)
	}
}

// terminal drives the menu and chat prompt. Only its goroutine sends; the
// receiver goroutine prints incoming messages.
type terminal struct {
	addr    string
	maxSize int64
	in      *bufio.Scanner
	out     io.Writer
	logger  *slog.Logger

	conn        *client.Client
	joinReplies chan protocol.Message
	received    chan struct{}
}

func (t *terminal) connect(ctx context.Context) error {
	conn, err := client.Dial(ctx, t.addr, t.maxSize)
	if err != nil {
		return err
	}
	t.conn = conn
	t.joinReplies = make(chan protocol.Message, 1)
	t.received = make(chan struct{})
	go t.receive(conn, t.joinReplies, t.received)
	return nil
}

func (t *terminal) receive(conn *client.Client, joinReplies chan<- protocol.Message, done chan<- struct{}) {
	defer close(done)
	for {
		msg, err := conn.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && conn.State() != client.Disconnected {
				t.logger.Warn("receive failed", "error", err)
			}
			fmt.Fprintln(t.out, "\nDisconnected from the server.")
			return
		}

		switch m := msg.(type) {
		case protocol.ReportResponse:
			fmt.Fprintf(t.out, "\nThere are %d active users:\n%s\n", m.Count, m.Listing)
		case protocol.JoinAccept:
			fmt.Fprintf(t.out, "\nSuccessfully joined the chatroom.\n%s\n", m.Welcome)
			fmt.Fprintln(t.out, "\nYou are now in a chatroom, enter 'q' to leave.")
			notifyJoin(joinReplies, m)
		case protocol.JoinReject:
			fmt.Fprintln(t.out, "\nJoin request rejected:", m.Reason)
			notifyJoin(joinReplies, m)
		case protocol.NewUser:
			fmt.Fprintf(t.out, "\n%s\n", m.Text)
		case protocol.QuitAccept:
			fmt.Fprintf(t.out, "\n%s\n", m.Text)
		case protocol.Chat:
			fmt.Fprintf(t.out, "\n%s\n", m.Text)
		}
	}
}

// notifyJoin hands a join reply to a waiting menu without blocking when
// nobody waits any more.
func notifyJoin(joinReplies chan<- protocol.Message, m protocol.Message) {
	select {
	case joinReplies <- m:
	default:
	}
}

func (t *terminal) readLine() (string, bool) {
	if !t.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(t.in.Text()), true
}

func (t *terminal) run(ctx context.Context) error {
	if err := t.connect(ctx); err != nil {
		return err
	}
	defer func() { _ = t.conn.Close() }()

	for {
		switch t.conn.State() {
		case client.Disconnected:
			return nil
		case client.Joined:
			if !t.chat(ctx) {
				return nil
			}
		default:
			if !t.menu() {
				return nil
			}
		}
	}
}

// menu shows the main menu once and reports whether to keep running.
func (t *terminal) menu() bool {
	fmt.Fprint(t.out, "\nMenu:\n1. Get chatroom report\n2. Join chatroom\n3. Quit\nYour choice: ")
	choice, ok := t.readLine()
	if !ok {
		return false
	}

	switch choice {
	case "1":
		if err := t.conn.RequestReport(); err != nil {
			t.logger.Warn("report request failed", "error", err)
		}
		// Let the report print before the menu is shown again.
		time.Sleep(100 * time.Millisecond)
	case "2":
		fmt.Fprint(t.out, "Enter a username to join the chatroom: ")
		username, ok := t.readLine()
		if !ok {
			return false
		}
		t.join(username)
	case "3":
		if err := t.conn.Leave(); err != nil {
			t.logger.Warn("quit request failed", "error", err)
		}
		return false
	default:
		fmt.Fprintln(t.out, "Invalid choice. Please try again.")
	}
	return true
}

func (t *terminal) join(username string) {
	if err := t.conn.Join(username); err != nil {
		t.logger.Warn("join request failed", "error", err)
		return
	}
	select {
	case <-t.joinReplies:
	case <-t.received:
	case <-time.After(joinReplyTimeout):
		fmt.Fprintln(t.out, "No reply to join request.")
	}
}

// chat reads one line while in the room. "q" leaves the room; the server
// closes the connection after a quit, so the terminal reconnects to show
// the menu again.
func (t *terminal) chat(ctx context.Context) bool {
	line, ok := t.readLine()
	if !ok {
		_ = t.conn.Leave()
		return false
	}

	if strings.EqualFold(line, "q") {
		if err := t.conn.Leave(); err != nil {
			t.logger.Warn("quit request failed", "error", err)
		}
		<-t.received
		_ = t.conn.Close()
		if err := t.connect(ctx); err != nil {
			fmt.Fprintln(t.out, "Reconnect failed:", err)
			return false
		}
		return true
	}

	if line == "" {
		return true
	}
	if err := t.conn.Say(line); err != nil {
		t.logger.Warn("send failed", "error", err)
	}
	return true
}
