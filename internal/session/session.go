// Package session implements the client end of the little-sb protocol: a
// stateful wrapper around one live connection that correlates requests to
// replies.
//
// The protocol carries no request ids. Replies arrive in the exact order
// requests were written on the connection, so the continuation at the head of
// the pending queue is always the one owed the next inbound reply. Packets
// arriving with no pending continuation are unsolicited pushes and go to the
// registered push handler.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"little-sb/server/internal/proto"
	"little-sb/server/internal/telemetry"
)

// ErrClosed reports a request scheduled on a session that already shut down.
var ErrClosed = errors.New("session closed")

// Conn is the message transport under a session. *websocket.Conn satisfies
// it; tests substitute fakes.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Continuation receives the reply (or synthetic transport-error event) for
// one scheduled request. It is invoked exactly once, on the session's read
// goroutine.
type Continuation func(proto.Event)

// Session owns one connection and its pending-request queue.
type Session struct {
	conn   Conn
	logger telemetry.Logger

	mu      sync.Mutex
	sender  proto.Sender
	pending []Continuation
	closed  bool

	unsolicited func(proto.Event)
}

// New wraps an established connection. The session name is freshly generated;
// the player name is attached once login succeeds via SetPlayerName.
func New(conn Conn, logger telemetry.Logger) *Session {
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	return &Session{
		conn:   conn,
		logger: logger,
		sender: proto.Sender{SessionName: uuid.NewString()},
	}
}

// SetPlayerName records the authenticated identity stamped on every
// outgoing packet.
func (s *Session) SetPlayerName(name string) {
	s.mu.Lock()
	s.sender.PlayerName = name
	s.mu.Unlock()
}

// OnUnsolicited registers the handler for pushes that match no pending
// request. Must be set before Run; a nil handler drops such events.
func (s *Session) OnUnsolicited(handler func(proto.Event)) {
	s.unsolicited = handler
}

// ScheduleRequest serializes the command, writes it, and enqueues the
// continuation. It never blocks waiting for the reply; continuations fire in
// the order their requests were scheduled.
func (s *Session) ScheduleRequest(cmd proto.Command, cont Continuation) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	data, err := proto.EncodeCommand(s.sender, cmd)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("schedule %q: %w", cmd.Name, err)
	}
	// Enqueue before writing so a reply racing the unlock still finds its
	// continuation at the head of the queue.
	s.pending = append(s.pending, cont)
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.pending = s.pending[:len(s.pending)-1]
		s.mu.Unlock()
		s.fail(err)
		return fmt.Errorf("schedule %q: %w", cmd.Name, err)
	}
	s.mu.Unlock()
	return nil
}

// Run drives socket reads until the connection fails or closes. On transport
// failure every still-pending continuation is invoked with a synthetic
// "error" event carrying the reason, and the session is marked closed.
func (s *Session) Run() error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(err)
			return err
		}
		packet, err := proto.DecodePacket(data)
		if err != nil {
			// Protocol errors are fatal to the connection.
			s.logger.Printf("closing session: %v", err)
			s.fail(err)
			s.conn.Close()
			return err
		}
		event, err := packet.Event()
		if err != nil {
			s.logger.Printf("closing session: %v", err)
			s.fail(err)
			s.conn.Close()
			return err
		}
		s.deliver(event)
	}
}

// Close tears the session down. Pending continuations receive a synthetic
// error event; further ScheduleRequest calls return ErrClosed.
func (s *Session) Close() error {
	s.fail(ErrClosed)
	return s.conn.Close()
}

func (s *Session) deliver(event proto.Event) {
	s.mu.Lock()
	var cont Continuation
	if len(s.pending) > 0 {
		cont = s.pending[0]
		s.pending = s.pending[1:]
	}
	s.mu.Unlock()

	if cont != nil {
		cont(event)
		return
	}
	if s.unsolicited != nil {
		s.unsolicited(event)
		return
	}
	s.logger.Printf("dropping unsolicited event %q", event.Name)
}

// fail marks the session closed and flushes every pending continuation with
// a synthetic transport-error event, preserving scheduling order.
func (s *Session) fail(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	event := proto.Errorf("%v", cause)
	for _, cont := range pending {
		if cont != nil {
			cont(event)
		}
	}
}
