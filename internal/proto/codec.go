package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload marks wire data that cannot be decoded into a valid
// envelope. The connection carrying it is closed by the caller, not retried.
var ErrMalformedPayload = errors.New("malformed payload")

// Sender identifies who wrote a packet. The server verifies the claimed
// player name against the authenticated session before dispatching; it is
// never trusted verbatim.
type Sender struct {
	PlayerName  string `json:"player_name"`
	SessionName string `json:"session_name"`
}

// Packet is the wire envelope. Payload holds a serialized Command or Event.
type Packet struct {
	Sender  Sender          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeCommand wraps a command in an envelope and renders it to bytes.
func EncodeCommand(sender Sender, cmd Command) ([]byte, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("%w: command without a name", ErrMalformedPayload)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command %q: %w", cmd.Name, err)
	}
	return json.Marshal(Packet{Sender: sender, Payload: payload})
}

// EncodeEvent wraps an event in an envelope and renders it to bytes.
func EncodeEvent(sender Sender, ev Event) ([]byte, error) {
	if ev.Name == "" {
		return nil, fmt.Errorf("%w: event without a name", ErrMalformedPayload)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event %q: %w", ev.Name, err)
	}
	return json.Marshal(Packet{Sender: sender, Payload: payload})
}

// DecodePacket parses one envelope. The payload is validated just far enough
// to guarantee it names a command or event; field access happens through the
// typed accessors afterwards.
func DecodePacket(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(p.Payload) == 0 {
		return Packet{}, fmt.Errorf("%w: missing payload", ErrMalformedPayload)
	}
	var probe struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(p.Payload, &probe); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if probe.Name == nil || *probe.Name == "" {
		return Packet{}, fmt.Errorf("%w: payload without a name", ErrMalformedPayload)
	}
	return p, nil
}

// Command decodes the payload as a command.
func (p Packet) Command() (Command, error) {
	var cmd Command
	if err := json.Unmarshal(p.Payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if cmd.Name == "" {
		return Command{}, fmt.Errorf("%w: command without a name", ErrMalformedPayload)
	}
	return cmd, nil
}

// Event decodes the payload as an event.
func (p Packet) Event() (Event, error) {
	var ev Event
	if err := json.Unmarshal(p.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if ev.Name == "" {
		return Event{}, fmt.Errorf("%w: event without a name", ErrMalformedPayload)
	}
	return ev, nil
}
