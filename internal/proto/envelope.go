package proto

import (
	"encoding/json"
	"fmt"
	"math"
)

// Command is a client-to-server request. Requests carry no ids; a command is
// identified by its position in the connection's outgoing queue.
type Command struct {
	Name   string         `json:"name"`
	Args   []any          `json:"args,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// NewCommand builds a command with the given positional arguments.
func NewCommand(name string, args ...any) Command {
	return Command{Name: name, Args: args}
}

// SetParam attaches a named parameter, allocating the map on first use.
func (c *Command) SetParam(name string, value any) {
	if c.Params == nil {
		c.Params = make(map[string]any, 1)
	}
	c.Params[name] = value
}

// Event is a server-to-client reply or push notification. CreatedTime is
// seconds since server start, stamped by the hub when the event is built.
type Event struct {
	Name        string         `json:"name"`
	Args        []any          `json:"args,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	CreatedTime float64        `json:"created_time,omitempty"`
}

// NewEvent builds an event with the given positional arguments.
func NewEvent(name string, args ...any) Event {
	return Event{Name: name, Args: args}
}

// Errorf builds an "error" reply whose first argument is the human-readable
// reason.
func Errorf(format string, args ...any) Event {
	return Event{Name: EventError, Args: []any{fmt.Sprintf(format, args...)}}
}

// SetParam attaches a named parameter, allocating the map on first use.
func (e *Event) SetParam(name string, value any) {
	if e.Params == nil {
		e.Params = make(map[string]any, 1)
	}
	e.Params[name] = value
}

// OK reports whether the event is an "ok" reply.
func (e Event) OK() bool { return e.Name == EventOK }

// TypeMismatchError reports a field whose stored value cannot convert to the
// requested type. It is fatal to the connection when surfaced by the codec
// layer, and an application error when surfaced by an executor.
type TypeMismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch at %s: want %s, got %s", e.Field, e.Want, e.Got)
}

func mismatch(field, want string, got any) error {
	if got == nil {
		return &TypeMismatchError{Field: field, Want: want, Got: "nothing"}
	}
	return &TypeMismatchError{Field: field, Want: want, Got: fmt.Sprintf("%T", got)}
}

func argAt(args []any, i int) (any, bool) {
	if i < 0 || i >= len(args) {
		return nil, false
	}
	return args[i], true
}

func asString(field string, v any, ok bool) (string, error) {
	if !ok {
		return "", mismatch(field, "string", nil)
	}
	s, good := v.(string)
	if !good {
		return "", mismatch(field, "string", v)
	}
	return s, nil
}

// asInt accepts native ints plus whole float64 values, since JSON decoding
// turns every number into float64.
func asInt(field string, v any, ok bool) (int64, error) {
	if !ok {
		return 0, mismatch(field, "integer", nil)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, mismatch(field, "integer", v)
		}
		return int64(n), nil
	default:
		return 0, mismatch(field, "integer", v)
	}
}

func asFloat(field string, v any, ok bool) (float64, error) {
	if !ok {
		return 0, mismatch(field, "number", nil)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, mismatch(field, "number", v)
	}
}

// reshape round-trips a decoded value (typically map[string]any) through JSON
// into a concrete struct.
func reshape(field string, v any, ok bool, out any) error {
	if !ok {
		return mismatch(field, "object", nil)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return mismatch(field, "object", v)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return mismatch(field, "object", v)
	}
	return nil
}

// ArgString returns positional argument i as a string.
func (c Command) ArgString(i int) (string, error) {
	v, ok := argAt(c.Args, i)
	return asString(fmt.Sprintf("arg[%d]", i), v, ok)
}

// ArgInt returns positional argument i as an integer.
func (c Command) ArgInt(i int) (int64, error) {
	v, ok := argAt(c.Args, i)
	return asInt(fmt.Sprintf("arg[%d]", i), v, ok)
}

// ParamString returns the named parameter as a string.
func (c Command) ParamString(name string) (string, error) {
	v, ok := c.Params[name]
	return asString("param "+name, v, ok)
}

// ParamInt returns the named parameter as an integer.
func (c Command) ParamInt(name string) (int64, error) {
	v, ok := c.Params[name]
	return asInt("param "+name, v, ok)
}

// ParamUint returns the named parameter as a non-negative integer.
func (c Command) ParamUint(name string) (uint64, error) {
	n, err := c.ParamInt(name)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, mismatch("param "+name, "unsigned integer", n)
	}
	return uint64(n), nil
}

// ArgString returns positional argument i as a string.
func (e Event) ArgString(i int) (string, error) {
	v, ok := argAt(e.Args, i)
	return asString(fmt.Sprintf("arg[%d]", i), v, ok)
}

// ArgInt returns positional argument i as an integer.
func (e Event) ArgInt(i int) (int64, error) {
	v, ok := argAt(e.Args, i)
	return asInt(fmt.Sprintf("arg[%d]", i), v, ok)
}

// ArgFloat returns positional argument i as a number.
func (e Event) ArgFloat(i int) (float64, error) {
	v, ok := argAt(e.Args, i)
	return asFloat(fmt.Sprintf("arg[%d]", i), v, ok)
}

// ArgJSON decodes positional argument i into out, re-marshalling through
// JSON. Used for structured payloads such as player snapshots.
func (e Event) ArgJSON(i int, out any) error {
	v, ok := argAt(e.Args, i)
	return reshape(fmt.Sprintf("arg[%d]", i), v, ok, out)
}

// ParamString returns the named parameter as a string.
func (e Event) ParamString(name string) (string, error) {
	v, ok := e.Params[name]
	return asString("param "+name, v, ok)
}

// ParamInt returns the named parameter as an integer.
func (e Event) ParamInt(name string) (int64, error) {
	v, ok := e.Params[name]
	return asInt("param "+name, v, ok)
}

// ParamUint returns the named parameter as a non-negative integer.
func (e Event) ParamUint(name string) (uint64, error) {
	n, err := e.ParamInt(name)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, mismatch("param "+name, "unsigned integer", n)
	}
	return uint64(n), nil
}
