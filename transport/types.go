// Package transport defines the abstract bidirectional message pipe that the
// rest of this module consumes. It owns the JSON-RPC 2.0 envelope shapes but
// knows nothing about MCP methods or framing over any particular wire; the
// concrete framings live in transport/stdio and transport/httpstream.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// ID is a JSON-RPC request id: a string or an integer, never both, per the
// spec. The zero value is not a valid id; use NewStringID/NewIntID.
type ID struct {
	str    string
	num    int64
	isStr  bool
	isNull bool
}

// NewStringID builds a string-valued request id.
func NewStringID(s string) ID { return ID{str: s, isStr: true} }

// NewIntID builds an integer-valued request id.
func NewIntID(n int64) ID { return ID{num: n} }

// IsNull reports whether this ID is the JSON-RPC null id (used only on
// error responses for requests that failed to parse an id at all).
func (i ID) IsNull() bool { return i.isNull }

// NullID is the id attached to protocol-level errors with no correlatable id.
var NullID = ID{isNull: true}

func (i ID) String() string {
	if i.isNull {
		return "null"
	}
	if i.isStr {
		return i.str
	}
	return fmt.Sprintf("%d", i.num)
}

// MarshalJSON renders the id as either a JSON string or a JSON number.
func (i ID) MarshalJSON() ([]byte, error) {
	if i.isNull {
		return []byte("null"), nil
	}
	if i.isStr {
		return json.Marshal(i.str)
	}
	return json.Marshal(i.num)
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (i *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = NullID
		return nil
	}
	var asNum int64
	if err := json.Unmarshal(data, &asNum); err == nil {
		*i = NewIntID(asNum)
		return nil
	}
	var asStr string
	if err := json.Unmarshal(data, &asStr); err == nil {
		*i = NewStringID(asStr)
		return nil
	}
	return fmt.Errorf("transport: id must be a string or a number, got %s", data)
}

// Request is an outgoing or incoming JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a successful JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// RPCError is the `error` member of an Error response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error is a JSON-RPC error response.
type Error struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      ID       `json:"id"`
	Error   RPCError `json:"error"`
}

// Notification is a one-way JSON-RPC message; it carries no id and expects
// no reply.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Kind tags which concrete shape a Message carries.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindError
	KindNotification
)

// Message is the tagged union over the JSON-RPC message kinds: exactly one of
// Request, Response, Err, or Notification is populated, matching Kind.
type Message struct {
	Kind         Kind
	Request      *Request
	Response     *Response
	Err          *Error
	Notification *Notification
}

// Decode sniffs a raw JSON-RPC envelope and classifies it into a Message.
func Decode(raw []byte) (*Message, error) {
	var probe struct {
		ID     *json.RawMessage `json:"id"`
		Method *string          `json:"method"`
		Error  *json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("transport: malformed JSON-RPC envelope: %w", err)
	}

	switch {
	case probe.Method != nil && probe.ID != nil:
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("transport: malformed request: %w", err)
		}
		return &Message{Kind: KindRequest, Request: &req}, nil
	case probe.Method != nil:
		var notif Notification
		if err := json.Unmarshal(raw, &notif); err != nil {
			return nil, fmt.Errorf("transport: malformed notification: %w", err)
		}
		return &Message{Kind: KindNotification, Notification: &notif}, nil
	case probe.Error != nil:
		var errResp Error
		if err := json.Unmarshal(raw, &errResp); err != nil {
			return nil, fmt.Errorf("transport: malformed error response: %w", err)
		}
		return &Message{Kind: KindError, Err: &errResp}, nil
	default:
		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("transport: malformed response: %w", err)
		}
		return &Message{Kind: KindResponse, Response: &resp}, nil
	}
}

// Envelope returns the value that should be marshaled onto the wire for
// this Message (one of *Request, *Response, *Error, *Notification).
func (m *Message) Envelope() interface{} {
	switch m.Kind {
	case KindRequest:
		return m.Request
	case KindResponse:
		return m.Response
	case KindError:
		return m.Err
	case KindNotification:
		return m.Notification
	default:
		return nil
	}
}

// HTTPError is satisfied by a Transport error that carries a concrete HTTP
// status and body observed talking to the target, letting callers above
// the transport layer (mcperr.FromTransport) preserve both when surfacing
// the failure instead of flattening it to a generic error.
type HTTPError interface {
	error
	StatusCode() int
	ResponseBody() []byte
}

// Transport is the abstract bidirectional message pipe consumed by
// endpoint.Endpoint. Implementations are single-owner: once attached, only
// the owning endpoint may set the callbacks.
type Transport interface {
	// Start begins reading from the underlying pipe. Some implementations
	// (e.g. an already-open HTTP request) treat this as a no-op.
	Start(ctx context.Context) error
	// Send writes one message to the pipe.
	Send(msg *Message) error
	// Close shuts the pipe down; OnClose fires at most once as a result.
	Close() error
	// SetOnMessage registers the callback invoked for each inbound Message.
	SetOnMessage(fn func(*Message))
	// SetOnClose registers the callback invoked when the pipe closes for any reason.
	SetOnClose(fn func())
	// SetOnError registers the callback invoked on non-fatal pipe errors.
	SetOnError(fn func(error))
	// SessionID returns the session identifier carried by this transport,
	// or "" if the transport is not session-scoped.
	SessionID() string
}
