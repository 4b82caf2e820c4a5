// Package mcperr implements the proxy's error taxonomy: stable
// JSON-RPC error codes, a typed Error carrying them, and coercion of a
// target TransportError into the surfaced client-visible error.
package mcperr

import (
	"encoding/json"
	"fmt"
)

// Code is one of the stable error codes the proxy ever emits on the wire.
type Code int

const (
	// CodeParseError marks malformed JSON on an MCP endpoint.
	CodeParseError Code = -32700
	// CodeBadRequest marks a missing required session id or an unsupported
	// initialize protocol version.
	CodeBadRequest Code = -32000
	// CodeRequestRejected marks a request-path hook Abort, or the absence
	// of a client transport to forward onto.
	CodeRequestRejected Code = -32001
	// CodeResponseRejected marks a response-path hook Abort or an
	// otherwise-unhandled internal fault.
	CodeResponseRejected Code = -32603
)

// Error is the typed JSON-RPC error this module ever returns to a caller.
type Error struct {
	Code    Code
	Message string
	Data    interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("mcperr: code=%d message=%s", e.Code, e.Message)
}

// New builds an Error with no data payload.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithData attaches a data payload and returns the same Error for chaining.
func (e *Error) WithData(data interface{}) *Error {
	e.Data = data
	return e
}

// RequestRejected is the standard "hook aborted the request" / "no client
// transport" error.
func RequestRejected(reason string) *Error {
	return New(CodeRequestRejected, reason)
}

// ResponseRejected is the standard "hook aborted the response" error.
func ResponseRejected(reason string) *Error {
	return New(CodeResponseRejected, reason)
}

// TransportError describes a failure observed at
// the transport layer when talking to the target, not a JSON-RPC error
// returned by the target's application logic.
type TransportError struct {
	Code         int
	Message      string
	Data         interface{}
	ResponseType string // "http" or "jsonrpc"
	StatusCode   int    // meaningful only when ResponseType == "http"
	Body         []byte // meaningful only when ResponseType == "http"
}

func (t *TransportError) Error() string {
	return fmt.Sprintf("mcperr: transport error code=%d message=%s", t.Code, t.Message)
}

// FromTransport coerces a TransportError into the Error the client actually
// sees. HTTP-responseType errors synthesize a JSON-RPC internal error
// carrying the original status/body as structured data, as resolved in
// DESIGN.md for the stdio front.
func FromTransport(t *TransportError) *Error {
	if t.ResponseType == "http" {
		// This synthesized form is what every front surfaces, the HTTP
		// front included: session.Manager writes the endpoint's JSON-RPC
		// error as the POST body and does not replay the target's HTTP
		// status or raw body.
		return New(CodeResponseRejected, t.Message).WithData(httpErrorData(t))
	}
	return New(CodeResponseRejected, t.Message).WithData(t.Data)
}

func httpErrorData(t *TransportError) map[string]interface{} {
	data := map[string]interface{}{
		"statusCode": t.StatusCode,
	}
	if len(t.Body) > 0 {
		var parsed interface{}
		if json.Unmarshal(t.Body, &parsed) == nil {
			data["body"] = parsed
		} else {
			data["body"] = string(t.Body)
		}
	}
	return data
}

// RPCErrorPayload renders e as the `error` member of a JSON-RPC Error
// response.
func (e *Error) RPCErrorPayload() (int, string, json.RawMessage) {
	var data json.RawMessage
	if e.Data != nil {
		data, _ = json.Marshal(e.Data)
	}
	return int(e.Code), e.Message, data
}
