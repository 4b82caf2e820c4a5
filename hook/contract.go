// Package hook implements the Hook contract, the doubly
// linked hook chain, and the hook processor that walks it.
//
// A Hook may implement any subset of the process* methods. Rather than a
// single fat interface every hook must fully implement, each optional
// operation is expressed as its own small interface (InitializeRequestProcessor,
// CallToolResultProcessor, ...); a concrete hook implements only the ones it
// cares about, and the Client wrappers treat every other operation as a
// pass-through Continue. Base only supplies Name() when embedded.
// Capability is then discovered per call via a type assertion —
// the same "capability via type assertion" shape used by
// other_examples' localrivet-gomcp hooks package, generalized from
// standalone function types to methods on a named Hook.
package hook

import (
	"context"
	"encoding/json"
)

// RequestContext is attached to a request as it traverses the chain
// Hooks may mutate Headers/Host/Path; the transport consults
// the final RequestContext when sending.
type RequestContext struct {
	RequestID string
	SessionID string
	Headers   map[string]string
	Host      string
	Path      string
}

// Clone returns a deep-enough copy so a hook can mutate its own view without
// affecting a concurrently traversing copy.
func (c *RequestContext) Clone() *RequestContext {
	if c == nil {
		return nil
	}
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	return &RequestContext{
		RequestID: c.RequestID,
		SessionID: c.SessionID,
		Headers:   headers,
		Host:      c.Host,
		Path:      c.Path,
	}
}

// Verb tags which case of HookResult is populated.
type Verb int

const (
	VerbContinue Verb = iota
	VerbRespond
	VerbAbort
)

// Result is the tagged union a hook returns. Exactly one of
// Payload (for Continue/Respond) or Reason (for Abort) is meaningful,
// selected by Verb.
type Result struct {
	Verb    Verb
	Payload json.RawMessage // the (possibly modified) request/response/notification
	Reason  string          // populated only when Verb == VerbAbort
}

// Continue keeps traversing the chain with payload as the current request,
// response, or notification body.
func Continue(payload json.RawMessage) Result {
	return Result{Verb: VerbContinue, Payload: payload}
}

// Respond short-circuits a request-path or notification-path traversal
// with a synthesized response. Illegal on the response path.
func Respond(payload json.RawMessage) Result {
	return Result{Verb: VerbRespond, Payload: payload}
}

// Abort fails the operation with an MCP error carrying reason as its
// message.
func Abort(reason string) Result {
	return Result{Verb: VerbAbort, Reason: reason}
}

// Hook is the contract a chain element satisfies, whether backed by an
// in-process implementation (LocalClient) or an out-of-process HTTP service
// (RemoteClient). Every method is "optional" in the sense that an absent
// capability must behave as Continue with the unmodified payload — Client
// implementations guarantee that, so hook authors only implement Hook
// itself plus whichever *Processor interfaces they care about.
type Hook interface {
	Name() string
}

// Each of the following capability interfaces corresponds to one row of
// the set of operations a hook may optionally handle. A concrete hook type implements Hook plus any
// subset of these; Client.Process* probes for the interface via a type
// assertion and falls back to Continue when absent.

type InitializeRequestProcessor interface {
	ProcessInitializeRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) (Result, error)
}

type InitializeResultProcessor interface {
	ProcessInitializeResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) (Result, error)
}

type ListToolsRequestProcessor interface {
	ProcessListToolsRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) (Result, error)
}

type ListToolsResultProcessor interface {
	ProcessListToolsResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) (Result, error)
}

type CallToolRequestProcessor interface {
	ProcessCallToolRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) (Result, error)
}

type CallToolResultProcessor interface {
	ProcessCallToolResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) (Result, error)
}

type OtherRequestProcessor interface {
	ProcessOtherRequest(ctx context.Context, method string, req json.RawMessage, rc *RequestContext) (Result, error)
}

type OtherResultProcessor interface {
	ProcessOtherResult(ctx context.Context, method string, result json.RawMessage, originalReq json.RawMessage) (Result, error)
}

type TargetRequestProcessor interface {
	ProcessTargetRequest(ctx context.Context, method string, req json.RawMessage) (Result, error)
}

type TargetResultProcessor interface {
	ProcessTargetResult(ctx context.Context, method string, result json.RawMessage, originalReq json.RawMessage) (Result, error)
}

type NotificationProcessor interface {
	ProcessNotification(ctx context.Context, method string, notif json.RawMessage) (Result, error)
}

type TargetNotificationProcessor interface {
	ProcessTargetNotification(ctx context.Context, method string, notif json.RawMessage) (Result, error)
}

// TransportErrorResult mirrors mcperr.TransportError's shape without this
// package depending on mcperr, to keep hook free of the error-taxonomy
// package (it is consumed by mcperr's caller, not the reverse).
type TransportErrorResult struct {
	Code         int
	Message      string
	ResponseType string
	StatusCode   int
	Body         []byte
}

type CallToolTransportErrorProcessor interface {
	ProcessCallToolTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) (Result, error)
}

type ListToolsTransportErrorProcessor interface {
	ProcessListToolsTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) (Result, error)
}

type InitializeTransportErrorProcessor interface {
	ProcessInitializeTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) (Result, error)
}

// Base is embedded by in-process hooks that only implement a subset of the
// *Processor interfaces; its only method is Name() (Go's type-assertion
// capability discovery needs no default process* methods), so it documents
// the pattern hook authors follow and gives every hook a Name().
type Base struct {
	HookName string
}

// Name satisfies Hook.
func (b Base) Name() string { return b.HookName }
