// Package endpoint implements the Base Protocol Endpoint:
// request/response correlation, notification dispatch, per-method and
// fallback handlers, and lifecycle callbacks, on top of one transport.Transport.
//
// It generalizes verbrio-mcp-golang/internal/protocol.Protocol from a
// single undifferentiated role into two named roles,
// ServerEndpoint and ClientEndpoint, which share all behavior and exist
// only so call sites read naturally about which side they're talking to.
package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/civicteam/mcp-passthrough-proxy/transport"
)

// DefaultRequestTimeout is used when RequestOptions.Timeout is zero.
const DefaultRequestTimeout = 60 * time.Second

// RequestHandler answers one inbound request. Returning an error yields a
// JSON-RPC error response to the peer.
type RequestHandler func(ctx context.Context, req *transport.Request) (interface{}, error)

// NotificationHandler reacts to one inbound notification. Notifications
// have no reply channel; a returned error is only ever logged.
type NotificationHandler func(ctx context.Context, notif *transport.Notification) error

// RequestOptions customizes a single outgoing request.
type RequestOptions struct {
	Context context.Context
	Timeout time.Duration
}

type pendingResponse struct {
	result json.RawMessage
	err    error
}

// RemoteError is returned by Request when the peer answered with a
// well-formed JSON-RPC error response, as opposed to a transport-layer
// failure (connection refused, non-2xx HTTP status, ...). Callers that
// care about the distinction (passthrough.Context routing to
// process*TransportError hooks) type-assert for this.
type RemoteError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("endpoint: remote returned error %d: %s", e.Code, e.Message)
}

// Endpoint correlates requests/responses over one Transport and dispatches
// inbound requests/notifications to registered handlers.
type Endpoint struct {
	tr transport.Transport

	mu                   sync.RWMutex
	nextID               int64
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	pending              map[string]chan *pendingResponse
	cancellers           map[string]context.CancelFunc

	FallbackRequestHandler      RequestHandler
	FallbackNotificationHandler NotificationHandler

	OnClose func()
	OnError func(error)
}

// New builds an unattached Endpoint; call Connect to wire it to a Transport.
func New() *Endpoint {
	return &Endpoint{
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		pending:              make(map[string]chan *pendingResponse),
		cancellers:           make(map[string]context.CancelFunc),
	}
}

// Connect attaches tr, starts it, and begins dispatching inbound messages.
// The initialize handshake is deliberately NOT special-cased here: no
// capability negotiation happens at the endpoint layer — the passthrough
// Context's dedicated initialize handler owns that method like any other
// recognized method.
func (e *Endpoint) Connect(ctx context.Context, tr transport.Transport) error {
	e.mu.Lock()
	e.tr = tr
	e.mu.Unlock()

	tr.SetOnClose(e.handleClose)
	tr.SetOnError(e.handleError)
	tr.SetOnMessage(func(msg *transport.Message) { e.handleMessage(ctx, msg) })

	return tr.Start(ctx)
}

func (e *Endpoint) handleMessage(ctx context.Context, msg *transport.Message) {
	switch msg.Kind {
	case transport.KindRequest:
		e.handleRequest(ctx, msg.Request)
	case transport.KindNotification:
		e.handleNotification(ctx, msg.Notification)
	case transport.KindResponse:
		e.handleResponse(msg.Response.ID, msg.Response.Result, nil)
	case transport.KindError:
		e.handleResponse(msg.Err.ID, nil, &RemoteError{
			Code:    msg.Err.Error.Code,
			Message: msg.Err.Error.Message,
			Data:    msg.Err.Error.Data,
		})
	}
}

func (e *Endpoint) handleRequest(parentCtx context.Context, req *transport.Request) {
	e.mu.RLock()
	handler, ok := e.requestHandlers[req.Method]
	fallback := e.FallbackRequestHandler
	e.mu.RUnlock()
	if !ok {
		handler = fallback
	}

	ctx, cancel := context.WithCancel(parentCtx)
	e.mu.Lock()
	e.cancellers[req.ID.String()] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.cancellers, req.ID.String())
			e.mu.Unlock()
			cancel()
		}()

		if handler == nil {
			e.sendError(req.ID, -32601, fmt.Sprintf("method not found: %s", req.Method))
			return
		}

		result, err := handler(ctx, req)
		if err != nil {
			code, message, data := -32603, err.Error(), json.RawMessage(nil)
			if coded, ok := err.(codedError); ok {
				code, message, data = coded.RPCErrorPayload()
			}
			e.sendCodedError(req.ID, code, message, data)
			return
		}

		resultJSON, err := json.Marshal(result)
		if err != nil {
			e.sendError(req.ID, -32603, errors.Wrap(err, "marshal result").Error())
			return
		}

		if sendErr := e.send(&transport.Message{
			Kind:     transport.KindResponse,
			Response: &transport.Response{JSONRPC: "2.0", ID: req.ID, Result: resultJSON},
		}); sendErr != nil {
			e.handleError(errors.Wrap(sendErr, "send response"))
		}
	}()
}

func (e *Endpoint) handleNotification(ctx context.Context, notif *transport.Notification) {
	e.mu.RLock()
	handler, ok := e.notificationHandlers[notif.Method]
	fallback := e.FallbackNotificationHandler
	e.mu.RUnlock()
	if !ok {
		handler = fallback
	}
	if handler == nil {
		return
	}
	go func() {
		if err := handler(ctx, notif); err != nil {
			e.handleError(errors.Wrap(err, "notification handler"))
		}
	}()
}

func (e *Endpoint) handleResponse(id transport.ID, result json.RawMessage, err error) {
	e.mu.RLock()
	ch, ok := e.pending[id.String()]
	e.mu.RUnlock()
	if !ok {
		e.handleError(fmt.Errorf("endpoint: response for unknown request id %s", id.String()))
		return
	}
	ch <- &pendingResponse{result: result, err: err}
}

func (e *Endpoint) handleClose() {
	e.mu.Lock()
	for _, cancel := range e.cancellers {
		cancel()
	}
	e.cancellers = make(map[string]context.CancelFunc)
	for id, ch := range e.pending {
		ch <- &pendingResponse{err: errors.New("endpoint: connection closed")}
		delete(e.pending, id)
	}
	onClose := e.OnClose
	e.mu.Unlock()
	if onClose != nil {
		onClose()
	}
}

func (e *Endpoint) handleError(err error) {
	e.mu.RLock()
	onError := e.OnError
	e.mu.RUnlock()
	if onError != nil {
		onError(err)
	}
}

// Request sends req and blocks until a correlated response, the options'
// context is cancelled, or the timeout elapses.
func (e *Endpoint) Request(ctx context.Context, method string, params interface{}, opts *RequestOptions) (json.RawMessage, error) {
	e.mu.RLock()
	tr := e.tr
	e.mu.RUnlock()
	if tr == nil {
		return nil, errors.New("endpoint: not connected")
	}

	if opts == nil {
		opts = &RequestOptions{}
	}
	if opts.Context == nil {
		opts.Context = ctx
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultRequestTimeout
	}

	id := transport.NewIntID(atomic.AddInt64(&e.nextID, 1))
	ch := make(chan *pendingResponse, 1)
	e.mu.Lock()
	e.pending[id.String()] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, id.String())
		e.mu.Unlock()
	}()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "endpoint: marshal params")
	}

	if err := e.send(&transport.Message{
		Kind: transport.KindRequest,
		Request: &transport.Request{
			JSONRPC: "2.0",
			ID:      id,
			Method:  method,
			Params:  paramsJSON,
		},
	}); err != nil {
		return nil, errors.Wrap(err, "endpoint: send request")
	}

	select {
	case resp := <-ch:
		if resp.err != nil {
			return nil, resp.err
		}
		return resp.result, nil
	case <-opts.Context.Done():
		return nil, opts.Context.Err()
	case <-time.After(opts.Timeout):
		return nil, fmt.Errorf("endpoint: request %q timed out after %s", method, opts.Timeout)
	}
}

// Notification emits a one-way message; no response is expected.
func (e *Endpoint) Notification(method string, params interface{}) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "endpoint: marshal notification params")
	}
	return e.send(&transport.Message{
		Kind:         transport.KindNotification,
		Notification: &transport.Notification{JSONRPC: "2.0", Method: method, Params: paramsJSON},
	})
}

func (e *Endpoint) send(msg *transport.Message) error {
	e.mu.RLock()
	tr := e.tr
	e.mu.RUnlock()
	if tr == nil {
		return errors.New("endpoint: not connected")
	}
	return tr.Send(msg)
}

// codedError is implemented by mcperr.Error, letting a handler error carry
// its real JSON-RPC code/data across the package boundary without endpoint
// importing mcperr directly.
type codedError interface {
	RPCErrorPayload() (int, string, json.RawMessage)
}

func (e *Endpoint) sendError(id transport.ID, code int, message string) {
	e.sendCodedError(id, code, message, nil)
}

func (e *Endpoint) sendCodedError(id transport.ID, code int, message string, data json.RawMessage) {
	err := e.send(&transport.Message{
		Kind: transport.KindError,
		Err: &transport.Error{
			JSONRPC: "2.0",
			ID:      id,
			Error:   transport.RPCError{Code: code, Message: message, Data: data},
		},
	})
	if err != nil {
		e.handleError(errors.Wrap(err, "endpoint: send error response"))
	}
}

// SetRequestHandler registers handler for inbound requests with this method.
func (e *Endpoint) SetRequestHandler(method string, handler RequestHandler) {
	e.mu.Lock()
	e.requestHandlers[method] = handler
	e.mu.Unlock()
}

// RemoveRequestHandler deregisters the handler for method, if any.
func (e *Endpoint) RemoveRequestHandler(method string) {
	e.mu.Lock()
	delete(e.requestHandlers, method)
	e.mu.Unlock()
}

// SetNotificationHandler registers handler for inbound notifications with this method.
func (e *Endpoint) SetNotificationHandler(method string, handler NotificationHandler) {
	e.mu.Lock()
	e.notificationHandlers[method] = handler
	e.mu.Unlock()
}

// RemoveNotificationHandler deregisters the handler for method, if any.
func (e *Endpoint) RemoveNotificationHandler(method string) {
	e.mu.Lock()
	delete(e.notificationHandlers, method)
	e.mu.Unlock()
}

// Close closes the underlying transport. handleClose fires as a result.
func (e *Endpoint) Close() error {
	e.mu.RLock()
	tr := e.tr
	e.mu.RUnlock()
	if tr == nil {
		return nil
	}
	return tr.Close()
}

// Connected reports whether a transport has been attached via Connect.
func (e *Endpoint) Connected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tr != nil
}

// SessionID reports the attached transport's session id, or "" if
// unconnected or the transport doesn't carry one.
func (e *Endpoint) SessionID() string {
	e.mu.RLock()
	tr := e.tr
	e.mu.RUnlock()
	if tr == nil {
		return ""
	}
	return tr.SessionID()
}
