// Package httpserver implements the Transport contract on the side facing
// the MCP client over HTTP streaming: an inbound POST is decoded and handed
// to the owning endpoint, then the call blocks until that same request's
// correlated response or error is handed back via Send, the way
// endpoint.Endpoint already correlates its own pending requests by id.
// Server-initiated requests and notifications (and any response whose POST
// caller already gave up) are instead broadcast to every subscribed SSE
// stream, mirroring the GET-for-pushes half of httpstream's client-facing
// counterpart.
package httpserver

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/civicteam/mcp-passthrough-proxy/transport"
)

// Transport is one session's server-facing pipe. It is driven entirely by
// the Session Manager's HTTP handlers (Deliver from POST, Subscribe from
// GET) rather than by a background read loop.
type Transport struct {
	sessionID string

	mu      sync.RWMutex
	closed  bool
	pending map[string]chan *transport.Message

	subMu sync.Mutex
	subs  map[chan *transport.Message]struct{}

	onMessage func(*transport.Message)
	onClose   func()
	onError   func(error)
}

// New builds a Transport scoped to sessionID.
func New(sessionID string) *Transport {
	return &Transport{
		sessionID: sessionID,
		pending:   make(map[string]chan *transport.Message),
		subs:      make(map[chan *transport.Message]struct{}),
	}
}

// Start is a no-op: this transport has no background loop, it is fed
// directly by HTTP handlers.
func (t *Transport) Start(ctx context.Context) error { return nil }

// Deliver hands one inbound message (decoded from a POST body) to the
// owning endpoint. For a request, it blocks until Send is called with the
// correlated response or error, or until ctx is done, and returns that
// message so the caller can write it as the HTTP response body.
// Notifications and responses return nil immediately once dispatched.
func (t *Transport) Deliver(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	t.mu.RLock()
	handler := t.onMessage
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return nil, errors.New("httpserver: transport is closed")
	}
	if handler == nil {
		return nil, errors.New("httpserver: no message handler registered")
	}

	if msg.Kind != transport.KindRequest {
		handler(msg)
		return nil, nil
	}

	key := msg.Request.ID.String()
	ch := make(chan *transport.Message, 1)
	t.mu.Lock()
	t.pending[key] = ch
	t.mu.Unlock()

	handler(msg)

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Send delivers an outbound message. A response or error correlated to an
// in-flight Deliver call resolves that call; anything else (a server-
// initiated request or notification, or a response whose POST caller
// already disconnected) is broadcast to every subscribed SSE stream.
func (t *Transport) Send(msg *transport.Message) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return errors.New("httpserver: transport is closed")
	}
	t.mu.RUnlock()

	var id transport.ID
	var hasID bool
	switch msg.Kind {
	case transport.KindResponse:
		id, hasID = msg.Response.ID, true
	case transport.KindError:
		id, hasID = msg.Err.ID, true
	}

	if hasID {
		key := id.String()
		t.mu.Lock()
		ch, ok := t.pending[key]
		if ok {
			delete(t.pending, key)
		}
		t.mu.Unlock()
		if ok {
			ch <- msg
			return nil
		}
	}

	t.broadcast(msg)
	return nil
}

// Subscribe registers a new SSE listener and returns its channel plus an
// unsubscribe function the GET handler must call when the stream ends.
func (t *Transport) Subscribe() (<-chan *transport.Message, func()) {
	ch := make(chan *transport.Message, 16)
	t.subMu.Lock()
	t.subs[ch] = struct{}{}
	t.subMu.Unlock()

	unsubscribe := func() {
		t.subMu.Lock()
		delete(t.subs, ch)
		t.subMu.Unlock()
	}
	return ch, unsubscribe
}

func (t *Transport) broadcast(msg *transport.Message) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for ch := range t.subs {
		select {
		case ch <- msg:
		default:
			// slow subscriber: drop rather than block Send for every session
		}
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for key, ch := range t.pending {
		ch <- &transport.Message{
			Kind: transport.KindError,
			Err:  &transport.Error{JSONRPC: "2.0", Error: transport.RPCError{Code: -32603, Message: "httpserver: transport closed"}},
		}
		delete(t.pending, key)
	}
	handler := t.onClose
	t.mu.Unlock()

	t.subMu.Lock()
	for ch := range t.subs {
		close(ch)
		delete(t.subs, ch)
	}
	t.subMu.Unlock()

	if handler != nil {
		handler()
	}
	return nil
}

func (t *Transport) SetOnMessage(fn func(*transport.Message)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

func (t *Transport) SetOnClose(fn func()) {
	t.mu.Lock()
	t.onClose = fn
	t.mu.Unlock()
}

func (t *Transport) SetOnError(fn func(error)) {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
}

func (t *Transport) SessionID() string { return t.sessionID }
