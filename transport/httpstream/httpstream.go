// Package httpstream implements the Transport contract against a target MCP
// server reachable over HTTP streaming: POST for client-originated requests
// and notifications, GET with Server-Sent Events for target-originated
// pushes, with reconnection backoff. Grounded on the SSE framing shape of
// verbrio-mcp-golang/sse.go and the retry/backoff and single-shot-RPC helper
// of other_examples' RevittCo-mcplexer HTTPInstance, adapted to the shared
// transport.Transport contract instead of a bespoke client API.
package httpstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/civicteam/mcp-passthrough-proxy/transport"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 1.5
	maxRetries     = 2
)

// Transport talks to a single target MCP server over HTTP streaming.
type Transport struct {
	baseURL string
	path    string
	client  *http.Client
	headers http.Header

	mu        sync.RWMutex
	closed    bool
	sessionID string

	onMessage func(*transport.Message)
	onClose   func()
	onError   func(error)

	cancelSSE context.CancelFunc
	wg        sync.WaitGroup
}

// Option configures a Transport at construction time.
type Option func(*Transport)

// WithHeaders sets the static headers forwarded on every outbound request
// (already filtered per the proxy's header policy by the caller).
func WithHeaders(h http.Header) Option {
	return func(t *Transport) { t.headers = h }
}

// WithHTTPClient overrides the default *http.Client (e.g. for test doubles).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// New creates a Transport targeting baseURL+path.
func New(baseURL, path string, opts ...Option) *Transport {
	t := &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    path,
		client:  &http.Client{Timeout: 60 * time.Second},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) url() string { return t.baseURL + t.path }

// Start opens the SSE stream used for target-initiated pushes. Each request
// the proxy itself originates is sent independently via Send, matching the
// streamable-HTTP transport's "POST per call, GET for server push" split.
func (t *Transport) Start(ctx context.Context) error {
	sseCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancelSSE = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.sseLoop(sseCtx)
	return nil
}

func (t *Transport) sseLoop(ctx context.Context) {
	defer t.wg.Done()

	delay := initialBackoff
	attempts := 0
	lastEventID := ""

	for {
		if ctx.Err() != nil {
			return
		}

		err := t.consumeSSEOnce(ctx, &lastEventID)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// Stream ended cleanly (target closed it); reconnect from scratch.
			attempts = 0
			delay = initialBackoff
			continue
		}

		attempts++
		if attempts > maxRetries {
			t.reportError(errors.Wrapf(err, "httpstream: SSE stream failed after %d retries", maxRetries))
			return
		}
		t.reportError(errors.Wrap(err, "httpstream: SSE stream error, reconnecting"))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay = time.Duration(float64(delay) * backoffFactor)
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

func (t *Transport) consumeSSEOnce(ctx context.Context, lastEventID *string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url(), nil)
	if err != nil {
		return errors.Wrap(err, "build SSE request")
	}
	t.applyHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	if *lastEventID != "" {
		req.Header.Set("Last-Event-ID", *lastEventID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpstream: SSE GET returned status %d", resp.StatusCode)
	}
	if sid := resp.Header.Get("mcp-session-id"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	return t.readSSEFrames(resp.Body, lastEventID)
}

func (t *Transport) readSSEFrames(body io.Reader, lastEventID *string) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLines []string
	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = nil
		msg, err := transport.Decode([]byte(payload))
		if err != nil {
			t.reportError(errors.Wrap(err, "httpstream: decode SSE payload"))
			return
		}
		t.dispatch(msg)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "id:"):
			*lastEventID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	flush()
	return scanner.Err()
}

// Send issues one HTTP POST carrying msg. Requests expect a JSON-RPC
// response or error in the POST body (synchronous streamable-HTTP mode);
// notifications expect 202 Accepted with no body.
func (t *Transport) Send(msg *transport.Message) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return errors.New("httpstream: transport is closed")
	}
	t.mu.RUnlock()

	body, err := json.Marshal(msg.Envelope())
	if err != nil {
		return errors.Wrap(err, "httpstream: encode outbound message")
	}

	req, err := http.NewRequest(http.MethodPost, t.url(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "httpstream: build POST request")
	}
	t.applyHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "httpstream: POST failed")
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("mcp-session-id"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	if resp.StatusCode == http.StatusAccepted {
		return nil // notification acknowledged, nothing to dispatch
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &TransportHTTPError{Status: resp.StatusCode, RawBody: data}
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/event-stream") {
		lastEventID := ""
		return t.readSSEFrames(resp.Body, &lastEventID)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return errors.Wrap(err, "httpstream: read POST response body")
	}
	if len(data) == 0 {
		return nil
	}
	out, err := transport.Decode(data)
	if err != nil {
		return errors.Wrap(err, "httpstream: decode POST response")
	}
	t.dispatch(out)
	return nil
}

// TransportHTTPError carries a raw HTTP failure from the target so that
// mcperr.FromTransport can preserve status and body. It satisfies
// transport.HTTPError.
type TransportHTTPError struct {
	Status  int
	RawBody []byte
}

func (e *TransportHTTPError) Error() string {
	return fmt.Sprintf("httpstream: target returned HTTP %d", e.Status)
}

func (e *TransportHTTPError) StatusCode() int      { return e.Status }
func (e *TransportHTTPError) ResponseBody() []byte { return e.RawBody }

func (t *Transport) applyHeaders(req *http.Request) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for k, vs := range t.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if t.sessionID != "" {
		req.Header.Set("mcp-session-id", t.sessionID)
	}
}

func (t *Transport) dispatch(msg *transport.Message) {
	t.mu.RLock()
	handler := t.onMessage
	t.mu.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

func (t *Transport) reportError(err error) {
	t.mu.RLock()
	handler := t.onError
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel := t.cancelSSE
	handler := t.onClose
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
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

func (t *Transport) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}
