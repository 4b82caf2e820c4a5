// Package stdio implements the Transport contract over newline-delimited
// JSON-RPC on stdin/stdout, generalizing verbrio-mcp-golang's StdioTransport
// to the shared transport.Message envelope.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/civicteam/mcp-passthrough-proxy/transport"
)

// readBuffer accumulates a continuous stdio stream into discrete lines.
type readBuffer struct {
	mu     sync.Mutex
	buffer []byte
}

func (rb *readBuffer) append(chunk []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buffer = append(rb.buffer, chunk...)
}

// readLine extracts one newline-terminated line, or returns nil if the
// buffer holds no complete line yet.
func (rb *readBuffer) readLine() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for i, b := range rb.buffer {
		if b == '\n' {
			line := rb.buffer[:i]
			rb.buffer = rb.buffer[i+1:]
			out := make([]byte, len(line))
			copy(out, line)
			return out
		}
	}
	return nil
}

// Transport implements transport.Transport over stdin/stdout. Logs must
// never be written to stdout by any consumer of this transport — it is the
// wire.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	buf    *readBuffer

	mu         sync.RWMutex
	closed     bool
	onMessage  func(*transport.Message)
	onClose    func()
	onError    func(error)
	sendMu     sync.Mutex
	wg         sync.WaitGroup
}

// New creates a stdio Transport reading os.Stdin and writing os.Stdout.
func New() *Transport {
	return &Transport{
		reader: bufio.NewReader(os.Stdin),
		writer: os.Stdout,
		buf:    &readBuffer{},
	}
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("stdio: transport is closed")
	}
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(ctx)
	return nil
}

func (t *Transport) Send(msg *transport.Message) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return errors.New("stdio: transport is closed")
	}
	t.mu.RUnlock()

	data, err := encodeLine(msg)
	if err != nil {
		return errors.Wrap(err, "stdio: encode message")
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	_, err = t.writer.Write(data)
	return err
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	handler := t.onClose
	t.mu.Unlock()

	if handler != nil {
		handler()
	}
	t.wg.Wait()
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

// SessionID is always empty: stdio fronts are single-session by construction.
func (t *Transport) SessionID() string { return "" }

func (t *Transport) readLoop(ctx context.Context) {
	defer t.wg.Done()

	chunk := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.mu.RLock()
		closed := t.closed
		t.mu.RUnlock()
		if closed {
			return
		}

		n, err := t.reader.Read(chunk)
		if n > 0 {
			t.buf.append(chunk[:n])
			t.drainLines()
		}
		if err != nil {
			if err != io.EOF {
				t.reportError(errors.Wrap(err, "stdio: read"))
			}
			return
		}
	}
}

func (t *Transport) drainLines() {
	for {
		line := t.buf.readLine()
		if line == nil {
			return
		}
		if len(line) == 0 {
			continue
		}
		msg, err := transport.Decode(line)
		if err != nil {
			t.reportError(err)
			continue
		}
		t.mu.RLock()
		handler := t.onMessage
		t.mu.RUnlock()
		if handler != nil {
			handler(msg)
		}
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

func encodeLine(msg *transport.Message) ([]byte, error) {
	data, err := json.Marshal(msg.Envelope())
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
