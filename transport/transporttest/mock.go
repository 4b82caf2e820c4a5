// Package transporttest provides an in-memory transport.Transport double and
// a connected pair of them, used across this module's test suites instead
// of spinning up real stdio/HTTP plumbing. Grounded on
// verbrio-mcp-golang/internal/protocol/mock_transport_test.go's mockTransport.
package transporttest

import (
	"context"
	"sync"

	"github.com/civicteam/mcp-passthrough-proxy/transport"
)

// Mock is a Transport test double that records sent messages and lets the
// test inject inbound ones.
type Mock struct {
	mu sync.RWMutex

	onMessage func(*transport.Message)
	onClose   func()
	onError   func(error)

	sessionID string
	Sent      []*transport.Message
	started   bool
	closed    bool

	// Peer, if set, receives every message sent through this Mock directly
	// (used to wire two Mocks into a connected pair without going over the
	// wire).
	Peer *Mock
}

// New creates an unconnected Mock.
func New() *Mock { return &Mock{} }

// Pair creates two Mocks wired so that Send on one invokes the other's
// onMessage callback, simulating a connected Transport on each side.
func Pair() (a, b *Mock) {
	a, b = New(), New()
	a.Peer = b
	b.Peer = a
	return a, b
}

func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return nil
}

func (m *Mock) Send(msg *transport.Message) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	peer := m.Peer
	m.mu.Unlock()

	if peer != nil {
		peer.mu.RLock()
		handler := peer.onMessage
		peer.mu.RUnlock()
		if handler != nil {
			handler(msg)
		}
	}
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	handler := m.onClose
	m.mu.Unlock()
	if handler != nil {
		handler()
	}
	return nil
}

func (m *Mock) SetOnMessage(fn func(*transport.Message)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

func (m *Mock) SetOnClose(fn func()) {
	m.mu.Lock()
	m.onClose = fn
	m.mu.Unlock()
}

func (m *Mock) SetOnError(fn func(error)) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

func (m *Mock) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// SetSessionID lets a test stamp a session id onto the mock.
func (m *Mock) SetSessionID(id string) {
	m.mu.Lock()
	m.sessionID = id
	m.mu.Unlock()
}

// Deliver injects msg as though it arrived from the wire.
func (m *Mock) Deliver(msg *transport.Message) {
	m.mu.RLock()
	handler := m.onMessage
	m.mu.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

// Closed reports whether Close has been called.
func (m *Mock) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
