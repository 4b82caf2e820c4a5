// Package session implements the Session Manager: the HTTP front that
// multiplexes many MCP client connections, each bound to its own
// passthrough.Context, over the single PORT the proxy listens on.
// Grounded on verbrio-mcp-golang's SSEServerTransport/session-keyed
// handling in sse_server.go and server.go, generalized from "one process,
// one session" to "one process, many concurrently independent sessions".
package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/civicteam/mcp-passthrough-proxy/config"
	"github.com/civicteam/mcp-passthrough-proxy/hook"
	"github.com/civicteam/mcp-passthrough-proxy/passthrough"
	"github.com/civicteam/mcp-passthrough-proxy/transport"
	"github.com/civicteam/mcp-passthrough-proxy/transport/httpserver"
	"github.com/civicteam/mcp-passthrough-proxy/transport/httpstream"
)

const sessionHeader = "mcp-session-id"

// entry is one live session: its Context plus the server-facing transport
// the HTTP handlers drive it through.
type entry struct {
	ctx *passthrough.Context
	tr  *httpserver.Transport
}

// Manager owns every live session and the gin routes that dispatch to
// them. Construct with New, then serve Manager.Handler(), which already
// routes the configured SourceServerMCPPath, /healthz, and a reverse-proxy
// fallback for every other path.
type Manager struct {
	cfg   *config.Config
	hooks []hook.Client
	log   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*entry

	proxy  *httputil.ReverseProxy
	engine *gin.Engine
}

// New builds a Manager. hooks is the ordered chain every session's
// passthrough.Context is constructed with.
func New(cfg *config.Config, hooks []hook.Client, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	target, err := url.Parse(cfg.TargetServerURL)
	if err != nil {
		return nil, errors.Wrap(err, "session: parse TARGET_SERVER_URL")
	}

	m := &Manager{
		cfg:      cfg,
		hooks:    hooks,
		log:      log,
		sessions: make(map[string]*entry),
		proxy:    httputil.NewSingleHostReverseProxy(target),
	}
	m.proxy.Director = m.directReverseProxy(m.proxy.Director, target)

	m.engine = gin.New()
	m.engine.Use(gin.Recovery())
	m.engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	m.engine.POST(cfg.SourceServerMCPPath, m.handlePost)
	m.engine.GET(cfg.SourceServerMCPPath, m.handleGet)
	m.engine.DELETE(cfg.SourceServerMCPPath, m.handleDelete)
	m.engine.NoRoute(m.handleReverseProxy)
	return m, nil
}

// Handler returns the http.Handler serving every route this Manager owns.
func (m *Manager) Handler() http.Handler { return m.engine }

// SessionCount reports how many sessions are currently live, for tests and
// diagnostics.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RemoveAllSessions closes every live session and empties the map.
func (m *Manager) RemoveAllSessions() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for id, e := range sessions {
		if err := e.ctx.Close(); err != nil {
			m.log.Warn("session close failed during RemoveAllSessions", zap.String("session", id), zap.Error(err))
		}
	}
}

func (m *Manager) handlePost(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 16<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, jsonRPCErrorBody(-32700, "failed to read request body"))
		return
	}

	msg, err := transport.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, jsonRPCErrorBody(-32700, "malformed JSON-RPC message"))
		return
	}

	sid := c.GetHeader(sessionHeader)
	e, existed := m.lookup(sid)

	if !existed {
		if sid != "" {
			c.JSON(http.StatusBadRequest, jsonRPCErrorBody(-32000, "unknown mcp-session-id"))
			return
		}
		if msg.Kind != transport.KindRequest || msg.Request.Method != "initialize" {
			c.JSON(http.StatusBadRequest, jsonRPCErrorBody(-32000, "missing mcp-session-id"))
			return
		}
		e, sid = m.createSession(c.Request.Context(), c.Request.Header)
		c.Header(sessionHeader, sid)
	}

	resp, err := e.tr.Deliver(c.Request.Context(), msg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, jsonRPCErrorBody(-32603, err.Error()))
		return
	}
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}
	c.JSON(http.StatusOK, resp.Envelope())
}

func (m *Manager) handleGet(c *gin.Context) {
	sid := c.GetHeader(sessionHeader)
	e, ok := m.lookup(sid)
	if !ok {
		c.JSON(http.StatusBadRequest, jsonRPCErrorBody(-32000, "unknown mcp-session-id"))
		return
	}

	ch, unsubscribe := e.tr.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(msg.Envelope())
			if err != nil {
				continue
			}
			_, _ = c.Writer.Write([]byte("data: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (m *Manager) handleDelete(c *gin.Context) {
	sid := c.GetHeader(sessionHeader)
	m.mu.Lock()
	e, ok := m.sessions[sid]
	if ok {
		delete(m.sessions, sid)
	}
	m.mu.Unlock()

	if !ok {
		c.JSON(http.StatusBadRequest, jsonRPCErrorBody(-32000, "unknown mcp-session-id"))
		return
	}
	if err := e.ctx.Close(); err != nil {
		m.log.Warn("session close failed", zap.String("session", sid), zap.Error(err))
	}
	c.Status(http.StatusOK)
}

func (m *Manager) handleReverseProxy(c *gin.Context) {
	m.proxy.ServeHTTP(c.Writer, c.Request)
}

func (m *Manager) lookup(sid string) (*entry, bool) {
	if sid == "" {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sid]
	return e, ok
}

func (m *Manager) createSession(ctx context.Context, clientHeaders http.Header) (*entry, string) {
	sid := uuid.NewString()

	serverTr := httpserver.New(sid)
	clientTr := httpstream.New(m.cfg.TargetServerURL, m.cfg.TargetServerMCPPath,
		httpstream.WithHeaders(filterHeaders(clientHeaders, m.cfg.AuthToken)))

	pc := passthrough.New(m.hooks, passthrough.Options{}, m.log)
	if err := pc.Connect(ctx, serverTr, clientTr); err != nil {
		m.log.Error("failed to connect new session", zap.Error(err))
	}

	e := &entry{ctx: pc, tr: serverTr}

	m.mu.Lock()
	m.sessions[sid] = e
	m.mu.Unlock()

	serverTr.SetOnClose(func() {
		m.mu.Lock()
		delete(m.sessions, sid)
		m.mu.Unlock()
	})

	return e, sid
}

// directReverseProxy wraps the default Director to apply the proxy's
// header filter (hop-by-hop, MCP-reserved headers, cookies dropped;
// everything else preserved) instead of httputil's default passthrough.
func (m *Manager) directReverseProxy(base func(*http.Request), target *url.URL) func(*http.Request) {
	return func(req *http.Request) {
		base(req)
		req.Header = filterHeaders(req.Header, m.cfg.AuthToken)
		req.Host = target.Host
	}
}

func jsonRPCErrorBody(code int, message string) gin.H {
	return gin.H{
		"jsonrpc": "2.0",
		"id":      nil,
		"error":   gin.H{"code": code, "message": message},
	}
}
