// Package passthrough implements the Passthrough Context: the component
// that sits between one MCP client and one target MCP server, running
// every request and response through a hook chain before forwarding.
package passthrough

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/civicteam/mcp-passthrough-proxy/endpoint"
	"github.com/civicteam/mcp-passthrough-proxy/hook"
	"github.com/civicteam/mcp-passthrough-proxy/mcperr"
	"github.com/civicteam/mcp-passthrough-proxy/transport"
)

const metadataSource = "passthrough-server"

// HookOtherRequests controls whether unrecognized request methods are
// routed through processOtherRequest/processOtherResult or forwarded to
// the target directly. Default is false: a simpler deployment forwards
// "other" methods without hook coverage, since most hooks only care about
// initialize/tools/list/tools/call.
type Options struct {
	HookOtherRequests bool
}

// Context owns one ServerEndpoint (faces the MCP client), one
// ClientEndpoint (faces the target MCP server), and the hook chain both
// sides run through.
type Context struct {
	chain *hook.Chain
	opts  Options
	log   *zap.Logger

	server *endpoint.ServerEndpoint
	client *endpoint.ClientEndpoint
}

// New builds a Context with the given ordered hook clients. hooks may be
// empty, in which case every recognized method forwards unmodified.
func New(hooks []hook.Client, opts Options, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	chain := hook.NewChain()
	for _, h := range hooks {
		chain.Append(h)
	}

	c := &Context{
		chain:  chain,
		opts:   opts,
		log:    log,
		server: endpoint.NewServerEndpoint(),
		client: endpoint.NewClientEndpoint(),
	}
	c.installHandlers()
	return c
}

// Chain exposes the hook chain, mostly for tests and diagnostics.
func (c *Context) Chain() *hook.Chain { return c.chain }

func (c *Context) installHandlers() {
	c.server.SetRequestHandler("initialize", c.handleInitialize)
	c.server.SetRequestHandler("tools/list", c.handleListTools)
	c.server.SetRequestHandler("tools/call", c.handleCallTool)
	c.server.FallbackRequestHandler = c.handleOtherRequest
	c.server.FallbackNotificationHandler = c.handleClientNotification

	c.client.FallbackRequestHandler = c.handleTargetRequest
	c.client.FallbackNotificationHandler = c.handleTargetNotification

	c.server.OnClose = func() { c.cascadeClose(c.client.Endpoint) }
	c.client.OnClose = func() { c.cascadeClose(c.server.Endpoint) }
	c.server.OnError = c.reportError
	c.client.OnError = c.reportError
}

// Connect attaches serverTransport (facing the MCP client) and, if
// non-nil, clientTransport (facing the target). clientTransport may be
// omitted for deployments that don't forward to a live target.
func (c *Context) Connect(ctx context.Context, serverTransport, clientTransport transport.Transport) error {
	if err := c.server.Connect(ctx, serverTransport); err != nil {
		return errors.Wrap(err, "connect server transport")
	}
	if clientTransport != nil {
		if err := c.client.Connect(ctx, clientTransport); err != nil {
			return errors.Wrap(err, "connect client transport")
		}
	}
	return nil
}

func (c *Context) cascadeClose(e *endpoint.Endpoint) {
	if e == nil {
		return
	}
	if err := e.Close(); err != nil {
		c.reportError(errors.Wrap(err, "close cascade"))
	}
}

func (c *Context) reportError(err error) {
	c.log.Warn("passthrough context error", zap.Error(err))
}

// Close tears down both endpoints.
func (c *Context) Close() error {
	serverErr := c.server.Close()
	clientErr := c.client.Close()
	if serverErr != nil {
		return serverErr
	}
	return clientErr
}

// sessionID reports the id of the server-facing transport, used for
// metadata stamping.
func (c *Context) sessionID() string {
	return c.server.SessionID()
}

// stampMetadata merges {sessionId, timestamp, source} into the object at
// path field of payload, preserving any existing fields at that path.
// dispatch passes a request's params object and a result object, both with
// field "_meta", so requests get params._meta and results get _meta.
func stampMetadata(payload json.RawMessage, field, sessionID string) json.RawMessage {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	out := []byte(payload)
	var err error
	out, err = sjson.SetBytes(out, field+".sessionId", sessionID)
	if err != nil {
		return payload
	}
	out, err = sjson.SetBytes(out, field+".timestamp", time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return payload
	}
	out, err = sjson.SetBytes(out, field+".source", metadataSource)
	if err != nil {
		return payload
	}
	return json.RawMessage(out)
}

func requestContextFrom(req *transport.Request, sessionID string) *hook.RequestContext {
	return &hook.RequestContext{
		RequestID: req.ID.String(),
		SessionID: sessionID,
	}
}

// dispatch runs the shared request/response hook pipeline described by
// the core dispatch pseudocode: forward through hooks, forward to the
// target unless a hook already produced a response, stamp metadata, then
// run the response back through hooks from the resume point.
func (c *Context) dispatch(ctx context.Context, which hook.RequestMethod, methodName string, req *transport.Request) (json.RawMessage, error) {
	sessionID := c.sessionID()
	params := req.Params
	if params == nil {
		params = json.RawMessage(`{}`)
	}
	params = stampMetadata(params, "_meta", sessionID)
	rc := requestContextFrom(req, sessionID)

	verdict := hook.ProcessRequest(ctx, c.chain, which, methodName, params, rc)
	if verdict.Abort {
		return nil, mcperr.RequestRejected(verdict.Reason)
	}

	var response json.RawMessage
	resume := verdict.Resume
	if verdict.Respond {
		response = verdict.Request
	} else {
		if !c.client.Connected() {
			return nil, mcperr.RequestRejected("no client transport")
		}
		result, err := c.client.Request(ctx, methodName, json.RawMessage(verdict.Request), nil)
		if err != nil {
			return nil, c.coerceTargetError(err, which, verdict.Request)
		}
		response = result
	}

	response = stampMetadata(response, "_meta", sessionID)

	var respVerdict hook.ResponseVerdict
	switch which {
	case hook.MethodOther:
		respVerdict = hook.ProcessOtherResponse(ctx, c.chain, methodName, resume, response, verdict.Request)
	case hook.MethodTarget:
		respVerdict = hook.ProcessTargetResponse(ctx, c.chain, methodName, resume, response, verdict.Request)
	default:
		respVerdict = hook.ProcessResponse(ctx, c.chain, which, resume, response, verdict.Request)
	}
	if respVerdict.Abort {
		return nil, mcperr.ResponseRejected(respVerdict.Reason)
	}
	return respVerdict.Response, nil
}

// coerceTargetError routes a target transport failure through any
// TransportError-aware hooks for the given method before surfacing it to
// the client, per the transport-error capability rows of the hook
// contract. A *endpoint.RemoteError (the target answered with a
// well-formed JSON-RPC error, as opposed to failing to answer at all) is
// not a TransportError and is forwarded to the client directly, without
// TransportError hook coverage — that capability row exists for
// connection-layer failures, not for the target's own application errors.
func (c *Context) coerceTargetError(err error, which hook.RequestMethod, originalReq json.RawMessage) error {
	var remote *endpoint.RemoteError
	if errors.As(err, &remote) {
		return mcperr.New(mcperr.Code(remote.Code), remote.Message).WithData(remote.Data)
	}

	te := toTransportError(err)
	hte := hook.TransportErrorResult{
		Code:         te.Code,
		Message:      te.Message,
		ResponseType: te.ResponseType,
		StatusCode:   te.StatusCode,
		Body:         te.Body,
	}

	var result hook.Result
	var handled bool
	// The first hook that returns anything other than Continue wins. Only
	// an abort changes the surfaced error; a respond stops the scan but is
	// otherwise ignored, and a Continue payload is never read, so the
	// client always sees the original transport error unless a hook aborts.
	switch which {
	case hook.MethodInitialize:
		result, handled = c.runTransportErrorHooks(func(cl hook.Client) hook.Result {
			return cl.ProcessInitializeTransportError(context.Background(), hte, originalReq)
		})
	case hook.MethodListTools:
		result, handled = c.runTransportErrorHooks(func(cl hook.Client) hook.Result {
			return cl.ProcessListToolsTransportError(context.Background(), hte, originalReq)
		})
	case hook.MethodCallTool:
		result, handled = c.runTransportErrorHooks(func(cl hook.Client) hook.Result {
			return cl.ProcessCallToolTransportError(context.Background(), hte, originalReq)
		})
	}

	if handled && result.Verb == hook.VerbAbort {
		return mcperr.ResponseRejected(result.Reason)
	}
	return mcperr.FromTransport(te)
}

// runTransportErrorHooks calls fn for every hook in the chain, stopping at
// the first one whose result verb is not Continue (whatever its payload).
func (c *Context) runTransportErrorHooks(fn func(hook.Client) hook.Result) (hook.Result, bool) {
	names := c.chain.Names()
	for _, name := range names {
		cl := c.chain.FindByName(name)
		if cl == nil {
			continue
		}
		res := fn(cl)
		if res.Verb != hook.VerbContinue {
			return res, true
		}
	}
	return hook.Result{}, false
}

// toTransportError classifies a client-endpoint failure into
// mcperr.TransportError's shape. An error satisfying transport.HTTPError
// (e.g. httpstream.TransportHTTPError) yields responseType "http" with
// the original status and body preserved; anything else (connection
// refused, transport closed, a stdio-style failure with no HTTP status
// line) yields responseType "jsonrpc".
func toTransportError(err error) *mcperr.TransportError {
	var httpErr transport.HTTPError
	if errors.As(err, &httpErr) {
		return &mcperr.TransportError{
			Code:         int(mcperr.CodeResponseRejected),
			Message:      httpErr.Error(),
			ResponseType: "http",
			StatusCode:   httpErr.StatusCode(),
			Body:         httpErr.ResponseBody(),
		}
	}
	return &mcperr.TransportError{
		Code:         int(mcperr.CodeResponseRejected),
		Message:      err.Error(),
		ResponseType: "jsonrpc",
	}
}
