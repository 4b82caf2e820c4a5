package passthrough

import (
	"context"
	"encoding/json"

	"github.com/civicteam/mcp-passthrough-proxy/hook"
	"github.com/civicteam/mcp-passthrough-proxy/mcperr"
	"github.com/civicteam/mcp-passthrough-proxy/transport"
)

func (c *Context) handleInitialize(ctx context.Context, req *transport.Request) (interface{}, error) {
	return c.dispatch(ctx, hook.MethodInitialize, "initialize", req)
}

func (c *Context) handleListTools(ctx context.Context, req *transport.Request) (interface{}, error) {
	return c.dispatch(ctx, hook.MethodListTools, "tools/list", req)
}

func (c *Context) handleCallTool(ctx context.Context, req *transport.Request) (interface{}, error) {
	return c.dispatch(ctx, hook.MethodCallTool, "tools/call", req)
}

// handleOtherRequest is the fallback for any request method not handled
// above. When Options.HookOtherRequests is set, it routes through
// processOtherRequest/processOtherResult like the recognized methods;
// otherwise it forwards straight to the target, which is the simpler and
// default posture since most hooks only care about the three named
// methods.
func (c *Context) handleOtherRequest(ctx context.Context, req *transport.Request) (interface{}, error) {
	if c.opts.HookOtherRequests {
		return c.dispatch(ctx, hook.MethodOther, req.Method, req)
	}
	if !c.client.Connected() {
		return nil, mcperr.RequestRejected("no client transport")
	}
	return c.client.Request(ctx, req.Method, json.RawMessage(req.Params), nil)
}

// handleTargetRequest answers a request the target itself originated
// (e.g. a sampling request), routing it to the MCP client via the server
// endpoint and optionally through the target-request hook capability rows.
func (c *Context) handleTargetRequest(ctx context.Context, req *transport.Request) (interface{}, error) {
	params := json.RawMessage(req.Params)
	if params == nil {
		params = json.RawMessage(`{}`)
	}

	verdict := hook.ProcessRequest(ctx, c.chain, hook.MethodTarget, req.Method, params, nil)
	if verdict.Abort {
		return nil, mcperr.RequestRejected(verdict.Reason)
	}

	var response json.RawMessage
	resume := verdict.Resume
	if verdict.Respond {
		response = verdict.Request
	} else {
		result, err := c.server.Request(ctx, req.Method, json.RawMessage(verdict.Request), nil)
		if err != nil {
			return nil, err
		}
		response = result
	}

	respVerdict := hook.ProcessTargetResponse(ctx, c.chain, req.Method, resume, response, verdict.Request)
	if respVerdict.Abort {
		return nil, mcperr.ResponseRejected(respVerdict.Reason)
	}
	return respVerdict.Response, nil
}

// handleClientNotification forwards a notification from the MCP client to
// the target, after running it through any notification-aware hooks. A
// hook that aborts drops it silently: notifications have no reply channel.
func (c *Context) handleClientNotification(ctx context.Context, notif *transport.Notification) error {
	params := json.RawMessage(notif.Params)
	payload, forward := hook.ProcessNotification(ctx, c.chain, notif.Method, params)
	if !forward {
		return nil
	}
	if !c.client.Connected() {
		return nil
	}
	return c.client.Notification(notif.Method, json.RawMessage(payload))
}

// handleTargetNotification mirrors handleClientNotification for
// notifications the target sends toward the client.
func (c *Context) handleTargetNotification(ctx context.Context, notif *transport.Notification) error {
	params := json.RawMessage(notif.Params)
	payload, forward := hook.ProcessTargetNotification(ctx, c.chain, notif.Method, params)
	if !forward {
		return nil
	}
	return c.server.Notification(notif.Method, json.RawMessage(payload))
}
