package hook

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// LocalClient wraps an in-process Hook implementation. If
// the wrapped Hook does not implement a given *Processor capability, the
// call returns Continue with the unmodified payload; if the hook's logic
// panics or returns an error, that is also coerced to Continue and logged —
// a buggy local hook must never break the chain. Abort results from the
// hook pass through unchanged.
type LocalClient struct {
	impl Hook
	log  *zap.Logger
}

// NewLocalClient wraps impl for use as a Client. log may be nil, in which
// case a no-op logger is used.
func NewLocalClient(impl Hook, log *zap.Logger) *LocalClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalClient{impl: impl, log: log.With(zap.String("hook", impl.Name()))}
}

func (c *LocalClient) Name() string { return c.impl.Name() }

func continueUnchanged(payload json.RawMessage) Result { return Continue(payload) }

func (c *LocalClient) guard(method string, fallback json.RawMessage, fn func() (Result, error)) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("hook panicked, treating as continue", zap.String("method", method), zap.Any("panic", r))
			result = continueUnchanged(fallback)
		}
	}()
	res, err := fn()
	if err != nil {
		c.log.Warn("hook returned error, treating as continue", zap.String("method", method), zap.Error(err))
		return continueUnchanged(fallback)
	}
	return res
}

func (c *LocalClient) ProcessInitializeRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) Result {
	p, ok := c.impl.(InitializeRequestProcessor)
	if !ok {
		return continueUnchanged(req)
	}
	return c.guard("ProcessInitializeRequest", req, func() (Result, error) { return p.ProcessInitializeRequest(ctx, req, rc) })
}

func (c *LocalClient) ProcessInitializeResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) Result {
	p, ok := c.impl.(InitializeResultProcessor)
	if !ok {
		return continueUnchanged(result)
	}
	return c.guard("ProcessInitializeResult", result, func() (Result, error) {
		return p.ProcessInitializeResult(ctx, result, originalReq)
	})
}

func (c *LocalClient) ProcessListToolsRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) Result {
	p, ok := c.impl.(ListToolsRequestProcessor)
	if !ok {
		return continueUnchanged(req)
	}
	return c.guard("ProcessListToolsRequest", req, func() (Result, error) { return p.ProcessListToolsRequest(ctx, req, rc) })
}

func (c *LocalClient) ProcessListToolsResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) Result {
	p, ok := c.impl.(ListToolsResultProcessor)
	if !ok {
		return continueUnchanged(result)
	}
	return c.guard("ProcessListToolsResult", result, func() (Result, error) {
		return p.ProcessListToolsResult(ctx, result, originalReq)
	})
}

func (c *LocalClient) ProcessCallToolRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) Result {
	p, ok := c.impl.(CallToolRequestProcessor)
	if !ok {
		return continueUnchanged(req)
	}
	return c.guard("ProcessCallToolRequest", req, func() (Result, error) { return p.ProcessCallToolRequest(ctx, req, rc) })
}

func (c *LocalClient) ProcessCallToolResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) Result {
	p, ok := c.impl.(CallToolResultProcessor)
	if !ok {
		return continueUnchanged(result)
	}
	return c.guard("ProcessCallToolResult", result, func() (Result, error) {
		return p.ProcessCallToolResult(ctx, result, originalReq)
	})
}

func (c *LocalClient) ProcessOtherRequest(ctx context.Context, method string, req json.RawMessage, rc *RequestContext) Result {
	p, ok := c.impl.(OtherRequestProcessor)
	if !ok {
		return continueUnchanged(req)
	}
	return c.guard("ProcessOtherRequest", req, func() (Result, error) { return p.ProcessOtherRequest(ctx, method, req, rc) })
}

func (c *LocalClient) ProcessOtherResult(ctx context.Context, method string, result json.RawMessage, originalReq json.RawMessage) Result {
	p, ok := c.impl.(OtherResultProcessor)
	if !ok {
		return continueUnchanged(result)
	}
	return c.guard("ProcessOtherResult", result, func() (Result, error) {
		return p.ProcessOtherResult(ctx, method, result, originalReq)
	})
}

func (c *LocalClient) ProcessTargetRequest(ctx context.Context, method string, req json.RawMessage) Result {
	p, ok := c.impl.(TargetRequestProcessor)
	if !ok {
		return continueUnchanged(req)
	}
	return c.guard("ProcessTargetRequest", req, func() (Result, error) { return p.ProcessTargetRequest(ctx, method, req) })
}

func (c *LocalClient) ProcessTargetResult(ctx context.Context, method string, result json.RawMessage, originalReq json.RawMessage) Result {
	p, ok := c.impl.(TargetResultProcessor)
	if !ok {
		return continueUnchanged(result)
	}
	return c.guard("ProcessTargetResult", result, func() (Result, error) {
		return p.ProcessTargetResult(ctx, method, result, originalReq)
	})
}

func (c *LocalClient) ProcessNotification(ctx context.Context, method string, notif json.RawMessage) Result {
	p, ok := c.impl.(NotificationProcessor)
	if !ok {
		return continueUnchanged(notif)
	}
	return c.guard("ProcessNotification", notif, func() (Result, error) { return p.ProcessNotification(ctx, method, notif) })
}

func (c *LocalClient) ProcessTargetNotification(ctx context.Context, method string, notif json.RawMessage) Result {
	p, ok := c.impl.(TargetNotificationProcessor)
	if !ok {
		return continueUnchanged(notif)
	}
	return c.guard("ProcessTargetNotification", notif, func() (Result, error) {
		return p.ProcessTargetNotification(ctx, method, notif)
	})
}

func (c *LocalClient) ProcessCallToolTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) Result {
	p, ok := c.impl.(CallToolTransportErrorProcessor)
	if !ok {
		return continueUnchanged(nil)
	}
	return c.guard("ProcessCallToolTransportError", nil, func() (Result, error) {
		return p.ProcessCallToolTransportError(ctx, te, originalReq)
	})
}

func (c *LocalClient) ProcessListToolsTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) Result {
	p, ok := c.impl.(ListToolsTransportErrorProcessor)
	if !ok {
		return continueUnchanged(nil)
	}
	return c.guard("ProcessListToolsTransportError", nil, func() (Result, error) {
		return p.ProcessListToolsTransportError(ctx, te, originalReq)
	})
}

func (c *LocalClient) ProcessInitializeTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) Result {
	p, ok := c.impl.(InitializeTransportErrorProcessor)
	if !ok {
		return continueUnchanged(nil)
	}
	return c.guard("ProcessInitializeTransportError", nil, func() (Result, error) {
		return p.ProcessInitializeTransportError(ctx, te, originalReq)
	})
}
