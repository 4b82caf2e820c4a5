package hook

import (
	"context"
	"encoding/json"
)

// Client is the uniform shape the hook chain drives regardless of whether a
// hook runs in-process (LocalClient) or out-of-process (RemoteClient).
// Every method always returns a Result — absence of the underlying
// capability is handled internally by each Client implementation and
// surfaces as Continue with the input unchanged.
type Client interface {
	Name() string

	ProcessInitializeRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) Result
	ProcessInitializeResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) Result
	ProcessListToolsRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) Result
	ProcessListToolsResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) Result
	ProcessCallToolRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) Result
	ProcessCallToolResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) Result
	ProcessOtherRequest(ctx context.Context, method string, req json.RawMessage, rc *RequestContext) Result
	ProcessOtherResult(ctx context.Context, method string, result json.RawMessage, originalReq json.RawMessage) Result
	ProcessTargetRequest(ctx context.Context, method string, req json.RawMessage) Result
	ProcessTargetResult(ctx context.Context, method string, result json.RawMessage, originalReq json.RawMessage) Result
	ProcessNotification(ctx context.Context, method string, notif json.RawMessage) Result
	ProcessTargetNotification(ctx context.Context, method string, notif json.RawMessage) Result
	ProcessCallToolTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) Result
	ProcessListToolsTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) Result
	ProcessInitializeTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) Result
}
