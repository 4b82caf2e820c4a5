package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// DefaultRemoteTimeout bounds a single hook-router round trip.
const DefaultRemoteTimeout = 5 * time.Second

// RemoteClient drives a hook running out-of-process behind a hookrouter
// service. Each Process* call is one HTTP POST to
// baseURL+"/"+<method>; the body and response are built with sjson/gjson
// rather than fixed structs, since the wire shape varies per method and
// this avoids a struct per request/response pair. A 404 (method not
// implemented by the remote hook), a network failure, or any 5xx response
// is treated exactly like a missing capability on a LocalClient: Continue
// with the payload unchanged. This is what lets a flaky or partially
// implemented remote hook sit safely in the chain.
type RemoteClient struct {
	name    string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewRemoteClient builds a client for the hook named name, reachable at
// baseURL (no trailing slash expected). httpClient may be nil, in which
// case one with DefaultRemoteTimeout is used.
func NewRemoteClient(name, baseURL string, httpClient *http.Client, log *zap.Logger) *RemoteClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRemoteTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RemoteClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		log:     log.With(zap.String("hook", name), zap.String("remote", baseURL)),
	}
}

func (c *RemoteClient) Name() string { return c.name }

// post calls method on the remote hook with a JSON body built from fields,
// and returns the raw response body. Any failure to reach or successfully
// parse the remote's response is reported as ok=false, which every caller
// below treats as Continue.
func (c *RemoteClient) post(ctx context.Context, method string, fields map[string]interface{}) (body []byte, ok bool) {
	payload := []byte("{}")
	var err error
	for k, v := range fields {
		payload, err = sjson.SetBytes(payload, k, v)
		if err != nil {
			c.log.Warn("failed to encode remote hook request", zap.String("method", method), zap.Error(err))
			return nil, false
		}
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("remote hook unreachable, continuing", zap.String("method", method), zap.Error(err))
		return nil, false
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Capability not implemented by this remote hook.
		return nil, false
	case resp.StatusCode >= 500:
		c.log.Warn("remote hook returned server error, continuing", zap.String("method", method), zap.Int("status", resp.StatusCode))
		return nil, false
	case resp.StatusCode >= 400:
		c.log.Warn("remote hook rejected request, continuing", zap.String("method", method), zap.Int("status", resp.StatusCode))
		return nil, false
	}
	if strings.Contains(strings.ToLower(string(respBody)), "not implemented") {
		return nil, false
	}
	return respBody, true
}

// decodeResult turns a hookrouter response body into a Result. The router
// always emits {"verb":"continue|respond|abort","payload":...,"reason":...}.
func decodeResult(body []byte, fallback json.RawMessage) Result {
	verb := gjson.GetBytes(body, "verb").String()
	switch verb {
	case "respond":
		return Respond(json.RawMessage(gjson.GetBytes(body, "payload").Raw))
	case "abort":
		return Abort(gjson.GetBytes(body, "reason").String())
	case "continue":
		if p := gjson.GetBytes(body, "payload"); p.Exists() {
			return Continue(json.RawMessage(p.Raw))
		}
		return Continue(fallback)
	default:
		return Continue(fallback)
	}
}

func (c *RemoteClient) requestContextFields(rc *RequestContext) map[string]interface{} {
	if rc == nil {
		return nil
	}
	return map[string]interface{}{
		"requestId": rc.RequestID,
		"sessionId": rc.SessionID,
		"headers":   rc.Headers,
		"host":      rc.Host,
		"path":      rc.Path,
	}
}

func (c *RemoteClient) ProcessInitializeRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) Result {
	body, ok := c.post(ctx, "processInitializeRequest", map[string]interface{}{
		"req": json.RawMessage(req), "requestContext": c.requestContextFields(rc),
	})
	if !ok {
		return continueUnchanged(req)
	}
	return decodeResult(body, req)
}

func (c *RemoteClient) ProcessInitializeResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) Result {
	body, ok := c.post(ctx, "processInitializeResult", map[string]interface{}{
		"result": json.RawMessage(result), "originalRequest": json.RawMessage(originalReq),
	})
	if !ok {
		return continueUnchanged(result)
	}
	return decodeResult(body, result)
}

func (c *RemoteClient) ProcessListToolsRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) Result {
	body, ok := c.post(ctx, "processListToolsRequest", map[string]interface{}{
		"req": json.RawMessage(req), "requestContext": c.requestContextFields(rc),
	})
	if !ok {
		return continueUnchanged(req)
	}
	return decodeResult(body, req)
}

func (c *RemoteClient) ProcessListToolsResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) Result {
	body, ok := c.post(ctx, "processListToolsResult", map[string]interface{}{
		"result": json.RawMessage(result), "originalRequest": json.RawMessage(originalReq),
	})
	if !ok {
		return continueUnchanged(result)
	}
	return decodeResult(body, result)
}

func (c *RemoteClient) ProcessCallToolRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) Result {
	body, ok := c.post(ctx, "processCallToolRequest", map[string]interface{}{
		"req": json.RawMessage(req), "requestContext": c.requestContextFields(rc),
	})
	if !ok {
		return continueUnchanged(req)
	}
	return decodeResult(body, req)
}

func (c *RemoteClient) ProcessCallToolResult(ctx context.Context, result json.RawMessage, originalReq json.RawMessage) Result {
	body, ok := c.post(ctx, "processCallToolResult", map[string]interface{}{
		"result": json.RawMessage(result), "originalRequest": json.RawMessage(originalReq),
	})
	if !ok {
		return continueUnchanged(result)
	}
	return decodeResult(body, result)
}

func (c *RemoteClient) ProcessOtherRequest(ctx context.Context, method string, req json.RawMessage, rc *RequestContext) Result {
	body, ok := c.post(ctx, "processOtherRequest", map[string]interface{}{
		"method": method, "req": json.RawMessage(req), "requestContext": c.requestContextFields(rc),
	})
	if !ok {
		return continueUnchanged(req)
	}
	return decodeResult(body, req)
}

func (c *RemoteClient) ProcessOtherResult(ctx context.Context, method string, result json.RawMessage, originalReq json.RawMessage) Result {
	body, ok := c.post(ctx, "processOtherResult", map[string]interface{}{
		"method": method, "result": json.RawMessage(result), "originalRequest": json.RawMessage(originalReq),
	})
	if !ok {
		return continueUnchanged(result)
	}
	return decodeResult(body, result)
}

func (c *RemoteClient) ProcessTargetRequest(ctx context.Context, method string, req json.RawMessage) Result {
	body, ok := c.post(ctx, "processTargetRequest", map[string]interface{}{
		"method": method, "req": json.RawMessage(req),
	})
	if !ok {
		return continueUnchanged(req)
	}
	return decodeResult(body, req)
}

func (c *RemoteClient) ProcessTargetResult(ctx context.Context, method string, result json.RawMessage, originalReq json.RawMessage) Result {
	body, ok := c.post(ctx, "processTargetResult", map[string]interface{}{
		"method": method, "result": json.RawMessage(result), "originalRequest": json.RawMessage(originalReq),
	})
	if !ok {
		return continueUnchanged(result)
	}
	return decodeResult(body, result)
}

func (c *RemoteClient) ProcessNotification(ctx context.Context, method string, notif json.RawMessage) Result {
	body, ok := c.post(ctx, "processNotification", map[string]interface{}{
		"method": method, "notification": json.RawMessage(notif),
	})
	if !ok {
		return continueUnchanged(notif)
	}
	return decodeResult(body, notif)
}

func (c *RemoteClient) ProcessTargetNotification(ctx context.Context, method string, notif json.RawMessage) Result {
	body, ok := c.post(ctx, "processTargetNotification", map[string]interface{}{
		"method": method, "notification": json.RawMessage(notif),
	})
	if !ok {
		return continueUnchanged(notif)
	}
	return decodeResult(body, notif)
}

func (c *RemoteClient) transportErrorFields(te TransportErrorResult, originalReq json.RawMessage) map[string]interface{} {
	return map[string]interface{}{
		"transportError": map[string]interface{}{
			"code":         te.Code,
			"message":      te.Message,
			"responseType": te.ResponseType,
			"statusCode":   te.StatusCode,
			"body":         string(te.Body),
		},
		"originalRequest": json.RawMessage(originalReq),
	}
}

func (c *RemoteClient) ProcessCallToolTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) Result {
	body, ok := c.post(ctx, "processCallToolTransportError", c.transportErrorFields(te, originalReq))
	if !ok {
		return continueUnchanged(nil)
	}
	return decodeResult(body, nil)
}

func (c *RemoteClient) ProcessListToolsTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) Result {
	body, ok := c.post(ctx, "processListToolsTransportError", c.transportErrorFields(te, originalReq))
	if !ok {
		return continueUnchanged(nil)
	}
	return decodeResult(body, nil)
}

func (c *RemoteClient) ProcessInitializeTransportError(ctx context.Context, te TransportErrorResult, originalReq json.RawMessage) Result {
	body, ok := c.post(ctx, "processInitializeTransportError", c.transportErrorFields(te, originalReq))
	if !ok {
		return continueUnchanged(nil)
	}
	return decodeResult(body, nil)
}
