package passthrough

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/civicteam/mcp-passthrough-proxy/examples/hooks"
	"github.com/civicteam/mcp-passthrough-proxy/hook"
	"github.com/civicteam/mcp-passthrough-proxy/transport"
	"github.com/civicteam/mcp-passthrough-proxy/transport/transporttest"
)

// respondToNextRequest waits for tr to have sent one message, then delivers
// result as the correlated response.
func respondToNextRequest(t *testing.T, tr *transporttest.Mock, result json.RawMessage) {
	t.Helper()
	require.Eventually(t, func() bool { return len(tr.Sent) >= 1 }, time.Second, time.Millisecond)
	req := tr.Sent[len(tr.Sent)-1].Request
	require.NotNil(t, req)
	tr.Deliver(&transport.Message{
		Kind:     transport.KindResponse,
		Response: &transport.Response{JSONRPC: "2.0", ID: req.ID, Result: result},
	})
}

func TestContext_PassthroughIdentityForEmptyChain(t *testing.T) {
	serverTr := transporttest.New()
	clientTr := transporttest.New()
	serverTr.SetSessionID("sess-1")

	ctx := New(nil, Options{}, nil)
	require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

	go respondToNextRequest(t, clientTr, json.RawMessage(`{"tools":[{"name":"greet"}]}`))

	serverTr.Deliver(&transport.Message{
		Kind:    transport.KindRequest,
		Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "tools/list"},
	})

	require.Eventually(t, func() bool { return len(serverTr.Sent) == 1 }, time.Second, time.Millisecond)
	resp := serverTr.Sent[0].Response
	require.NotNil(t, resp)
	assert.Equal(t, "greet", gjson.GetBytes(resp.Result, "tools.0.name").String())
	assert.Equal(t, "sess-1", gjson.GetBytes(resp.Result, "_meta.sessionId").String())
}

func TestContext_ShortCircuitHookNeverReachesTarget(t *testing.T) {
	serverTr := transporttest.New()
	clientTr := transporttest.New()

	shortCircuit := hooks.NewShortCircuitHook("short", json.RawMessage(`{"short":"yes"}`))
	ctx := New([]hook.Client{hook.NewLocalClient(shortCircuit, nil)}, Options{}, nil)
	require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

	serverTr.Deliver(&transport.Message{
		Kind:    transport.KindRequest,
		Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "tools/call"},
	})

	require.Eventually(t, func() bool { return len(serverTr.Sent) == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, clientTr.Sent, "target must never be contacted when a hook short-circuits")
	assert.Equal(t, "yes", gjson.GetBytes(serverTr.Sent[0].Response.Result, "short").String())
}

func TestContext_AbortHookRejectsBeforeTarget(t *testing.T) {
	serverTr := transporttest.New()
	clientTr := transporttest.New()

	aborter := hooks.NewAbortHook("aborter", "not allowed")
	ctx := New([]hook.Client{hook.NewLocalClient(aborter, nil)}, Options{}, nil)
	require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

	serverTr.Deliver(&transport.Message{
		Kind:    transport.KindRequest,
		Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "tools/call"},
	})

	require.Eventually(t, func() bool { return len(serverTr.Sent) == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, clientTr.Sent)
	assert.Equal(t, transport.KindError, serverTr.Sent[0].Kind)
	assert.Equal(t, -32001, serverTr.Sent[0].Err.Error.Code)
	assert.Contains(t, serverTr.Sent[0].Err.Error.Message, "not allowed")
}

func TestContext_HeaderStampHookMutatesRequestAndResponse(t *testing.T) {
	serverTr := transporttest.New()
	clientTr := transporttest.New()

	stamp := hooks.NewHeaderStampHook("stamper", "via", "proxy")
	ctx := New([]hook.Client{hook.NewLocalClient(stamp, nil)}, Options{}, nil)
	require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

	go respondToNextRequest(t, clientTr, json.RawMessage(`{"ok":true}`))

	serverTr.Deliver(&transport.Message{
		Kind:    transport.KindRequest,
		Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "tools/call"},
	})

	require.Eventually(t, func() bool { return len(clientTr.Sent) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "proxy", gjson.GetBytes(clientTr.Sent[0].Request.Params, "_meta.via").String())

	require.Eventually(t, func() bool { return len(serverTr.Sent) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "proxy", gjson.GetBytes(serverTr.Sent[0].Response.Result, "_meta.via").String())
}

func TestContext_CloseCascadesToClientTransport(t *testing.T) {
	serverTr := transporttest.New()
	clientTr := transporttest.New()

	ctx := New(nil, Options{}, nil)
	require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

	require.NoError(t, serverTr.Close())
	assert.True(t, clientTr.Closed())
}

func TestContext_TransportErrorHookObservesDroppedTargetConnection(t *testing.T) {
	serverTr := transporttest.New()
	clientTr := transporttest.New()

	alert := hooks.NewTransportErrorAlertHook("alert")
	ctx := New([]hook.Client{hook.NewLocalClient(alert, nil)}, Options{}, nil)
	require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

	go func() {
		require.Eventually(t, func() bool { return len(clientTr.Sent) >= 1 }, time.Second, time.Millisecond)
		require.NoError(t, clientTr.Close())
	}()

	serverTr.Deliver(&transport.Message{
		Kind:    transport.KindRequest,
		Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "tools/call"},
	})

	require.Eventually(t, func() bool { return len(serverTr.Sent) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, transport.KindError, serverTr.Sent[0].Kind)
	assert.Equal(t, -32603, serverTr.Sent[0].Err.Error.Code)
	require.Len(t, alert.Recorded, 1)
}
