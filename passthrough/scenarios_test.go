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

// These mirror the named scenarios (rate limiting, reason-stripping,
// local-tool interception, alert webhooks, destructive-name guardrails) but
// exercise only the chain mechanics those hooks would ride on top of, using
// the fixture hooks in examples/hooks rather than reimplementing the real
// business logic those names describe.
func TestScenarios_ChainMechanics(t *testing.T) {
	t.Run("empty chain forwards tools/list unchanged plus session metadata", func(t *testing.T) {
		serverTr := transporttest.New()
		clientTr := transporttest.New()
		serverTr.SetSessionID("sess-e1")

		ctx := New(nil, Options{}, nil)
		require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

		go respondToNextRequest(t, clientTr, json.RawMessage(`{"tools":[{"name":"greet"}]}`))
		serverTr.Deliver(&transport.Message{
			Kind:    transport.KindRequest,
			Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "tools/list"},
		})

		require.Eventually(t, func() bool { return len(serverTr.Sent) == 1 }, time.Second, time.Millisecond)
		result := serverTr.Sent[0].Response.Result
		assert.Equal(t, "greet", gjson.GetBytes(result, "tools.0.name").String())
		assert.Equal(t, "sess-e1", gjson.GetBytes(result, "_meta.sessionId").String())
	})

	t.Run("abort stand-in for a rate limit rejects with code -32001 and the expected prefix", func(t *testing.T) {
		serverTr := transporttest.New()
		clientTr := transporttest.New()

		limiter := hooks.NewAbortHook("rate-limit-stub", "Rate limit exceeded: 3rd call within 10s")
		ctx := New([]hook.Client{hook.NewLocalClient(limiter, nil)}, Options{}, nil)
		require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

		serverTr.Deliver(&transport.Message{
			Kind:    transport.KindRequest,
			Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "tools/call"},
		})

		require.Eventually(t, func() bool { return len(serverTr.Sent) == 1 }, time.Second, time.Millisecond)
		assert.Empty(t, clientTr.Sent)
		assert.Equal(t, -32001, serverTr.Sent[0].Err.Error.Code)
		assert.Contains(t, serverTr.Sent[0].Err.Error.Message, "Rate limit exceeded")
	})

	t.Run("request-path mutation stand-in for reason-stripping reaches the target, response round-trips", func(t *testing.T) {
		serverTr := transporttest.New()
		clientTr := transporttest.New()

		mutator := hooks.NewHeaderStampHook("reason-strip-stub", "reasonLogged", "because")
		ctx := New([]hook.Client{hook.NewLocalClient(mutator, nil)}, Options{}, nil)
		require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

		go respondToNextRequest(t, clientTr, json.RawMessage(`{"ok":true}`))
		serverTr.Deliver(&transport.Message{
			Kind:    transport.KindRequest,
			Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "tools/call", Params: json.RawMessage(`{"x":1}`)},
		})

		require.Eventually(t, func() bool { return len(clientTr.Sent) == 1 }, time.Second, time.Millisecond)
		sentToTarget := clientTr.Sent[0].Request.Params
		assert.Equal(t, float64(1), gjson.GetBytes(sentToTarget, "x").Num)
		assert.Equal(t, "because", gjson.GetBytes(sentToTarget, "_meta.reasonLogged").String())
	})

	t.Run("respond stand-in for local-tool interception never calls the target", func(t *testing.T) {
		serverTr := transporttest.New()
		clientTr := transporttest.New()

		echo := hooks.NewShortCircuitHook("local-tools-stub", json.RawMessage(`{"content":[{"type":"text","text":"Echo: hi"}]}`))
		ctx := New([]hook.Client{hook.NewLocalClient(echo, nil)}, Options{}, nil)
		require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

		serverTr.Deliver(&transport.Message{
			Kind:    transport.KindRequest,
			Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "tools/call", Params: json.RawMessage(`{"name":"echo","arguments":{"message":"hi"}}`)},
		})

		require.Eventually(t, func() bool { return len(serverTr.Sent) == 1 }, time.Second, time.Millisecond)
		assert.Empty(t, clientTr.Sent)
		assert.Equal(t, "Echo: hi", gjson.GetBytes(serverTr.Sent[0].Response.Result, "content.0.text").String())
	})

	t.Run("transport-error hook stand-in for an alert webhook observes a dropped target connection", func(t *testing.T) {
		// Unlike a KindError message (a legitimate JSON-RPC error answer,
		// handled as endpoint.RemoteError and never routed through a
		// TransportError hook), a transport-layer failure is simulated here
		// by dropping the target connection mid-flight: the pending
		// request resolves with a generic error, which toTransportError
		// classifies as responseType "jsonrpc".
		serverTr := transporttest.New()
		clientTr := transporttest.New()

		alert := hooks.NewTransportErrorAlertHook("alert-stub")
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
		assert.Contains(t, alert.Recorded[0], "connection closed")
	})

	t.Run("abort stand-in for a destructive-tool-name guardrail blocks only the named tool", func(t *testing.T) {
		serverTr := transporttest.New()
		clientTr := transporttest.New()

		guard := hooks.NewNameGuardHook("guardrail-stub", "delete-file")
		ctx := New([]hook.Client{hook.NewLocalClient(guard, nil)}, Options{}, nil)
		require.NoError(t, ctx.Connect(context.Background(), serverTr, clientTr))

		serverTr.Deliver(&transport.Message{
			Kind:    transport.KindRequest,
			Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "tools/call", Params: json.RawMessage(`{"name":"delete-file"}`)},
		})

		require.Eventually(t, func() bool { return len(serverTr.Sent) == 1 }, time.Second, time.Millisecond)
		assert.Empty(t, clientTr.Sent)
		assert.Equal(t, -32001, serverTr.Sent[0].Err.Error.Code)
		assert.Contains(t, serverTr.Sent[0].Err.Error.Message, "delete-file")
	})
}
