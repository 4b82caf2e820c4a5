package endpoint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicteam/mcp-passthrough-proxy/transport"
	"github.com/civicteam/mcp-passthrough-proxy/transport/transporttest"
)

func TestEndpoint_RequestResponseCorrelation(t *testing.T) {
	mock := transporttest.New()
	e := New()
	require.NoError(t, e.Connect(context.Background(), mock))

	resultCh := make(chan json.RawMessage, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := e.Request(context.Background(), "tools/list", map[string]any{}, nil)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()

	// Wait for the request to hit the wire, then answer it.
	require.Eventually(t, func() bool { return len(mock.Sent) == 1 }, time.Second, time.Millisecond)
	sentReq := mock.Sent[0].Request
	require.NotNil(t, sentReq)
	assert.Equal(t, "tools/list", sentReq.Method)

	mock.Deliver(&transport.Message{
		Kind:     transport.KindResponse,
		Response: &transport.Response{JSONRPC: "2.0", ID: sentReq.ID, Result: json.RawMessage(`{"tools":[]}`)},
	})

	select {
	case result := <-resultCh:
		assert.JSONEq(t, `{"tools":[]}`, string(result))
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for correlated response")
	}
}

func TestEndpoint_UnknownMethodFallsBackOrErrors(t *testing.T) {
	mock := transporttest.New()
	e := New()
	require.NoError(t, e.Connect(context.Background(), mock))

	mock.Deliver(&transport.Message{
		Kind:    transport.KindRequest,
		Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(7), Method: "nope"},
	})

	require.Eventually(t, func() bool { return len(mock.Sent) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, transport.KindError, mock.Sent[0].Kind)
	assert.Equal(t, -32601, mock.Sent[0].Err.Error.Code)
}

func TestEndpoint_FallbackRequestHandlerInvoked(t *testing.T) {
	mock := transporttest.New()
	e := New()
	require.NoError(t, e.Connect(context.Background(), mock))
	e.FallbackRequestHandler = func(ctx context.Context, req *transport.Request) (interface{}, error) {
		return map[string]string{"echo": req.Method}, nil
	}

	mock.Deliver(&transport.Message{
		Kind:    transport.KindRequest,
		Request: &transport.Request{JSONRPC: "2.0", ID: transport.NewIntID(1), Method: "custom/thing"},
	})

	require.Eventually(t, func() bool { return len(mock.Sent) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, transport.KindResponse, mock.Sent[0].Kind)
	assert.JSONEq(t, `{"echo":"custom/thing"}`, string(mock.Sent[0].Response.Result))
}

func TestEndpoint_NotificationDispatch(t *testing.T) {
	mock := transporttest.New()
	e := New()
	require.NoError(t, e.Connect(context.Background(), mock))

	received := make(chan string, 1)
	e.SetNotificationHandler("notifications/initialized", func(ctx context.Context, n *transport.Notification) error {
		received <- n.Method
		return nil
	})

	mock.Deliver(&transport.Message{
		Kind:         transport.KindNotification,
		Notification: &transport.Notification{JSONRPC: "2.0", Method: "notifications/initialized"},
	})

	select {
	case method := <-received:
		assert.Equal(t, "notifications/initialized", method)
	case <-time.After(time.Second):
		t.Fatal("notification handler was not invoked")
	}
}

func TestEndpoint_CloseRejectsPendingRequests(t *testing.T) {
	mock := transporttest.New()
	e := New()
	require.NoError(t, e.Connect(context.Background(), mock))

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Request(context.Background(), "tools/call", nil, nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(mock.Sent) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, e.Close())

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("pending request was not rejected on close")
	}
}

func TestEndpoint_RequestTimesOut(t *testing.T) {
	mock := transporttest.New()
	e := New()
	require.NoError(t, e.Connect(context.Background(), mock))

	_, err := e.Request(context.Background(), "slow", nil, &RequestOptions{Timeout: 10 * time.Millisecond})
	require.Error(t, err)
}
