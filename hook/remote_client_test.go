package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteClient_ContinueRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/processCallToolRequest", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"verb":"continue","payload":{"tool":"rewritten"}}`))
	}))
	defer srv.Close()

	c := NewRemoteClient("remote", srv.URL, nil, nil)
	res := c.ProcessCallToolRequest(context.Background(), json.RawMessage(`{"tool":"original"}`), &RequestContext{SessionID: "s1"})

	require.Equal(t, VerbContinue, res.Verb)
	assert.JSONEq(t, `{"tool":"rewritten"}`, string(res.Payload))
}

func TestRemoteClient_RespondAndAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/processCallToolRequest":
			w.Write([]byte(`{"verb":"respond","payload":{"short":"circuited"}}`))
		case "/processListToolsRequest":
			w.Write([]byte(`{"verb":"abort","reason":"denied"}`))
		}
	}))
	defer srv.Close()

	c := NewRemoteClient("remote", srv.URL, nil, nil)

	respond := c.ProcessCallToolRequest(context.Background(), json.RawMessage(`{}`), nil)
	assert.Equal(t, VerbRespond, respond.Verb)
	assert.JSONEq(t, `{"short":"circuited"}`, string(respond.Payload))

	abort := c.ProcessListToolsRequest(context.Background(), json.RawMessage(`{}`), nil)
	assert.Equal(t, VerbAbort, abort.Verb)
	assert.Equal(t, "denied", abort.Reason)
}

func TestRemoteClient_NotFoundCollapsesToContinue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewRemoteClient("remote", srv.URL, nil, nil)
	req := json.RawMessage(`{"unchanged":true}`)
	res := c.ProcessCallToolRequest(context.Background(), req, nil)

	assert.Equal(t, VerbContinue, res.Verb)
	assert.Equal(t, req, res.Payload)
}

func TestRemoteClient_ServerErrorCollapsesToContinue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRemoteClient("remote", srv.URL, nil, nil)
	req := json.RawMessage(`{"unchanged":true}`)
	res := c.ProcessCallToolRequest(context.Background(), req, nil)

	assert.Equal(t, VerbContinue, res.Verb)
	assert.Equal(t, req, res.Payload)
}

func TestRemoteClient_UnreachableCollapsesToContinue(t *testing.T) {
	c := NewRemoteClient("remote", "http://127.0.0.1:1", nil, nil)
	req := json.RawMessage(`{"unchanged":true}`)
	res := c.ProcessCallToolRequest(context.Background(), req, nil)

	assert.Equal(t, VerbContinue, res.Verb)
	assert.Equal(t, req, res.Payload)
}
