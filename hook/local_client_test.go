package hook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type bareHook struct {
	Base
}

func TestLocalClient_MissingCapabilityContinuesUnchanged(t *testing.T) {
	c := NewLocalClient(&bareHook{Base: Base{HookName: "bare"}}, nil)
	req := json.RawMessage(`{"hello":"world"}`)

	res := c.ProcessCallToolRequest(context.Background(), req, &RequestContext{})
	assert.Equal(t, VerbContinue, res.Verb)
	assert.JSONEq(t, string(req), string(res.Payload))
}

type panickyHook struct {
	Base
}

func (h *panickyHook) ProcessCallToolRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) (Result, error) {
	panic("boom")
}

func TestLocalClient_PanicIsCaughtAsContinue(t *testing.T) {
	c := NewLocalClient(&panickyHook{Base: Base{HookName: "panicky"}}, nil)
	req := json.RawMessage(`{"a":1}`)

	res := c.ProcessCallToolRequest(context.Background(), req, &RequestContext{})
	assert.Equal(t, VerbContinue, res.Verb)
	assert.Equal(t, req, res.Payload)
}

type erroringHook struct {
	Base
}

func (h *erroringHook) ProcessCallToolRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) (Result, error) {
	return Result{}, errors.New("boom")
}

func TestLocalClient_ErrorIsCaughtAsContinue(t *testing.T) {
	c := NewLocalClient(&erroringHook{Base: Base{HookName: "erroring"}}, nil)
	req := json.RawMessage(`{"a":1}`)

	res := c.ProcessCallToolRequest(context.Background(), req, &RequestContext{})
	assert.Equal(t, VerbContinue, res.Verb)
	assert.Equal(t, req, res.Payload)
}

type abortingRequestHook struct {
	Base
}

func (h *abortingRequestHook) ProcessCallToolRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) (Result, error) {
	return Abort("no thanks"), nil
}

func TestLocalClient_AbortPassesThroughUnchanged(t *testing.T) {
	c := NewLocalClient(&abortingRequestHook{Base: Base{HookName: "aborter"}}, nil)

	res := c.ProcessCallToolRequest(context.Background(), json.RawMessage(`{}`), &RequestContext{})
	assert.Equal(t, VerbAbort, res.Verb)
	assert.Equal(t, "no thanks", res.Reason)
}
