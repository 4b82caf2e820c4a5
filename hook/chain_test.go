package hook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHook struct {
	Base
}

func (s *stubHook) ProcessCallToolRequest(ctx context.Context, req json.RawMessage, rc *RequestContext) (Result, error) {
	return Continue(req), nil
}

func newStub(name string) Client {
	return NewLocalClient(&stubHook{Base: Base{HookName: name}}, nil)
}

func TestChain_AppendPrependOrder(t *testing.T) {
	c := NewChain()
	c.Append(newStub("b"))
	c.Append(newStub("c"))
	c.Prepend(newStub("a"))

	assert.Equal(t, []string{"a", "b", "c"}, c.Names())
	assert.Equal(t, 3, c.Len())
}

func TestChain_RemoveFirstAndLast(t *testing.T) {
	c := NewChain()
	c.Append(newStub("a"))
	c.Append(newStub("dup"))
	c.Append(newStub("dup"))
	c.Append(newStub("z"))

	require.True(t, c.RemoveFirst("dup"))
	assert.Equal(t, []string{"a", "dup", "z"}, c.Names())

	require.True(t, c.RemoveLast("dup"))
	assert.Equal(t, []string{"a", "z"}, c.Names())

	assert.False(t, c.RemoveFirst("missing"))
}

func TestChain_FindByName(t *testing.T) {
	c := NewChain()
	c.Append(newStub("a"))
	c.Append(newStub("b"))

	assert.NotNil(t, c.FindByName("b"))
	assert.Nil(t, c.FindByName("nope"))
}

func TestChain_HeadAndTailCursor(t *testing.T) {
	c := NewChain()
	assert.Equal(t, "<tail>", c.HeadCursor().String())
	assert.Equal(t, "<tail>", c.TailCursor().String())

	c.Append(newStub("only"))
	assert.Equal(t, "<only>", c.HeadCursor().String())
	assert.Equal(t, "<only>", c.TailCursor().String())
}
