package stdio

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicteam/mcp-passthrough-proxy/transport"
)

func TestTransport_SendWritesNewlineDelimitedJSON(t *testing.T) {
	tr := New()
	var out bytes.Buffer
	tr.writer = &out

	msg := &transport.Message{
		Kind: transport.KindNotification,
		Notification: &transport.Notification{
			JSONRPC: "2.0",
			Method:  "notifications/initialized",
		},
	}
	require.NoError(t, tr.Send(msg))
	assert.Contains(t, out.String(), `"method":"notifications/initialized"`)
	assert.True(t, bytes.HasSuffix(out.Bytes(), []byte("\n")))
}

func TestTransport_ReadLoopDispatchesCompleteLines(t *testing.T) {
	r, w := io.Pipe()
	tr := New()
	tr.reader = bufio.NewReader(r)

	received := make(chan *transport.Message, 1)
	tr.SetOnMessage(func(m *transport.Message) { received <- m })

	require.NoError(t, tr.Start(context.Background()))

	_, err := w.Write([]byte(`{"jsonrpc":"2.0","method":"ping"}` + "\n"))
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, transport.KindNotification, msg.Kind)
		assert.Equal(t, "ping", msg.Notification.Method)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	require.NoError(t, w.Close())
	require.NoError(t, tr.Close())
}

func TestTransport_SendAfterCloseErrors(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Close())
	err := tr.Send(&transport.Message{Kind: transport.KindNotification, Notification: &transport.Notification{JSONRPC: "2.0", Method: "x"}})
	assert.Error(t, err)
}
