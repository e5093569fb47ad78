package mcp

import (
	"bytes"
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTransport_RoundTrip(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	var stderr bytes.Buffer
	transport, err := StartCommand(context.Background(), "cat", nil, WithCommandStderr(&stderr))
	require.NoError(t, err)
	assert.NotZero(t, transport.Pid())

	w := NewLineWriter(transport)
	r := NewLineReader(transport)

	msg, err := NewRequest(NewNumberID(1), MethodPing, nil)
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(msg))

	echoed, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, MethodPing, echoed.Method)
	assert.True(t, echoed.ID.Equal(NewNumberID(1)))

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close(), "second close is a no-op")
	assert.Empty(t, stderr.String())
}

func TestCommandTransport_WithCommandEnv(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	transport, err := StartCommand(context.Background(), "sh", []string{"-c", `printf '%s\n' "$BREW_TEST_LINE"`},
		WithCommandEnv(`BREW_TEST_LINE={"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })

	m, err := NewLineReader(transport).ReadMessage()
	require.NoError(t, err, "the child sees the extra variable")
	assert.Equal(t, MethodNotificationInitialized, m.Method)
	assert.Equal(t, KindNotification, m.Kind())
}

func TestCommandTransport_MissingBinary(t *testing.T) {
	_, err := StartCommand(context.Background(), "definitely-not-a-coffee-server", nil)
	assert.Error(t, err)
}

func TestCommandTransport_ClientSeesEOFWhenChildExits(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}

	transport, err := StartCommand(context.Background(), "true", nil)
	require.NoError(t, err)

	client := NewClient(transport, transport)
	<-client.Done()

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_ = client.Close()
}
