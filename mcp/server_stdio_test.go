package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initLine = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`

func runLines(t *testing.T, s *Server, lines ...string) []*Message {
	t.Helper()

	var out bytes.Buffer
	srv := NewStdIOServer(s, strings.NewReader(strings.Join(lines, "\n")+"\n"), &out)
	require.NoError(t, srv.Run(context.Background()))

	r := NewLineReader(&out)
	var replies []*Message
	for {
		m, err := r.ReadMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		replies = append(replies, m)
	}
	return replies
}

func TestStdIOServer_PreservesOrder(t *testing.T) {
	s := newTestServer(t)

	lines := []string{
		initLine,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":"three","method":"ping"}`,
		`{"jsonrpc":"2.0","id":4,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`,
		`{"jsonrpc":"2.0","id":6,"method":"resources/read","params":{"uri":"test://one"}}`,
	}
	replies := runLines(t, s, lines...)

	want := []*RequestID{NewNumberID(1), NewNumberID(2), NewStringID("three"), NewNumberID(4), NewNumberID(5), NewNumberID(6)}
	require.Len(t, replies, len(want), "one reply per request, none for the notification")
	for i, id := range want {
		assert.True(t, replies[i].ID.Equal(id), "reply %d has id %s, want %s", i, replies[i].ID, id)
		assert.Nil(t, replies[i].ResponseError())
	}
}

func TestStdIOServer_UnknownMethodKeepsServing(t *testing.T) {
	s := newTestServer(t)

	replies := runLines(t, s,
		initLine,
		`{"jsonrpc":"2.0","id":2,"method":"sampling/createMessage"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
	)

	require.Len(t, replies, 3)
	e := replies[1].ResponseError()
	require.NotNil(t, e)
	assert.Equal(t, CodeMethodNotFound, e.Code)

	assert.True(t, replies[2].ID.Equal(NewNumberID(3)))
	assert.JSONEq(t, `{}`, string(replies[2].Result))
}

func TestStdIOServer_MalformedLinesAreSkipped(t *testing.T) {
	s := newTestServer(t)

	replies := runLines(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"ping"`,
		`garbage`,
		``,
		`{"jsonrpc":"1.0","id":2,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"result":{}}`,
		`{"jsonrpc":"2.0","id":4,"method":"ping"}`,
	)

	require.Len(t, replies, 1)
	assert.True(t, replies[0].ID.Equal(NewNumberID(4)))
}

func TestStdIOServer_OversizedLineKeepsServing(t *testing.T) {
	s := newTestServer(t)

	huge := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", 2*1024*1024) + `"}}`
	replies := runLines(t, s,
		huge,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	)

	require.Len(t, replies, 1)
	assert.True(t, replies[0].ID.Equal(NewNumberID(2)))
	assert.Nil(t, replies[0].ResponseError())
}

func TestStdIOServer_ErrorsNestedInResultOnTheWire(t *testing.T) {
	s := newTestServer(t)

	var out bytes.Buffer
	in := strings.NewReader(initLine + "\n" + `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"nope"}}` + "\n")
	require.NoError(t, NewStdIOServer(s, in, &out).Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":{"error":{"code":-32602,"message":"Tool nope not found"}}}`, lines[1])
}

func TestStdIOServer_StopsOnContextCancel(t *testing.T) {
	s := newTestServer(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- NewStdIOServer(s, pr, io.Discard).Run(ctx)
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestStdIOServer_RateLimitKeepsEveryRequest(t *testing.T) {
	s := newTestServer(t, UseRateLimit(200, 1))

	lines := []string{initLine}
	for i := 0; i < 5; i++ {
		lines = append(lines, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"ping"}`, i+2))
	}

	start := time.Now()
	replies := runLines(t, s, lines...)
	assert.Len(t, replies, 6, "throttled requests are delayed, not dropped")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
