package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idComparer = cmp.Comparer(func(a, b *RequestID) bool { return a.Equal(b) })

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{
			name: "request with numeric id",
			msg:  &Message{JSONRPC: "2.0", ID: NewNumberID(1), Method: "tools/call", Params: json.RawMessage(`{"name":"getDrinkInfo","arguments":{"name":"Latte"}}`)},
		},
		{
			name: "request with string id",
			msg:  &Message{JSONRPC: "2.0", ID: NewStringID("abc-1"), Method: "ping"},
		},
		{
			name: "notification",
			msg:  &Message{JSONRPC: "2.0", Method: "notifications/initialized"},
		},
		{
			name: "success response",
			msg:  &Message{JSONRPC: "2.0", ID: NewNumberID(42), Result: json.RawMessage(`{}`)},
		},
		{
			name: "nested error response",
			msg:  &Message{JSONRPC: "2.0", ID: NewNumberID(7), Result: json.RawMessage(`{"error":{"code":-32602,"message":"Tool x not found"}}`)},
		},
		{
			name: "top-level error response",
			msg:  &Message{JSONRPC: "2.0", ID: NewNumberID(8), Error: &Error{Code: -32601, Message: "Method not found"}},
		},
		{
			name: "text with control characters",
			msg:  &Message{JSONRPC: "2.0", ID: NewNumberID(9), Result: json.RawMessage(`{"text":"line one\nline two\r\n\ttabbed"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.NotContains(t, string(line), "\n", "encoded message must be a single line")

			got, err := Decode(line)
			require.NoError(t, err)

			if diff := cmp.Diff(tt.msg, got, idComparer); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", `hello`},
		{"truncated", `{"jsonrpc":"2.0","id":1`},
		{"array", `[{"jsonrpc":"2.0"}]`},
		{"missing version", `{"id":1,"method":"ping"}`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"fractional id", `{"jsonrpc":"2.0","id":1.5,"method":"ping"}`},
		{"object id", `{"jsonrpc":"2.0","id":{},"method":"ping"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.line))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedMessage), "got %v", err)
		})
	}
}

func TestMessage_Kind(t *testing.T) {
	tests := []struct {
		line string
		want MessageKind
	}{
		{`{"jsonrpc":"2.0","id":1,"method":"ping"}`, KindRequest},
		{`{"jsonrpc":"2.0","id":"x","method":"ping","params":{}}`, KindRequest},
		{`{"jsonrpc":"2.0","method":"notifications/initialized"}`, KindNotification},
		{`{"jsonrpc":"2.0","id":1,"result":{}}`, KindResponse},
		{`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`, KindResponse},
		{`{"jsonrpc":"2.0","id":1}`, KindInvalid},
		{`{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`, KindInvalid},
		{`{"jsonrpc":"2.0","result":{}}`, KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			m, err := Decode([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Kind())
		})
	}
}

func TestRequestID(t *testing.T) {
	assert.True(t, NewNumberID(3).Equal(NewNumberID(3)))
	assert.False(t, NewNumberID(3).Equal(NewStringID("3")))
	assert.False(t, NewStringID("a").Equal(nil))
	assert.True(t, (*RequestID)(nil).Equal(nil))
	assert.True(t, NewStringID("3").IsString())
	assert.False(t, NewNumberID(3).IsString())
	assert.False(t, (*RequestID)(nil).IsString())

	b, err := json.Marshal(NewStringID("req-1"))
	require.NoError(t, err)
	assert.Equal(t, `"req-1"`, string(b))

	b, err = json.Marshal(NewNumberID(12))
	require.NoError(t, err)
	assert.Equal(t, `12`, string(b))

	var text RequestID
	require.NoError(t, json.Unmarshal([]byte(`"7"`), &text))
	assert.True(t, text.IsString(), "a quoted id stays a string")
	_, ok := text.Int64()
	assert.False(t, ok)

	var id RequestID
	require.NoError(t, json.Unmarshal([]byte(`9007199254740993`), &id))
	assert.False(t, id.IsString())
	n, ok := id.Int64()
	require.True(t, ok)
	assert.Equal(t, int64(9007199254740993), n)
}

func TestMessage_ResponseError(t *testing.T) {
	nested, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"result":{"error":{"code":-32602,"message":"Resource x not found"}}}`))
	require.NoError(t, err)
	e := nested.ResponseError()
	require.NotNil(t, e)
	assert.Equal(t, CodeInvalidParams, e.Code)
	assert.Equal(t, "Resource x not found", e.Message)

	top, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`))
	require.NoError(t, err)
	require.NotNil(t, top.ResponseError())
	assert.Equal(t, CodeMethodNotFound, top.ResponseError().Code)

	ok, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{\"error\":\"Drink not found\"}"}]}}`))
	require.NoError(t, err)
	assert.Nil(t, ok.ResponseError(), "an error inside tool content is not a protocol error")
}

func TestLineReader(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		``,
		`   `,
		`not json at all`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\r",
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
	}, "\n")

	r := NewLineReader(strings.NewReader(input))

	m, err := r.ReadMessage()
	require.NoError(t, err)
	assert.True(t, m.ID.Equal(NewNumberID(1)))

	_, err = r.ReadMessage()
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.Equal(t, "not json at all", string(frameErr.Line))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	m, err = r.ReadMessage()
	require.NoError(t, err, "a bad line must not affect the next one")
	assert.True(t, m.ID.Equal(NewNumberID(2)))

	m, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, KindNotification, m.Kind())

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReader_OversizedLine(t *testing.T) {
	huge := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", 2*maxLineSize) + `"}}`
	input := huge + "\n" + `{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n" + strings.Repeat("y", maxLineSize+10)

	r := NewLineReader(strings.NewReader(input))

	_, err := r.ReadMessage()
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.ErrorIs(t, err, ErrMalformedMessage)
	assert.LessOrEqual(t, len(frameErr.Line), 256)

	m, err := r.ReadMessage()
	require.NoError(t, err, "the line after an oversized one is read intact")
	assert.True(t, m.ID.Equal(NewNumberID(2)))

	_, err = r.ReadMessage()
	require.ErrorAs(t, err, &frameErr, "an oversized final line without newline")

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineWriter_ConcurrentWritesStayOnSeparateLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewLineWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := NewRequest(NewNumberID(int64(i)), "ping", map[string]string{"pad": strings.Repeat("x", 512)})
			if assert.NoError(t, err) {
				assert.NoError(t, w.WriteMessage(msg))
			}
		}(i)
	}
	wg.Wait()

	r := NewLineReader(&buf)
	count := 0
	for {
		_, err := r.ReadMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 50, count)
}

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() error {
	f.flushes++
	return nil
}

func TestLineWriter_FlushesEachMessage(t *testing.T) {
	rec := &flushRecorder{}
	w := NewLineWriter(rec)

	msg, err := NewNotification("notifications/initialized", nil)
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(msg))
	require.NoError(t, w.WriteMessage(msg))

	assert.Equal(t, 2, rec.flushes)
	assert.Equal(t, 2, strings.Count(rec.String(), "\n"))
}

func TestRemoteError_Is(t *testing.T) {
	assert.ErrorIs(t, &RemoteError{Code: CodeMethodNotFound}, ErrUnknownMethod)
	assert.ErrorIs(t, &RemoteError{Code: CodeInvalidParams}, ErrUnknownCapability)
	assert.ErrorIs(t, &RemoteError{Code: CodeInternalError}, ErrHandlerFailure)
	assert.ErrorIs(t, &RemoteError{Code: CodeNotInitialized}, ErrNotInitialized)
	assert.NotErrorIs(t, &RemoteError{Code: CodeInternalError}, ErrUnknownMethod)
}
