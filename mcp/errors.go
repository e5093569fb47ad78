package mcp

import (
	"errors"
	"fmt"
)

// JSON-RPC error codes used by the dispatcher.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotInitialized = -32002
)

var (
	// ErrMalformedMessage is returned when a line is not a valid envelope.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownCapability is returned for a tool name or resource uri that is
	// not registered.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrUnknownMethod is returned for a request method the server does not route.
	ErrUnknownMethod = errors.New("method not found")

	// ErrHandlerFailure wraps errors and panics raised by providers.
	ErrHandlerFailure = errors.New("handler failure")

	// ErrInvalidArguments is returned when tool arguments fail the schema check.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrNotInitialized is returned for calls made before the handshake completes.
	ErrNotInitialized = errors.New("not initialized")

	// ErrClosed is returned when the transport closes while a call is waiting.
	ErrClosed = errors.New("connection closed")
)

// RemoteError is an error reply received from the peer.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Is maps the wire code back to the package sentinels so callers can use
// errors.Is on replies.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrUnknownMethod:
		return e.Code == CodeMethodNotFound
	case ErrUnknownCapability, ErrInvalidArguments:
		return e.Code == CodeInvalidParams
	case ErrHandlerFailure:
		return e.Code == CodeInternalError
	case ErrNotInitialized:
		return e.Code == CodeNotInitialized
	case ErrMalformedMessage:
		return e.Code == CodeParseError || e.Code == CodeInvalidRequest
	}
	return false
}

// FrameError reports a line that could not be decoded. The reader that
// produced it remains usable.
type FrameError struct {
	Line []byte
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("bad frame %q: %v", truncate(e.Line, 128), e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// replyError pairs a wire error with the sentinel it came from.
type replyError struct {
	code    int
	message string
	cause   error
}

func (e *replyError) Error() string { return e.message }
func (e *replyError) Unwrap() error { return e.cause }

func newReplyError(code int, cause error, format string, args ...interface{}) *replyError {
	return &replyError{code: code, message: fmt.Sprintf(format, args...), cause: cause}
}

// toWireError converts any handler-side error into the wire error object.
func toWireError(err error) *Error {
	var re *replyError
	if errors.As(err, &re) {
		return &Error{Code: re.code, Message: re.message}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
