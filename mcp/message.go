package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// JSONRPCVersion is the only protocol tag accepted on the wire.
const JSONRPCVersion = "2.0"

// RequestID is a JSON-RPC id. It is either a number or a string and
// round-trips to the same JSON literal it was decoded from.
type RequestID struct {
	num    int64
	str    string
	isText bool
}

// NewNumberID returns a numeric request id.
func NewNumberID(n int64) *RequestID {
	return &RequestID{num: n}
}

// NewStringID returns a string request id.
func NewStringID(s string) *RequestID {
	return &RequestID{str: s, isText: true}
}

// IsString reports whether the id was a JSON string.
func (id *RequestID) IsString() bool { return id != nil && id.isText }

// Int64 returns the numeric value and whether the id is numeric.
func (id *RequestID) Int64() (int64, bool) {
	if id == nil || id.isText {
		return 0, false
	}
	return id.num, true
}

// Equal reports whether both ids carry the same value and kind.
func (id *RequestID) Equal(other *RequestID) bool {
	if id == nil || other == nil {
		return id == other
	}
	return *id == *other
}

func (id *RequestID) String() string {
	if id == nil {
		return "<nil>"
	}
	if id.isText {
		return id.str
	}
	return strconv.FormatInt(id.num, 10)
}

// key is a comparable map key for pending-call lookup.
func (id *RequestID) key() RequestID { return *id }

func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.isText {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatInt(id.num, 10)), nil
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty id", ErrMalformedMessage)
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: id: %v", ErrMalformedMessage, err)
		}
		*id = RequestID{str: s, isText: true}
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: id must be an integer or a string, got %s", ErrMalformedMessage, data)
	}
	*id = RequestID{num: n}
	return nil
}

// MessageKind classifies a decoded envelope.
type MessageKind int

const (
	KindInvalid MessageKind = iota
	KindRequest
	KindNotification
	KindResponse
)

func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "invalid"
	}
}

// Message is the single envelope shape used for requests, notifications and
// responses. Which fields are set decides what it is, see Kind.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind classifies m.
func (m *Message) Kind() MessageKind {
	switch {
	case m == nil:
		return KindInvalid
	case m.Method != "" && m.ID != nil:
		return KindRequest
	case m.Method != "":
		return KindNotification
	case m.ID != nil && (len(m.Result) > 0) != (m.Error != nil):
		return KindResponse
	default:
		return KindInvalid
	}
}

// NewRequest builds a request envelope. params may be nil.
func NewRequest(id *RequestID, method string, params interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification envelope. params may be nil.
func NewNotification(method string, params interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: JSONRPCVersion, Method: method, Params: raw}, nil
}

// NewResult builds a success response for id.
func NewResult(id *RequestID, result interface{}) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Message{JSONRPC: JSONRPCVersion, ID: id, Result: raw}, nil
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return raw, nil
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// nestedError is the result shape used when errors travel inside result.
type nestedError struct {
	Error *Error `json:"error"`
}

// ResponseError extracts the error carried by a response, looking at the
// top-level error member first and then at result.error.
func (m *Message) ResponseError() *Error {
	if m.Error != nil {
		return m.Error
	}
	if len(m.Result) == 0 || m.Result[0] != '{' {
		return nil
	}

	var nested nestedError
	if err := json.Unmarshal(m.Result, &nested); err != nil || nested.Error == nil {
		return nil
	}
	return nested.Error
}
