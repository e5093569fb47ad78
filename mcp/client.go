package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shaharia-lab/brewmcp/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultClientName    = "brewmcp-client"
	defaultClientVersion = "0.1.0"
)

// ClientConfig holds all configuration for Client
type ClientConfig struct {
	logger      observability.Logger
	clientName  string
	version     string
	callTimeout time.Duration
}

// ClientOption is a function that modifies ClientConfig
type ClientOption func(*ClientConfig)

// WithClientLogger sets the client logger
func WithClientLogger(logger observability.Logger) ClientOption {
	return func(c *ClientConfig) {
		c.logger = logger
	}
}

// WithClientInfo sets the name and version sent during initialize
func WithClientInfo(name, version string) ClientOption {
	return func(c *ClientConfig) {
		c.clientName = name
		c.version = version
	}
}

// WithCallTimeout bounds every request. Zero means calls wait until their
// context ends or the connection closes.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.callTimeout = d
	}
}

type pendingCall struct {
	id   *RequestID
	done chan *Message
}

// Client is one side of an MCP session. It issues one request at a time and
// a background goroutine matches responses to the waiting call by id.
type Client struct {
	logger      observability.Logger
	info        Implementation
	callTimeout time.Duration
	sessionID   string

	writer *LineWriter
	reader *LineReader
	closer io.Closer

	nextID     atomic.Int64
	violations atomic.Int64

	// callMu keeps a single request in flight.
	callMu sync.Mutex

	mu       sync.Mutex
	pending  map[RequestID]*pendingCall
	closed   bool
	closeErr error
	done     chan struct{}

	stateMu         sync.RWMutex
	state           SessionState
	protocolVersion string
	serverInfo      Implementation
	capabilities    ServerCapabilities
	tools           []Tool
	resources       []Resource
}

// NewClient starts a client reading responses from r and writing requests to
// w. If r or w implements io.Closer it is closed by Close.
func NewClient(r io.Reader, w io.Writer, opts ...ClientOption) *Client {
	cfg := &ClientConfig{
		logger:     observability.NewNullLogger(),
		clientName: defaultClientName,
		version:    defaultClientVersion,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sessionID := uuid.NewString()
	c := &Client{
		logger:      cfg.logger.WithFields(map[string]interface{}{"session": sessionID}),
		info:        Implementation{Name: cfg.clientName, Version: cfg.version},
		callTimeout: cfg.callTimeout,
		sessionID:   sessionID,
		writer:      NewLineWriter(w),
		reader:      NewLineReader(r),
		pending:     make(map[RequestID]*pendingCall),
		done:        make(chan struct{}),
	}
	c.closer = joinClosers(w, r)

	go c.readLoop()
	return c
}

// Connect performs the handshake: initialize, notifications/initialized, then
// tools/list and resources/list for whichever capabilities the server
// advertises. The session is initialized only once all of them succeed.
func (c *Client) Connect(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "Client.Connect")
	defer span.End()

	var err error
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if c.State() == StateInitialized {
		return nil
	}

	raw, err := c.call(ctx, MethodInitialize, InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      c.info,
	})
	if err != nil {
		err = fmt.Errorf("initialize: %w", err)
		return err
	}

	var initResult InitializeResult
	if err = json.Unmarshal(raw, &initResult); err != nil {
		err = fmt.Errorf("initialize: failed to decode result: %w", err)
		return err
	}

	c.logger.WithFields(map[string]interface{}{
		"server":          initResult.ServerInfo.Name,
		"version":         initResult.ServerInfo.Version,
		"protocolVersion": initResult.ProtocolVersion,
	}).Info("Initialize request successful")

	if err = c.notify(MethodNotificationInitialized, nil); err != nil {
		err = fmt.Errorf("failed to send initialized notification: %w", err)
		return err
	}

	var tools []Tool
	if initResult.Capabilities.Tools != nil {
		raw, err = c.call(ctx, MethodToolsList, nil)
		if err != nil {
			err = fmt.Errorf("tools/list: %w", err)
			return err
		}
		var list ListToolsResult
		if err = json.Unmarshal(raw, &list); err != nil {
			err = fmt.Errorf("tools/list: failed to decode result: %w", err)
			return err
		}
		tools = list.Tools
	}

	var resources []Resource
	if initResult.Capabilities.Resources != nil {
		raw, err = c.call(ctx, MethodResourcesList, nil)
		if err != nil {
			err = fmt.Errorf("resources/list: %w", err)
			return err
		}
		var list ListResourcesResult
		if err = json.Unmarshal(raw, &list); err != nil {
			err = fmt.Errorf("resources/list: failed to decode result: %w", err)
			return err
		}
		resources = list.Resources
	}

	span.SetAttributes(
		attribute.String("server.name", initResult.ServerInfo.Name),
		attribute.Int("tools.count", len(tools)),
		attribute.Int("resources.count", len(resources)),
	)

	c.stateMu.Lock()
	c.protocolVersion = initResult.ProtocolVersion
	c.serverInfo = initResult.ServerInfo
	c.capabilities = initResult.Capabilities
	c.tools = tools
	c.resources = resources
	c.state = StateInitialized
	c.stateMu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"tools":     len(tools),
		"resources": len(resources),
	}).Info("Connection established successfully")
	return nil
}

// Send writes method with params. A notification returns as soon as it is
// written; a request blocks until its response arrives, ctx ends or the
// connection closes, and returns the result payload. Only handshake methods
// are accepted before Connect completes.
func (c *Client) Send(ctx context.Context, method string, params interface{}, notify bool) (json.RawMessage, error) {
	if c.State() != StateInitialized && !isHandshakeMethod(method) {
		return nil, fmt.Errorf("%s: %w", method, ErrNotInitialized)
	}
	if notify {
		return nil, c.notify(method, params)
	}
	return c.call(ctx, method, params)
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Send(ctx, MethodPing, nil, false)
	return err
}

// CallTool invokes the named tool with args.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}

	raw, err := c.Send(ctx, MethodToolsCall, map[string]interface{}{
		"name":      name,
		"arguments": args,
	}, false)
	if err != nil {
		return CallToolResult{}, err
	}

	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CallToolResult{}, fmt.Errorf("tools/call: failed to decode result: %w", err)
	}
	return result, nil
}

// ReadResource reads the resource at uri.
func (c *Client) ReadResource(ctx context.Context, uri string) (ReadResourceResult, error) {
	raw, err := c.Send(ctx, MethodResourcesRead, ReadResourceParams{URI: uri}, false)
	if err != nil {
		return ReadResourceResult{}, err
	}

	var result ReadResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ReadResourceResult{}, fmt.Errorf("resources/read: failed to decode result: %w", err)
	}
	return result, nil
}

// State returns the session state.
func (c *Client) State() SessionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// ServerInfo returns the identity the server sent during initialize.
func (c *Client) ServerInfo() Implementation {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.serverInfo
}

// Capabilities returns the capabilities the server advertised.
func (c *Client) Capabilities() ServerCapabilities {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.capabilities
}

// ProtocolVersion returns the version the server answered with.
func (c *Client) ProtocolVersion() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.protocolVersion
}

// Tools returns the tools cached during the handshake.
func (c *Client) Tools() []Tool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return append([]Tool(nil), c.tools...)
}

// Resources returns the resources cached during the handshake.
func (c *Client) Resources() []Resource {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return append([]Resource(nil), c.resources...)
}

// SessionID returns the identifier attached to this client's logs.
func (c *Client) SessionID() string { return c.sessionID }

// Violations counts responses that matched no pending request.
func (c *Client) Violations() int64 { return c.violations.Load() }

// Done is closed once the response stream ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the underlying streams. Calls still waiting return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *Client) notify(method string, params interface{}) error {
	msg, err := NewNotification(method, params)
	if err != nil {
		return err
	}
	c.logger.WithFields(map[string]interface{}{"method": method}).Debug("Sending notification")
	return c.writer.WriteMessage(msg)
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	ctx, span := observability.StartSpan(ctx, "Client.call")
	defer span.End()

	var err error
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	id := NewNumberID(c.nextID.Add(1))
	span.SetAttributes(attribute.String("method", method), attribute.String("id", id.String()))

	msg, err := NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	pc := &pendingCall{id: id, done: make(chan *Message, 1)}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		err = c.closedError()
		return nil, err
	}
	c.pending[id.key()] = pc
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id.key())
		c.mu.Unlock()
	}()

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"id":     id,
	}).Debug("Sending request")

	if err = c.writer.WriteMessage(msg); err != nil {
		return nil, err
	}

	var resp *Message
	select {
	case resp = <-pc.done:
	case <-ctx.Done():
		err = fmt.Errorf("%s (id %s): %w", method, id, ctx.Err())
		return nil, err
	case <-c.done:
		err = c.closedError()
		return nil, err
	}

	if e := resp.ResponseError(); e != nil {
		err = &RemoteError{Code: e.Code, Message: e.Message}
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			var frameErr *FrameError
			if errors.As(err, &frameErr) {
				c.logger.WithErr(frameErr.Err).Warn("Failed to parse response")
				continue
			}

			c.mu.Lock()
			c.closed = true
			if !errors.Is(err, io.EOF) {
				c.closeErr = err
			}
			c.mu.Unlock()
			return
		}

		switch msg.Kind() {
		case KindResponse:
			c.deliver(msg)
		case KindRequest, KindNotification:
			c.logger.WithFields(map[string]interface{}{
				"method": msg.Method,
			}).Debug("Ignoring message initiated by server")
		default:
			c.violations.Add(1)
			c.logger.WithFields(map[string]interface{}{
				"id": msg.ID,
			}).Warn("Received message that is neither request nor response")
		}
	}
}

func (c *Client) deliver(msg *Message) {
	c.mu.Lock()
	pc, ok := c.pending[msg.ID.key()]
	if ok {
		delete(c.pending, msg.ID.key())
	}
	c.mu.Unlock()

	if !ok {
		c.violations.Add(1)
		c.logger.WithFields(map[string]interface{}{
			"id": msg.ID,
		}).Error("Received response for unknown request id")
		return
	}

	pc.done <- msg
}

func (c *Client) closedError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.closeErr)
	}
	return ErrClosed
}

func isHandshakeMethod(method string) bool {
	switch method {
	case MethodInitialize, MethodNotificationInitialized, MethodToolsList, MethodResourcesList:
		return true
	}
	return false
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// joinClosers collects the closable streams, w first so the peer sees EOF
// before the read side goes away.
func joinClosers(w io.Writer, r io.Reader) io.Closer {
	var closers multiCloser
	if wc, ok := w.(io.Closer); ok {
		closers = append(closers, wc)
	}
	if rc, ok := r.(io.Closer); ok {
		closers = append(closers, rc)
	}
	if len(closers) == 0 {
		return nil
	}
	return closers
}
