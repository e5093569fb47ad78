package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shaharia-lab/brewmcp/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const (
	defaultServerName    = "brewmcp-server"
	defaultServerVersion = "0.1.0"
)

// ErrorPlacement selects where error objects go in a reply.
type ErrorPlacement int

const (
	// ErrorInResult nests the error object inside result:
	// {"result":{"error":{...}}}. This is what existing coffee-shop peers send.
	ErrorInResult ErrorPlacement = iota
	// ErrorTopLevel uses the conventional JSON-RPC error member.
	ErrorTopLevel
)

func (p ErrorPlacement) String() string {
	if p == ErrorTopLevel {
		return "toplevel"
	}
	return "result"
}

// ParseErrorPlacement accepts "result" or "toplevel".
func ParseErrorPlacement(s string) (ErrorPlacement, error) {
	switch s {
	case "", "result":
		return ErrorInResult, nil
	case "toplevel":
		return ErrorTopLevel, nil
	}
	return ErrorInResult, fmt.Errorf("unknown error placement %q", s)
}

// SessionState is the lifecycle state of a connection.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitialized
)

func (s SessionState) String() string {
	if s == StateInitialized {
		return "initialized"
	}
	return "uninitialized"
}

// ServerConfig holds all configuration for Server
type ServerConfig struct {
	logger          observability.Logger
	serverName      string
	serverVersion   string
	protocolVersion string
	errorPlacement  ErrorPlacement
	rateLimit       rate.Limit
	rateBurst       int
}

// ServerConfigOption is a function that modifies ServerConfig
type ServerConfigOption func(*ServerConfig)

// UseLogger sets a custom logger
func UseLogger(logger observability.Logger) ServerConfigOption {
	return func(c *ServerConfig) {
		c.logger = logger
	}
}

// UseServerInfo sets server name and version
func UseServerInfo(name, version string) ServerConfigOption {
	return func(c *ServerConfig) {
		c.serverName = name
		c.serverVersion = version
	}
}

// UseProtocolVersion overrides the protocol version reported by initialize.
func UseProtocolVersion(version string) ServerConfigOption {
	return func(c *ServerConfig) {
		c.protocolVersion = version
	}
}

// WithErrorPlacement chooses where error objects are written.
func WithErrorPlacement(p ErrorPlacement) ServerConfigOption {
	return func(c *ServerConfig) {
		c.errorPlacement = p
	}
}

// UseRateLimit throttles request handling to rps requests per second with the
// given burst. Requests wait for a token; none are dropped. rps <= 0 disables
// the limiter.
func UseRateLimit(rps float64, burst int) ServerConfigOption {
	return func(c *ServerConfig) {
		c.rateLimit = rate.Limit(rps)
		c.rateBurst = burst
	}
}

func defaultConfig() *ServerConfig {
	return &ServerConfig{
		logger:          observability.NewNullLogger(),
		serverName:      defaultServerName,
		serverVersion:   defaultServerVersion,
		protocolVersion: ProtocolVersion,
		errorPlacement:  ErrorInResult,
	}
}

// Server routes requests to registered tools and resources. One Server can
// serve any number of sequential connections; each gets its own ServerSession.
type Server struct {
	logger          observability.Logger
	info            Implementation
	protocolVersion string
	placement       ErrorPlacement
	limiter         *rate.Limiter

	tools     *ToolRegistry
	resources *ResourceRegistry
}

// NewServer creates a new Server with the given options
func NewServer(opts ...ServerConfigOption) *Server {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		logger:          cfg.logger,
		info:            Implementation{Name: cfg.serverName, Version: cfg.serverVersion},
		protocolVersion: cfg.protocolVersion,
		placement:       cfg.errorPlacement,
		tools:           NewToolRegistry(),
		resources:       NewResourceRegistry(),
	}

	if cfg.rateLimit > 0 {
		burst := cfg.rateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(cfg.rateLimit, burst)
	}

	return s
}

// AddTools registers tools. Call before serving.
func (s *Server) AddTools(tools ...ToolProvider) error {
	return s.tools.Register(tools...)
}

// AddResources registers resources. Call before serving.
func (s *Server) AddResources(resources ...ResourceProvider) error {
	return s.resources.Register(resources...)
}

// Info returns the server name and version.
func (s *Server) Info() Implementation { return s.info }

// Capabilities reports what initialize advertises: tools and resources are
// present only when at least one of each is registered.
func (s *Server) Capabilities() ServerCapabilities {
	var caps ServerCapabilities
	if s.tools.Len() > 0 {
		caps.Tools = &ListChangedCapability{ListChanged: true}
	}
	if s.resources.Len() > 0 {
		caps.Resources = &ListChangedCapability{ListChanged: true}
	}
	return caps
}

// ServerSession is the per-connection dispatcher state.
type ServerSession struct {
	server *Server
	id     string
	logger observability.Logger

	mu    sync.Mutex
	state SessionState
}

// NewSession starts a fresh connection in the uninitialized state.
func (s *Server) NewSession() *ServerSession {
	id := uuid.NewString()
	return &ServerSession{
		server: s,
		id:     id,
		logger: s.logger.WithFields(map[string]interface{}{"session": id}),
	}
}

// ID returns the session identifier used in logs.
func (c *ServerSession) ID() string { return c.id }

// State returns the connection state.
func (c *ServerSession) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ServerSession) setState(state SessionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// Handle processes one decoded message and returns the reply to write, or
// nil when no reply is due (notifications and stray responses).
func (c *ServerSession) Handle(ctx context.Context, msg *Message) (reply *Message) {
	switch msg.Kind() {
	case KindRequest:
	case KindNotification:
		c.handleNotification(ctx, msg)
		return nil
	default:
		c.logger.WithFields(map[string]interface{}{
			"id":   msg.ID,
			"kind": msg.Kind().String(),
		}).Warn("Dropping message that is not a request or notification")
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(map[string]interface{}{
				"method": msg.Method,
				"id":     msg.ID,
				"panic":  r,
			}).Error("Recovered from panic while handling request")
			reply = c.errorReply(msg.ID, &Error{Code: CodeInternalError, Message: fmt.Sprintf("Internal error: %v", r)})
		}
	}()

	c.logger.WithFields(map[string]interface{}{
		"method": msg.Method,
		"id":     msg.ID,
	}).Debug("Received request from client")

	result, err := c.route(ctx, msg)
	if err != nil {
		return c.errorReply(msg.ID, toWireError(err))
	}

	resp, err := NewResult(msg.ID, result)
	if err != nil {
		c.logger.WithErr(err).Error("Failed to marshal response")
		return c.errorReply(msg.ID, &Error{Code: CodeInternalError, Message: "Internal error: failed to marshal response"})
	}
	return resp
}

// routedMethods is the dispatch table; anything else is -32601 in any state.
var routedMethods = map[string]bool{
	MethodPing:          true,
	MethodInitialize:    true,
	MethodToolsList:     true,
	MethodToolsCall:     true,
	MethodResourcesList: true,
	MethodResourcesRead: true,
}

func (c *ServerSession) route(ctx context.Context, msg *Message) (interface{}, error) {
	if !routedMethods[msg.Method] {
		c.logger.WithFields(map[string]interface{}{
			"method": msg.Method,
			"id":     msg.ID,
		}).Warn("Method not found. Unhandled request from client")
		return nil, newReplyError(CodeMethodNotFound, ErrUnknownMethod, "Method not found")
	}

	if msg.Method != MethodInitialize && msg.Method != MethodPing && c.State() != StateInitialized {
		c.logger.WithFields(map[string]interface{}{
			"method": msg.Method,
			"id":     msg.ID,
		}).Warn("Received request before 'initialize'")
		return nil, newReplyError(CodeNotInitialized, ErrNotInitialized, "Server not initialized")
	}

	switch msg.Method {
	case MethodPing:
		return struct{}{}, nil
	case MethodInitialize:
		return c.handleInitialize(ctx, msg)
	case MethodToolsList:
		return c.handleToolsList(ctx)
	case MethodToolsCall:
		return c.handleToolsCall(ctx, msg)
	case MethodResourcesList:
		return c.handleResourcesList(ctx)
	case MethodResourcesRead:
		return c.handleResourcesRead(ctx, msg)
	default:
		c.logger.WithFields(map[string]interface{}{
			"method": msg.Method,
			"id":     msg.ID,
		}).Warn("Method not found. Unhandled request from client")
		return nil, newReplyError(CodeMethodNotFound, ErrUnknownMethod, "Method not found")
	}
}

func (c *ServerSession) handleNotification(ctx context.Context, msg *Message) {
	switch msg.Method {
	case MethodNotificationInitialized:
		c.logger.Debug("Client completed initialization")
	default:
		c.logger.WithFields(map[string]interface{}{
			"method": msg.Method,
		}).Debug("Ignoring unsupported notification")
	}
}

func (c *ServerSession) handleInitialize(ctx context.Context, msg *Message) (InitializeResult, error) {
	ctx, span := observability.StartSpan(ctx, "Server.handleInitialize")
	defer span.End()

	var err error
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var params InitializeParams
	if err = decodeParams(msg.Params, &params); err != nil {
		c.logger.WithErr(err).Error("Failed to parse initialize params")
		return InitializeResult{}, err
	}

	c.logger.WithFields(map[string]interface{}{
		"client":          params.ClientInfo.Name,
		"clientVersion":   params.ClientInfo.Version,
		"protocolVersion": params.ProtocolVersion,
	}).Info("Client initializing")

	span.SetAttributes(
		attribute.String("client.name", params.ClientInfo.Name),
		attribute.String("protocol.version", params.ProtocolVersion),
	)

	c.setState(StateInitialized)

	return InitializeResult{
		ProtocolVersion: c.server.protocolVersion,
		Capabilities:    c.server.Capabilities(),
		ServerInfo:      c.server.info,
	}, nil
}

func (c *ServerSession) handleToolsList(ctx context.Context) (ListToolsResult, error) {
	_, span := observability.StartSpan(ctx, "Server.handleToolsList")
	defer span.End()

	tools := c.server.tools.List()
	span.SetAttributes(attribute.Int("tools.count", len(tools)))
	return ListToolsResult{Tools: tools}, nil
}

func (c *ServerSession) handleToolsCall(ctx context.Context, msg *Message) (CallToolResult, error) {
	ctx, span := observability.StartSpan(ctx, "Server.handleToolsCall")
	defer span.End()

	var err error
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var params CallToolParams
	if err = decodeParams(msg.Params, &params); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"request": msg.ID,
			"params":  string(msg.Params),
		}).WithErr(err).Error("Failed to parse call tool params")
		return CallToolResult{}, err
	}

	span.SetAttributes(attribute.String("tool", params.Name))

	tool, ok := c.server.tools.Get(params.Name)
	if !ok {
		c.logger.WithFields(map[string]interface{}{
			"request": msg.ID,
			"tool":    params.Name,
		}).Warn("Tool not found")
		err = newReplyError(CodeInvalidParams, ErrUnknownCapability, "Tool %s not found", params.Name)
		return CallToolResult{}, err
	}

	if err = tool.Describe().InputSchema.Validate(params.Arguments); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"request": msg.ID,
			"tool":    params.Name,
		}).WithErr(err).Warn("Schema validation failed")
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			err = newReplyError(CodeInvalidParams, err, "Invalid arguments for tool %s: %s", params.Name, strings.Join(argErr.Violations, "; "))
		} else {
			err = newReplyError(CodeInvalidParams, err, "Invalid arguments for tool %s", params.Name)
		}
		return CallToolResult{}, err
	}

	args := map[string]any{}
	if len(params.Arguments) > 0 && string(params.Arguments) != "null" {
		if err = json.Unmarshal(params.Arguments, &args); err != nil {
			err = newReplyError(CodeInvalidParams, ErrInvalidArguments, "Invalid params")
			return CallToolResult{}, err
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"request": msg.ID,
		"tool":    params.Name,
	}).Debug("Calling tool")

	result, err := invokeTool(ctx, tool, args)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"request": msg.ID,
			"tool":    params.Name,
		}).WithErr(err).Error("Failed to call tool")
		err = newReplyError(CodeInternalError, fmt.Errorf("%w: %w", ErrHandlerFailure, err), "tool %s failed: %v", params.Name, err)
		return CallToolResult{}, err
	}

	if result.Content == nil {
		result.Content = []Content{}
	}
	return result, nil
}

func (c *ServerSession) handleResourcesList(ctx context.Context) (ListResourcesResult, error) {
	_, span := observability.StartSpan(ctx, "Server.handleResourcesList")
	defer span.End()

	resources := c.server.resources.List()
	span.SetAttributes(attribute.Int("resources.count", len(resources)))
	return ListResourcesResult{Resources: resources}, nil
}

func (c *ServerSession) handleResourcesRead(ctx context.Context, msg *Message) (ReadResourceResult, error) {
	ctx, span := observability.StartSpan(ctx, "Server.handleResourcesRead")
	defer span.End()

	var err error
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var params ReadResourceParams
	if err = decodeParams(msg.Params, &params); err != nil {
		c.logger.WithErr(err).Error("Failed to parse resources/read params")
		return ReadResourceResult{}, err
	}

	span.SetAttributes(attribute.String("uri", params.URI))

	resource, ok := c.server.resources.Get(params.URI)
	if !ok {
		c.logger.WithFields(map[string]interface{}{
			"request": msg.ID,
			"uri":     params.URI,
		}).Warn("Resource not found")
		err = newReplyError(CodeInvalidParams, ErrUnknownCapability, "Resource %s not found", params.URI)
		return ReadResourceResult{}, err
	}

	result, err := readResource(ctx, resource)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"request": msg.ID,
			"uri":     params.URI,
		}).WithErr(err).Error("Failed to read resource")
		err = newReplyError(CodeInternalError, fmt.Errorf("%w: %w", ErrHandlerFailure, err), "resource %s failed: %v", params.URI, err)
		return ReadResourceResult{}, err
	}

	if result.Contents == nil {
		result.Contents = []ResourceContent{}
	}
	return result, nil
}

// errorReply renders e for id using the configured placement.
func (c *ServerSession) errorReply(id *RequestID, e *Error) *Message {
	if c.server.placement == ErrorTopLevel {
		return &Message{JSONRPC: JSONRPCVersion, ID: id, Error: e}
	}

	raw, err := json.Marshal(nestedError{Error: e})
	if err != nil {
		// Error has only scalar fields; fall back to the top-level shape.
		return &Message{JSONRPC: JSONRPCVersion, ID: id, Error: e}
	}
	return &Message{JSONRPC: JSONRPCVersion, ID: id, Result: raw}
}

// decodeParams decodes raw into v. Absent params decode as an empty object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return newReplyError(CodeInvalidParams, fmt.Errorf("%w: %v", ErrInvalidArguments, err), "Invalid params")
	}
	return nil
}

func invokeTool(ctx context.Context, tool ToolProvider, args map[string]any) (result CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Invoke(ctx, args)
}

func readResource(ctx context.Context, resource ResourceProvider) (result ReadResourceResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return resource.Read(ctx)
}
