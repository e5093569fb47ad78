package mcp

import "encoding/json"

// Method names routed by the server.
const (
	MethodPing                    = "ping"
	MethodInitialize              = "initialize"
	MethodNotificationInitialized = "notifications/initialized"
	MethodToolsList               = "tools/list"
	MethodToolsCall               = "tools/call"
	MethodResourcesList           = "resources/list"
	MethodResourcesRead           = "resources/read"
)

// ProtocolVersion is the MCP revision spoken by both peers.
const ProtocolVersion = "2025-03-26"

// Implementation names a client or server program.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListChangedCapability is the descriptor advertised for tools and resources.
type ListChangedCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerCapabilities lists what the server offers. A nil member means the
// server does not offer it.
type ServerCapabilities struct {
	Tools     *ListChangedCapability `json:"tools,omitempty"`
	Resources *ListChangedCapability `json:"resources,omitempty"`
}

// ClientCapabilities is sent during initialize. The client offers nothing
// beyond the base protocol.
type ClientCapabilities struct{}

type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// Tool describes an invocable tool.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Content is one item of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextContent is a shorthand for a text content item.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Resource describes a readable resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContent is one item returned by resources/read.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

type ReadResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}
