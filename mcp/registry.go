package mcp

import (
	"context"
	"fmt"
	"sync"
)

// ToolProvider is a tool the server can expose.
type ToolProvider interface {
	Describe() Tool
	Invoke(ctx context.Context, args map[string]any) (CallToolResult, error)
}

// ResourceProvider is a resource the server can expose.
type ResourceProvider interface {
	Describe() Resource
	Read(ctx context.Context) (ReadResourceResult, error)
}

// ToolHandlerFunc adapts a function to the invoke half of ToolProvider.
type ToolHandlerFunc func(ctx context.Context, args map[string]any) (CallToolResult, error)

// ResourceReaderFunc adapts a function to the read half of ResourceProvider.
type ResourceReaderFunc func(ctx context.Context) (ReadResourceResult, error)

type funcTool struct {
	tool    Tool
	handler ToolHandlerFunc
}

func (t *funcTool) Describe() Tool { return t.tool }

func (t *funcTool) Invoke(ctx context.Context, args map[string]any) (CallToolResult, error) {
	return t.handler(ctx, args)
}

// NewTool builds a ToolProvider from a descriptor and a handler.
func NewTool(name, description string, schema Schema, handler ToolHandlerFunc) ToolProvider {
	return &funcTool{
		tool:    Tool{Name: name, Description: description, InputSchema: schema},
		handler: handler,
	}
}

type funcResource struct {
	resource Resource
	reader   ResourceReaderFunc
}

func (r *funcResource) Describe() Resource { return r.resource }

func (r *funcResource) Read(ctx context.Context) (ReadResourceResult, error) {
	return r.reader(ctx)
}

// NewResource builds a ResourceProvider. Use WithResourceDescription and
// WithResourceMimeType to fill the optional descriptor fields.
func NewResource(uri, name string, reader ResourceReaderFunc, opts ...ResourceOption) ResourceProvider {
	r := &funcResource{
		resource: Resource{URI: uri, Name: name},
		reader:   reader,
	}
	for _, opt := range opts {
		opt(&r.resource)
	}
	return r
}

// ResourceOption sets optional descriptor fields on a resource.
type ResourceOption func(*Resource)

func WithResourceDescription(description string) ResourceOption {
	return func(r *Resource) { r.Description = description }
}

func WithResourceMimeType(mimeType string) ResourceOption {
	return func(r *Resource) { r.MimeType = mimeType }
}

// ToolRegistry holds tools in registration order.
type ToolRegistry struct {
	mu    sync.RWMutex
	order []ToolProvider
	index map[string]ToolProvider
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{index: make(map[string]ToolProvider)}
}

// Register adds tools. It rejects empty or duplicate names and schemas with
// unsupported parameter types; nothing is added if any tool is rejected.
func (r *ToolRegistry) Register(tools ...ToolProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		desc := t.Describe()
		if desc.Name == "" {
			return fmt.Errorf("tool name must not be empty")
		}
		if _, exists := r.index[desc.Name]; exists {
			return fmt.Errorf("tool %q already registered", desc.Name)
		}
		if _, exists := batch[desc.Name]; exists {
			return fmt.Errorf("tool %q already registered", desc.Name)
		}
		if err := desc.InputSchema.Check(); err != nil {
			return fmt.Errorf("tool %q: %w", desc.Name, err)
		}
		batch[desc.Name] = struct{}{}
	}

	for _, t := range tools {
		r.order = append(r.order, t)
		r.index[t.Describe().Name] = t
	}
	return nil
}

// Get looks up a tool by exact name.
func (r *ToolRegistry) Get(name string) (ToolProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.index[name]
	return t, ok
}

// List returns tool descriptors in registration order.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	for _, t := range r.order {
		tools = append(tools, t.Describe())
	}
	return tools
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ResourceRegistry holds resources in registration order.
type ResourceRegistry struct {
	mu    sync.RWMutex
	order []ResourceProvider
	index map[string]ResourceProvider
}

// NewResourceRegistry creates an empty registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{index: make(map[string]ResourceProvider)}
}

// Register adds resources keyed by URI. Empty or duplicate URIs are rejected.
func (r *ResourceRegistry) Register(resources ...ResourceProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]struct{}, len(resources))
	for _, res := range resources {
		desc := res.Describe()
		if desc.URI == "" {
			return fmt.Errorf("resource uri must not be empty")
		}
		if desc.Name == "" {
			return fmt.Errorf("resource %q: name must not be empty", desc.URI)
		}
		if _, exists := r.index[desc.URI]; exists {
			return fmt.Errorf("resource %q already registered", desc.URI)
		}
		if _, exists := batch[desc.URI]; exists {
			return fmt.Errorf("resource %q already registered", desc.URI)
		}
		batch[desc.URI] = struct{}{}
	}

	for _, res := range resources {
		r.order = append(r.order, res)
		r.index[res.Describe().URI] = res
	}
	return nil
}

// Get looks up a resource by exact URI.
func (r *ResourceRegistry) Get(uri string) (ResourceProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.index[uri]
	return res, ok
}

// List returns resource descriptors in registration order.
func (r *ResourceRegistry) List() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resources := make([]Resource, 0, len(r.order))
	for _, res := range r.order {
		resources = append(resources, res.Describe())
	}
	return resources
}

// Len returns the number of registered resources.
func (r *ResourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
