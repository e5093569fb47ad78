// Package coffeeshop exposes a drink catalog as MCP tools and resources.
package coffeeshop

import (
	"fmt"

	"github.com/shaharia-lab/brewmcp/catalog"
	"github.com/shaharia-lab/brewmcp/mcp"
)

const (
	ServerName    = "Coffee Shop Server"
	ServerVersion = "1.0.0"
)

// NewServer returns a server named "Coffee Shop Server" serving the
// getDrinkNames and getDrinkInfo tools and the menu://app resource from
// store. opts are applied after the server info, so they may override it.
func NewServer(store catalog.Store, opts ...mcp.ServerConfigOption) (*mcp.Server, error) {
	if store == nil {
		return nil, fmt.Errorf("coffeeshop: nil catalog store")
	}

	opts = append([]mcp.ServerConfigOption{mcp.UseServerInfo(ServerName, ServerVersion)}, opts...)
	server := mcp.NewServer(opts...)

	tools, err := Tools(store)
	if err != nil {
		return nil, err
	}
	if err := server.AddTools(tools...); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := server.AddResources(Resources(store)...); err != nil {
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}
	return server, nil
}
