package coffeeshop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaharia-lab/brewmcp/catalog"
	"github.com/shaharia-lab/brewmcp/mcp"
)

const (
	MenuURI  = "menu://app"
	MenuName = "menu"
)

// Resources returns the menu resource. Reading it yields the whole catalog
// as a JSON array.
func Resources(store catalog.Store) []mcp.ResourceProvider {
	return []mcp.ResourceProvider{
		mcp.NewResource(MenuURI, MenuName, func(ctx context.Context) (mcp.ReadResourceResult, error) {
			drinks, err := store.List(ctx)
			if err != nil {
				return mcp.ReadResourceResult{}, err
			}
			data, err := json.Marshal(drinks)
			if err != nil {
				return mcp.ReadResourceResult{}, fmt.Errorf("failed to marshal menu: %w", err)
			}
			return mcp.ReadResourceResult{
				Contents: []mcp.ResourceContent{{URI: MenuURI, Text: string(data)}},
			}, nil
		}),
	}
}
