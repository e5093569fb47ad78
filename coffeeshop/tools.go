package coffeeshop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shaharia-lab/brewmcp/catalog"
	"github.com/shaharia-lab/brewmcp/mcp"
)

const (
	ToolDrinkNames = "getDrinkNames"
	ToolDrinkInfo  = "getDrinkInfo"
)

type drinkInfoArgs struct {
	Name string `json:"name"`
}

type drinkNames struct {
	Names []string `json:"names"`
}

type lookupError struct {
	Error string `json:"error"`
}

// Tools returns the coffee-shop tools in menu order: getDrinkNames then
// getDrinkInfo.
func Tools(store catalog.Store) ([]mcp.ToolProvider, error) {
	infoSchema, err := mcp.SchemaFor(&drinkInfoArgs{})
	if err != nil {
		return nil, fmt.Errorf("failed to derive %s schema: %w", ToolDrinkInfo, err)
	}

	return []mcp.ToolProvider{
		mcp.NewTool(ToolDrinkNames, "Get the names of the drinks in the shop", mcp.EmptySchema(),
			func(ctx context.Context, _ map[string]any) (mcp.CallToolResult, error) {
				drinks, err := store.List(ctx)
				if err != nil {
					return mcp.CallToolResult{}, err
				}
				return jsonResult(drinkNames{Names: catalog.Names(drinks)})
			}),

		mcp.NewTool(ToolDrinkInfo, "Get more info about the drink", infoSchema,
			func(ctx context.Context, args map[string]any) (mcp.CallToolResult, error) {
				name, _ := args["name"].(string)

				drink, err := store.Get(ctx, name)
				if errors.Is(err, catalog.ErrNotFound) {
					// A miss is an answer, not a failed call.
					return jsonResult(lookupError{Error: "Drink not found"})
				}
				if err != nil {
					return mcp.CallToolResult{}, err
				}
				return jsonResult(drink)
			}),
	}, nil
}

func jsonResult(v interface{}) (mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.CallToolResult{}, fmt.Errorf("failed to marshal tool output: %w", err)
	}
	return mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent(string(data))}}, nil
}
