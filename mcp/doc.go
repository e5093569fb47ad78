// Package mcp implements a small subset of the Model Context Protocol over a
// line-delimited JSON-RPC 2.0 stream: a server that exposes tools and
// resources, and a client that performs the handshake and calls them.
//
// Each message is one JSON object on its own line. The server answers every
// request it routes; unknown methods get -32601 and unknown tool names or
// resource URIs get -32602. By default error objects are nested inside
// result, which is what existing coffee-shop peers send; WithErrorPlacement
// switches to the conventional top-level error member. The client accepts
// both.
//
// Example:
//
//	server := mcp.NewServer(mcp.UseServerInfo("demo", "1.0.0"))
//	_ = server.AddTools(mcp.NewTool("hello", "Say hello", mcp.Schema{
//		Properties: []mcp.Property{{Name: "name", Type: mcp.TypeString}},
//		Required:   []string{"name"},
//	}, func(ctx context.Context, args map[string]any) (mcp.CallToolResult, error) {
//		return mcp.CallToolResult{
//			Content: []mcp.Content{mcp.TextContent(fmt.Sprintf("hello %v", args["name"]))},
//		}, nil
//	}))
//
//	if err := mcp.NewStdIOServer(server, os.Stdin, os.Stdout).Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// And on the other side:
//
//	transport, err := mcp.StartCommand(ctx, "demo-server", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	client := mcp.NewClient(transport, transport)
//	defer client.Close()
//
//	if err := client.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	result, err := client.CallTool(ctx, "hello", map[string]any{"name": "world"})
package mcp
