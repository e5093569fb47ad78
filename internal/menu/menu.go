// Package menu drives an interactive session against a connected MCP
// server.
package menu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shaharia-lab/brewmcp/mcp"
)

// ErrCancelled is returned by a Prompter when the operator aborts a prompt.
var ErrCancelled = errors.New("prompt cancelled")

// Prompter asks the operator questions.
type Prompter interface {
	// Select returns the index of the chosen item.
	Select(label string, items []string) (int, error)
	Text(label string) (string, error)
}

// Session is the part of *mcp.Client the menu needs.
type Session interface {
	ServerInfo() mcp.Implementation
	Tools() []mcp.Tool
	Resources() []mcp.Resource
	Ping(ctx context.Context) error
	CallTool(ctx context.Context, name string, args map[string]any) (mcp.CallToolResult, error)
	ReadResource(ctx context.Context, uri string) (mcp.ReadResourceResult, error)
}

const (
	actionPing     = "Ping the server"
	actionTool     = "Get a tool"
	actionResource = "Get a resource"
	actionExit     = "Exit"
)

// Run shows the main menu until the operator exits, cancels a prompt or ctx
// ends. A failed call is reported on out and the menu is shown again.
func Run(ctx context.Context, session Session, prompter Prompter, out io.Writer) error {
	info := session.ServerInfo()
	fmt.Fprintf(out, "Connecting to %s v%s\n", info.Name, info.Version)

	for {
		if ctx.Err() != nil {
			return nil
		}

		actions := []string{actionPing}
		if len(session.Tools()) > 0 {
			actions = append(actions, actionTool)
		}
		if len(session.Resources()) > 0 {
			actions = append(actions, actionResource)
		}
		actions = append(actions, actionExit)

		i, err := prompter.Select("What do you want to do?", actions)
		if errors.Is(err, ErrCancelled) {
			return nil
		}
		if err != nil {
			return err
		}

		switch actions[i] {
		case actionPing:
			err = ping(ctx, session, out)
		case actionTool:
			err = callTool(ctx, session, prompter, out)
		case actionResource:
			err = readResource(ctx, session, prompter, out)
		case actionExit:
			return nil
		}

		if errors.Is(err, ErrCancelled) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func ping(ctx context.Context, session Session, out io.Writer) error {
	if err := session.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "{}")
	return nil
}

func callTool(ctx context.Context, session Session, prompter Prompter, out io.Writer) error {
	tools := session.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}

	i, err := prompter.Select("Select a tool", names)
	if err != nil {
		return err
	}
	tool := tools[i]

	// Only string parameters are asked for.
	args := map[string]any{}
	for _, p := range tool.InputSchema.Properties {
		if p.Type != mcp.TypeString {
			continue
		}
		value, err := prompter.Text(fmt.Sprintf("Enter value for %s (%s)", p.Name, p.Type))
		if err != nil {
			return err
		}
		args[p.Name] = value
	}

	result, err := session.CallTool(ctx, tool.Name, args)
	if err != nil {
		return err
	}

	texts := make([]string, len(result.Content))
	for i, c := range result.Content {
		texts[i] = c.Text
	}
	DumpContent(out, texts)
	return nil
}

func readResource(ctx context.Context, session Session, prompter Prompter, out io.Writer) error {
	resources := session.Resources()
	names := make([]string, len(resources))
	for i, r := range resources {
		names[i] = r.Name
	}

	i, err := prompter.Select("Select a resource", names)
	if err != nil {
		return err
	}

	result, err := session.ReadResource(ctx, resources[i].URI)
	if err != nil {
		return err
	}

	texts := make([]string, len(result.Contents))
	for i, c := range result.Contents {
		texts[i] = c.Text
	}
	DumpContent(out, texts)
	return nil
}

// DumpContent prints each text on its own line, indented if it is JSON.
func DumpContent(out io.Writer, texts []string) {
	for _, text := range texts {
		var buf bytes.Buffer
		if json.Valid([]byte(text)) && json.Indent(&buf, []byte(text), "", "  ") == nil {
			fmt.Fprintln(out, buf.String())
			continue
		}
		fmt.Fprintln(out, text)
	}
}
