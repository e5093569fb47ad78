package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_AnswersUntilEOF(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"getDrinkNames","arguments":{}}}`,
	}, "\n") + "\n")

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(in)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--log-driver", "logrus", "--log-level", "debug"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"serverInfo":{"name":"Coffee Shop Server","version":"1.0.0"}`)
	assert.Contains(t, lines[1], `\"names\":[\"Latte\",\"Mocha\",\"Flat White\"]`)
	assert.Contains(t, errOut.String(), "Coffee shop server started")
}

func TestServe_RejectsBadFlags(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--catalog", "mongodb"})

	err := cmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "unknown catalog driver")
}

func TestServe_ReportsBadEnvironment(t *testing.T) {
	t.Setenv("BREW_RATE_BURST", "lots")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{})

	err := cmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "failed to read environment")
	assert.NotContains(t, out.String(), `"jsonrpc"`, "nothing is served")
}
