// Command coffee-client starts a coffee-shop server as a child process and
// lets the operator ping it, call its tools and read its resources.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaharia-lab/brewmcp/internal/config"
	"github.com/shaharia-lab/brewmcp/internal/menu"
	"github.com/shaharia-lab/brewmcp/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	clientName    = "custom-mcp-client"
	clientVersion = "1.0.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, envErr := config.ClientFromEnv()

	cmd := &cobra.Command{
		Use:          "coffee-client",
		Short:        "Talk to a coffee-shop MCP server over stdio",
		Version:      clientVersion,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ServerCommand, "server", cfg.ServerCommand, "command that starts the server, split on spaces")
	flags.DurationVar(&cfg.CallTimeout, "call-timeout", cfg.CallTimeout, "per-request timeout, 0 waits indefinitely")
	flags.StringVar(&cfg.Log.Driver, "log-driver", cfg.Log.Driver, "logger: default, slog, logrus, zap or null")
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "minimum log level: debug, info, warn or error")

	return cmd
}

func run(cmd *cobra.Command, cfg config.ClientConfig) error {
	ctx := cmd.Context()

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	name, args, err := cfg.Command()
	if err != nil {
		return err
	}

	transport, err := mcp.StartCommand(ctx, name, args, mcp.WithCommandStderr(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	client := mcp.NewClient(transport, transport,
		mcp.WithClientLogger(logger),
		mcp.WithClientInfo(clientName, clientVersion),
		mcp.WithCallTimeout(cfg.CallTimeout),
	)
	defer func() {
		if err := client.Close(); err != nil {
			logger.WithErr(err).Debug("Server exited with error")
		}
	}()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %q: %w", cfg.ServerCommand, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return menu.Run(ctx, client, menu.PromptUI{}, cmd.OutOrStdout())
	})

	g.Go(func() error {
		select {
		case <-client.Done():
			logger.WithFields(map[string]interface{}{"pid": transport.Pid()}).Warn("Server connection closed")
			return errors.New("server connection closed")
		case <-ctx.Done():
			return nil
		}
	})

	return g.Wait()
}
