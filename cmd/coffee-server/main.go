// Command coffee-server serves the coffee-shop menu as MCP tools and
// resources over stdin and stdout. Logs go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaharia-lab/brewmcp/catalog"
	"github.com/shaharia-lab/brewmcp/coffeeshop"
	"github.com/shaharia-lab/brewmcp/internal/config"
	"github.com/shaharia-lab/brewmcp/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	// Environment first, flags override. Validation waits until flags are
	// parsed.
	cfg, envErr := config.ServerFromEnv()

	cmd := &cobra.Command{
		Use:          "coffee-server",
		Short:        "Serve the coffee-shop menu over stdio",
		Version:      coffeeshop.ServerVersion,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Log.Driver, "log-driver", cfg.Log.Driver, "logger: default, slog, logrus, zap or null")
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "minimum log level: debug, info, warn or error")
	flags.StringVar(&cfg.CatalogDriver, "catalog", cfg.CatalogDriver, "catalog store: memory, sqlite, postgres, redis or file")
	flags.StringVar(&cfg.CatalogDSN, "catalog-dsn", cfg.CatalogDSN, "DSN, redis URL or JSON file path for the catalog store")
	flags.StringVar(&cfg.ErrorPlacement, "error-placement", cfg.ErrorPlacement, "where error replies carry the error: result or toplevel")
	flags.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "requests per second, 0 for unlimited")
	flags.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "rate limiter burst")

	return cmd
}

func serve(ctx context.Context, cfg config.ServerConfig, in io.Reader, out, errOut io.Writer) error {
	logger, err := cfg.Log.NewLogger(errOut)
	if err != nil {
		return err
	}

	store, closeStore, err := catalog.Open(ctx, cfg.CatalogDriver, cfg.CatalogDSN, logger)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithErr(err).Warn("Failed to close catalog")
		}
	}()

	server, err := coffeeshop.NewServer(store, cfg.ServerOptions(logger)...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		logger.WithFields(map[string]interface{}{
			"catalog":        cfg.CatalogDriver,
			"errorPlacement": cfg.ErrorPlacement,
		}).Info("Coffee shop server started")
		return mcp.NewStdIOServer(server, in, out).Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Coffee shop server shutting down")
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithErr(err).Error("Server stopped")
		return err
	}
	return nil
}
