// Package config loads the settings of the coffee-shop binaries from the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/shaharia-lab/brewmcp/catalog"
	"github.com/shaharia-lab/brewmcp/mcp"
	"github.com/shaharia-lab/brewmcp/observability"
)

// LogConfig selects the logger driver and minimum level.
type LogConfig struct {
	Driver string `env:"BREW_LOG_DRIVER,default=default"`
	Level  string `env:"BREW_LOG_LEVEL,default=info"`
}

func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Driver) {
	case observability.DriverDefault, observability.DriverSlog, observability.DriverLogrus,
		observability.DriverZap, observability.DriverNull:
	default:
		return fmt.Errorf("unknown log driver %q", c.Driver)
	}
	if _, err := observability.ParseLevel(c.Level); err != nil {
		return err
	}
	return nil
}

// NewLogger builds the configured logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) (observability.Logger, error) {
	level, err := observability.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	return observability.NewLogger(c.Driver, level, w)
}

// ServerConfig configures coffee-server.
type ServerConfig struct {
	Log LogConfig

	CatalogDriver  string  `env:"BREW_CATALOG_DRIVER,default=memory"`
	CatalogDSN     string  `env:"BREW_CATALOG_DSN"`
	ErrorPlacement string  `env:"BREW_ERROR_PLACEMENT,default=result"`
	RateLimit      float64 `env:"BREW_RATE_LIMIT,default=0"`
	RateBurst      int     `env:"BREW_RATE_BURST,default=1"`
}

// ServerFromEnv reads ServerConfig from the environment without validating
// it, so that flags can still override the values first.
func ServerFromEnv() (ServerConfig, error) {
	var cfg ServerConfig
	if err := decode(&cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadServer reads ServerConfig from the environment and validates it.
func LoadServer() (ServerConfig, error) {
	cfg, err := ServerFromEnv()
	if err != nil {
		return ServerConfig{}, err
	}
	return cfg, cfg.Validate()
}

func (c ServerConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}

	driver := strings.ToLower(c.CatalogDriver)
	if !slices.Contains(catalog.Drivers(), driver) {
		return fmt.Errorf("unknown catalog driver %q (want one of %s)", c.CatalogDriver, strings.Join(catalog.Drivers(), ", "))
	}
	switch driver {
	case catalog.DriverSQLite, catalog.DriverPostgres, catalog.DriverFile:
		if c.CatalogDSN == "" {
			return fmt.Errorf("catalog driver %q requires BREW_CATALOG_DSN", driver)
		}
	}

	if _, err := mcp.ParseErrorPlacement(c.ErrorPlacement); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1, got %d", c.RateBurst)
	}
	return nil
}

// ServerOptions translates the config into server options. The config must
// be valid.
func (c ServerConfig) ServerOptions(logger observability.Logger) []mcp.ServerConfigOption {
	placement, _ := mcp.ParseErrorPlacement(c.ErrorPlacement)

	opts := []mcp.ServerConfigOption{
		mcp.UseLogger(logger),
		mcp.WithErrorPlacement(placement),
	}
	if c.RateLimit > 0 {
		opts = append(opts, mcp.UseRateLimit(c.RateLimit, c.RateBurst))
	}
	return opts
}

// ClientConfig configures coffee-client.
type ClientConfig struct {
	Log LogConfig

	ServerCommand string        `env:"BREW_SERVER_COMMAND,default=coffee-server"`
	CallTimeout   time.Duration `env:"BREW_CALL_TIMEOUT,default=0s"`
}

// ClientFromEnv reads ClientConfig from the environment without validating
// it.
func ClientFromEnv() (ClientConfig, error) {
	var cfg ClientConfig
	if err := decode(&cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// LoadClient reads ClientConfig from the environment and validates it.
func LoadClient() (ClientConfig, error) {
	cfg, err := ClientFromEnv()
	if err != nil {
		return ClientConfig{}, err
	}
	return cfg, cfg.Validate()
}

func (c ClientConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if _, _, err := c.Command(); err != nil {
		return err
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call timeout must not be negative, got %s", c.CallTimeout)
	}
	return nil
}

// Command splits ServerCommand on whitespace into a program and its
// arguments.
func (c ClientConfig) Command() (string, []string, error) {
	fields := strings.Fields(c.ServerCommand)
	if len(fields) == 0 {
		return "", nil, errors.New("server command is empty")
	}
	return fields[0], fields[1:], nil
}

func decode(target interface{}) error {
	err := envdecode.Decode(target)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}
