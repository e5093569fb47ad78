// Package catalog stores the drinks a coffee shop sells.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shaharia-lab/brewmcp/observability"
)

// ErrNotFound is returned by Get when no drink has the requested name.
var ErrNotFound = errors.New("drink not found")

// Drink is a single menu entry.
type Drink struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

// Store reads the menu. List returns drinks in menu order; Get matches the
// name exactly, case included.
type Store interface {
	List(ctx context.Context) ([]Drink, error)
	Get(ctx context.Context, name string) (Drink, error)
}

// DefaultDrinks returns the house menu.
func DefaultDrinks() []Drink {
	return []Drink{
		{
			Name:        "Latte",
			Price:       5,
			Description: "A latte is a coffee drink made with espresso and steamed milk.",
		},
		{
			Name:        "Mocha",
			Price:       6,
			Description: "A mocha is a coffee drink made with espresso and chocolate.",
		},
		{
			Name:        "Flat White",
			Price:       7,
			Description: "A flat white is a coffee drink made with espresso and steamed milk.",
		},
	}
}

// Names returns the drink names in order.
func Names(drinks []Drink) []string {
	names := make([]string, 0, len(drinks))
	for _, d := range drinks {
		names = append(names, d.Name)
	}
	return names
}

// Store drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverFile     = "file"
)

// Drivers lists every driver name Open understands.
func Drivers() []string {
	return []string{DriverMemory, DriverSQLite, DriverPostgres, DriverRedis, DriverFile}
}

// Open builds a store for driver. dsn is a database DSN for sqlite and
// postgres, a redis URL for redis and a JSON file path for file; it is ignored
// for memory. The returned close function releases whatever the store holds.
func Open(ctx context.Context, driver, dsn string, logger observability.Logger) (Store, func() error, error) {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	noop := func() error { return nil }

	switch strings.ToLower(driver) {
	case "", DriverMemory:
		return NewMemoryStore(DefaultDrinks()), noop, nil

	case DriverSQLite, DriverPostgres:
		store, err := OpenSQLStore(ctx, strings.ToLower(driver), dsn, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case DriverRedis:
		store, err := OpenRedisStore(ctx, dsn, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case DriverFile:
		store, err := NewFileStore(dsn, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Watch(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown catalog driver %q", driver)
	}
}
