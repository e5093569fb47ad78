package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shaharia-lab/brewmcp/observability"
	"go.opentelemetry.io/otel/attribute"
)

// SQLStore keeps the menu in a drinks table. The position column preserves
// menu order.
type SQLStore struct {
	db      *sql.DB
	dialect string
	mu      sync.RWMutex
	logger  observability.Logger
}

// OpenSQLStore opens dsn with the driver for dialect ("sqlite" or
// "postgres"), creates the schema and seeds the default menu if the table is
// empty.
func OpenSQLStore(ctx context.Context, dialect, dsn string, logger observability.Logger) (*SQLStore, error) {
	driverName, err := sqlDriverName(dialect)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s catalog requires a DSN", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}

	store, err := NewSQLStore(ctx, db, dialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database. The schema is created if missing and
// the default menu is inserted into an empty table.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string, logger observability.Logger) (*SQLStore, error) {
	if _, err := sqlDriverName(dialect); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	store := &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  logger.WithFields(map[string]interface{}{"catalog": dialect}),
	}

	if err := store.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return store, nil
}

func sqlDriverName(dialect string) (string, error) {
	switch dialect {
	case DriverSQLite:
		return "sqlite3", nil
	case DriverPostgres:
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported sql dialect %q", dialect)
}

// bind returns the n-th (1-based) placeholder for the dialect.
func (s *SQLStore) bind(n int) string {
	if s.dialect == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	priceType := "REAL"
	if s.dialect == DriverPostgres {
		priceType = "DOUBLE PRECISION"
	}

	createDrinksTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS drinks (
		name TEXT PRIMARY KEY,
		price %s NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL
	);`, priceType)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for schema init: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createDrinksTableSQL); err != nil {
		return fmt.Errorf("failed to create drinks table: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM drinks`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count drinks: %w", err)
	}

	if count == 0 {
		if err := s.insertDrinks(ctx, tx, DefaultDrinks()); err != nil {
			return err
		}
		s.logger.Info("Seeded empty drinks table with the default menu")
	}

	return tx.Commit()
}

func (s *SQLStore) insertDrinks(ctx context.Context, tx *sql.Tx, drinks []Drink) error {
	insertSQL := fmt.Sprintf(`INSERT INTO drinks (name, price, description, position) VALUES (%s, %s, %s, %s)`,
		s.bind(1), s.bind(2), s.bind(3), s.bind(4))

	for i, d := range drinks {
		if _, err := tx.ExecContext(ctx, insertSQL, d.Name, d.Price, d.Description, i); err != nil {
			return fmt.Errorf("failed to insert drink %q: %w", d.Name, err)
		}
	}
	return nil
}

// Replace swaps the whole menu in one transaction.
func (s *SQLStore) Replace(ctx context.Context, drinks []Drink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM drinks`); err != nil {
		return fmt.Errorf("failed to clear drinks: %w", err)
	}
	if err := s.insertDrinks(ctx, tx, drinks); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) List(ctx context.Context) ([]Drink, error) {
	ctx, span := observability.StartSpan(ctx, "SQLStore.List")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT name, price, description FROM drinks ORDER BY position`)
	if err != nil {
		err = fmt.Errorf("failed to query drinks: %w", err)
		return nil, err
	}
	defer rows.Close()

	drinks := []Drink{}
	for rows.Next() {
		var d Drink
		if err = rows.Scan(&d.Name, &d.Price, &d.Description); err != nil {
			err = fmt.Errorf("failed to scan drink: %w", err)
			return nil, err
		}
		drinks = append(drinks, d)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("error iterating drinks: %w", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("drinks.count", len(drinks)))
	return drinks, nil
}

func (s *SQLStore) Get(ctx context.Context, name string) (Drink, error) {
	ctx, span := observability.StartSpan(ctx, "SQLStore.Get")
	span.SetAttributes(attribute.String("drink", name))
	var err error
	defer func() {
		if errors.Is(err, ErrNotFound) {
			observability.EndSpan(span, nil)
			return
		}
		observability.EndSpan(span, err)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var d Drink
	query := fmt.Sprintf(`SELECT name, price, description FROM drinks WHERE name = %s`, s.bind(1))
	err = s.db.QueryRowContext(ctx, query, name).Scan(&d.Name, &d.Price, &d.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
			return Drink{}, err
		}
		err = fmt.Errorf("failed to query drink %q: %w", name, err)
		return Drink{}, err
	}
	return d, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
