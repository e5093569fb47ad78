package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/shaharia-lab/brewmcp/observability"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultRedisKeyPrefix prefixes every key a RedisStore touches.
const DefaultRedisKeyPrefix = "brewmcp:catalog:"

// RedisStore keeps the menu order in a list of names and each drink in its
// own hash.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    observability.Logger
}

// OpenRedisStore connects to the redis URL in dsn and seeds the default menu
// if no menu is stored yet.
func OpenRedisStore(ctx context.Context, dsn string, logger observability.Logger) (*RedisStore, error) {
	if dsn == "" {
		dsn = "redis://127.0.0.1:6379/0"
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	store, err := NewRedisStore(ctx, client, DefaultRedisKeyPrefix, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return store, nil
}

// NewRedisStore wraps client. An empty keyPrefix uses DefaultRedisKeyPrefix.
func NewRedisStore(ctx context.Context, client *redis.Client, keyPrefix string, logger observability.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	store := &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.WithFields(map[string]interface{}{"catalog": DriverRedis}),
	}

	n, err := client.LLen(ctx, store.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read menu length: %w", err)
	}
	if n == 0 {
		if err := store.Replace(ctx, DefaultDrinks()); err != nil {
			return nil, err
		}
		store.logger.Info("Seeded empty redis catalog with the default menu")
	}
	return store, nil
}

func (s *RedisStore) namesKey() string {
	return s.keyPrefix + "names"
}

func (s *RedisStore) drinkKey(name string) string {
	return s.keyPrefix + "drink:" + name
}

// Replace swaps the whole menu in one MULTI/EXEC block.
func (s *RedisStore) Replace(ctx context.Context, drinks []Drink) error {
	old, err := s.client.LRange(ctx, s.namesKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read menu: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, name := range old {
			pipe.Del(ctx, s.drinkKey(name))
		}
		pipe.Del(ctx, s.namesKey())
		for _, d := range drinks {
			pipe.RPush(ctx, s.namesKey(), d.Name)
			pipe.HSet(ctx, s.drinkKey(d.Name),
				"name", d.Name,
				"price", strconv.FormatFloat(d.Price, 'f', -1, 64),
				"description", d.Description,
			)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store menu: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Drink, error) {
	ctx, span := observability.StartSpan(ctx, "RedisStore.List")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	names, err := s.client.LRange(ctx, s.namesKey(), 0, -1).Result()
	if err != nil {
		err = fmt.Errorf("failed to read menu: %w", err)
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(names))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.HGetAll(ctx, s.drinkKey(name))
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed to read drinks: %w", err)
		return nil, err
	}

	drinks := make([]Drink, 0, len(names))
	for i, cmd := range cmds {
		var d Drink
		d, err = drinkFromHash(cmd.Val())
		if err != nil {
			err = fmt.Errorf("drink %q: %w", names[i], err)
			return nil, err
		}
		drinks = append(drinks, d)
	}

	span.SetAttributes(attribute.Int("drinks.count", len(drinks)))
	return drinks, nil
}

func (s *RedisStore) Get(ctx context.Context, name string) (Drink, error) {
	ctx, span := observability.StartSpan(ctx, "RedisStore.Get")
	span.SetAttributes(attribute.String("drink", name))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	fields, err := s.client.HGetAll(ctx, s.drinkKey(name)).Result()
	if err != nil {
		err = fmt.Errorf("failed to read drink %q: %w", name, err)
		return Drink{}, err
	}
	if len(fields) == 0 {
		return Drink{}, ErrNotFound
	}

	d, err := drinkFromHash(fields)
	if err != nil {
		err = fmt.Errorf("drink %q: %w", name, err)
		return Drink{}, err
	}
	return d, nil
}

func drinkFromHash(fields map[string]string) (Drink, error) {
	if len(fields) == 0 {
		return Drink{}, ErrNotFound
	}
	price, err := strconv.ParseFloat(fields["price"], 64)
	if err != nil {
		return Drink{}, fmt.Errorf("invalid price %q: %w", fields["price"], err)
	}
	return Drink{
		Name:        fields["name"],
		Price:       price,
		Description: fields["description"],
	}, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
