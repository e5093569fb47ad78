package catalog

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   3,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.FlushDB(ctx)

	store, err := NewRedisStore(ctx, client, "test:catalog:", nil)
	require.NoError(t, err)
	defer store.Close()

	drinks, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultDrinks(), drinks)

	d, err := store.Get(ctx, "Latte")
	require.NoError(t, err)
	assert.Equal(t, DefaultDrinks()[0], d)

	_, err = store.Get(ctx, "Espresso")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Replace(ctx, []Drink{{Name: "Cortado", Price: 4.5}}))

	drinks, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cortado"}, Names(drinks))

	_, err = store.Get(ctx, "Latte")
	assert.ErrorIs(t, err, ErrNotFound, "replaced drinks are removed")
}

func TestDrinkFromHash(t *testing.T) {
	d, err := drinkFromHash(map[string]string{"name": "Mocha", "price": "6", "description": "x"})
	require.NoError(t, err)
	assert.Equal(t, Drink{Name: "Mocha", Price: 6, Description: "x"}, d)

	_, err = drinkFromHash(map[string]string{"name": "Mocha", "price": "six"})
	assert.ErrorContains(t, err, "invalid price")

	_, err = drinkFromHash(nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
