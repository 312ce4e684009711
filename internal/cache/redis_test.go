package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/go-rental-store/internal/models"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, 10*time.Minute), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	cart := &models.Cart{
		ID:         5,
		CustomerID: 42,
		Items: []models.CartItem{
			{ID: 1, ProductID: 3, VariantID: 4, Quantity: 2, PricePerUnit: decimal.NewFromInt(25)},
		},
	}
	require.NoError(t, c.Set(ctx, 42, cart))
	assert.True(t, mr.Exists("cart:42"))

	ttl := mr.TTL("cart:42")
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 11*time.Minute)

	got, err := c.Get(ctx, 42)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Subtotal().Equal(decimal.NewFromInt(50)))
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := setupTestRedis(t)

	got, err := c.Get(context.Background(), 7)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestRedisCacheDelete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 42, &models.Cart{CustomerID: 42}))
	require.NoError(t, c.Delete(ctx, 42))
	assert.False(t, mr.Exists("cart:42"))
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("cart:9", "{not json"))

	_, err := c.Get(context.Background(), 9)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheUnavailable(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.Close()

	_, err := c.Get(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
