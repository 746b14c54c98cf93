package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/petmarket/internal/cart/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cache := NewRedisCache(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return cache, mr, cleanup
}

func testCart(owner domain.Owner) *domain.Cart {
	cart := domain.NewCart(owner, time.Now())
	cart.Items = append(cart.Items,
		domain.LineItem{ID: "a", ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		domain.LineItem{ID: "b", ProductID: 2, Quantity: 3, UnitPrice: decimal.RequireFromString("1.25")},
	)
	return cart
}

func TestGet_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	owner := domain.AccountOwner("user123")
	cartJSON, _ := json.Marshal(testCart(owner))
	require.NoError(t, mr.Set(cacheKey(owner), string(cartJSON)))

	result, err := cache.Get(context.Background(), owner)

	require.NoError(t, err)
	assert.Equal(t, owner, result.Owner)
	assert.Len(t, result.Items, 2)
	assert.True(t, decimal.RequireFromString("1.25").Equal(result.Items[1].UnitPrice))
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	result, err := cache.Get(context.Background(), domain.AccountOwner("nobody"))

	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_CorruptedDataIsEvicted(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	owner := domain.AccountOwner("user123")
	require.NoError(t, mr.Set(cacheKey(owner), "{not json"))

	_, err := cache.Get(context.Background(), owner)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.False(t, mr.Exists(cacheKey(owner)))
}

func TestGet_ForeignOwnerIsEvicted(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	owner := domain.AccountOwner("user123")
	cartJSON, _ := json.Marshal(testCart(domain.AccountOwner("someone-else")))
	require.NoError(t, mr.Set(cacheKey(owner), string(cartJSON)))

	_, err := cache.Get(context.Background(), owner)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.False(t, mr.Exists(cacheKey(owner)))
}

func TestGet_RedisDown(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	mr.Close()

	_, err := cache.Get(context.Background(), domain.AccountOwner("user123"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestGuestCartsAreNotCached(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	owner := domain.GuestOwner("session-1")
	require.NoError(t, cache.Set(context.Background(), testCart(owner)))
	assert.False(t, mr.Exists(cacheKey(owner)))

	_, err := cache.Get(context.Background(), owner)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSet_WithoutJitterUsesExactTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCacheWithOptions(client, Options{TTL: time.Minute})

	owner := domain.AccountOwner("user123")
	require.NoError(t, cache.Set(context.Background(), testCart(owner)))
	assert.Equal(t, time.Minute, mr.TTL(cacheKey(owner)))
}

func TestSet_StoresWithJitteredTTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	owner := domain.AccountOwner("user123")
	require.NoError(t, cache.Set(context.Background(), testCart(owner)))

	assert.True(t, mr.Exists(cacheKey(owner)))
	ttl := mr.TTL(cacheKey(owner))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)
}

func TestDelete(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	owner := domain.AccountOwner("user123")
	require.NoError(t, cache.Set(context.Background(), testCart(owner)))
	require.NoError(t, cache.Delete(context.Background(), owner))

	assert.False(t, mr.Exists(cacheKey(owner)))
	// deleting a missing key is fine
	assert.NoError(t, cache.Delete(context.Background(), owner))
}

func TestNop(t *testing.T) {
	var c CartCache = Nop{}
	owner := domain.AccountOwner("u")

	_, err := c.Get(context.Background(), owner)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Set(context.Background(), testCart(owner)))
	assert.NoError(t, c.Delete(context.Background(), owner))
}
