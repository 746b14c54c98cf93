package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/petmarket/internal/cart/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "petmarket:cart:"

type Options struct {
	// TTL is the minimum lifetime of a cached cart.
	TTL time.Duration
	// Jitter is the upper bound of the random extra lifetime added to TTL.
	Jitter time.Duration
}

func DefaultOptions() Options {
	return Options{TTL: 15 * time.Minute, Jitter: 5 * time.Minute}
}

// RedisCache keeps read-through copies of account carts. Guest carts already
// live in Redis and are never cached.
type RedisCache struct {
	client redis.UniversalClient
	opts   Options
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return NewRedisCacheWithOptions(client, DefaultOptions())
}

func NewRedisCacheWithOptions(client redis.UniversalClient, opts Options) *RedisCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions().TTL
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	return &RedisCache{client: client, opts: opts}
}

// Get returns ErrCacheMiss for absent entries and for entries that no longer
// decode; the latter are evicted.
func (r *RedisCache) Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if owner.IsGuest() {
		return nil, ErrCacheMiss
	}

	key := cacheKey(owner)
	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("cart cache get %s: %w", owner, err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil || cart.Owner != owner {
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			return nil, fmt.Errorf("cart cache evict %s: %w", owner, delErr)
		}
		return nil, ErrCacheMiss
	}
	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, cart *domain.Cart) error {
	if cart.Owner.IsGuest() {
		return nil
	}

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("cart cache encode %s: %w", cart.Owner, err)
	}
	if err := r.client.Set(ctx, cacheKey(cart.Owner), data, r.ttl()).Err(); err != nil {
		return fmt.Errorf("cart cache set %s: %w", cart.Owner, err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, owner domain.Owner) error {
	if err := r.client.Del(ctx, cacheKey(owner)).Err(); err != nil {
		return fmt.Errorf("cart cache delete %s: %w", owner, err)
	}
	return nil
}

// ttl spreads expiries so cached carts do not all miss at once.
func (r *RedisCache) ttl() time.Duration {
	if r.opts.Jitter == 0 {
		return r.opts.TTL
	}
	return r.opts.TTL + rand.N(r.opts.Jitter)
}

func cacheKey(owner domain.Owner) string {
	return keyPrefix + owner.Key()
}
