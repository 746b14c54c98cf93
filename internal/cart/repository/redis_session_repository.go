package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/petmarket/internal/cart/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultGuestCartTTL bounds how long an idle anonymous cart survives.
const DefaultGuestCartTTL = 24 * time.Hour

// RedisSessionRepository keeps guest carts in Redis under their session token.
// Every save pushes the expiry out again.
type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	if ttl <= 0 {
		ttl = DefaultGuestCartTTL
	}
	return &RedisSessionRepository{client: client, ttl: ttl}
}

func (r *RedisSessionRepository) GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, sessionKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

func (r *RedisSessionRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(cart.Owner), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) DeleteCart(ctx context.Context, owner domain.Owner) error {
	deleted, err := r.client.Del(ctx, sessionKey(owner)).Result()
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	if deleted == 0 {
		return ErrCartNotFound
	}
	return nil
}

func sessionKey(owner domain.Owner) string {
	return fmt.Sprintf("guest_cart:%s", owner.ID)
}
