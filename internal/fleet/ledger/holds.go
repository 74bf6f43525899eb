package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultHoldPrefix = "hold:vehicle:"

// RedisHoldStore implements domain.HoldStore on Redis SETNX semantics. Every
// hold carries a TTL so a crashed instance cannot leave a vehicle locked.
// The in-process stripe locks in MemoryLedger cannot see other instances;
// this store closes that gap.
type RedisHoldStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisHoldStore constructs the hold helper.
func NewRedisHoldStore(client redis.Cmdable, prefix string) *RedisHoldStore {
	if prefix == "" {
		prefix = defaultHoldPrefix
	}
	return &RedisHoldStore{client: client, keyPrefix: prefix}
}

// TryHold attempts to acquire the vehicle hold using SET NX EX.
func (r *RedisHoldStore) TryHold(ctx context.Context, vehicleID, bookingID uuid.UUID, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	key := r.keyPrefix + vehicleID.String()
	ok, err := r.client.SetNX(ctx, key, bookingID.String(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release removes the hold key.
func (r *RedisHoldStore) Release(ctx context.Context, vehicleID uuid.UUID) error {
	key := r.keyPrefix + vehicleID.String()
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
