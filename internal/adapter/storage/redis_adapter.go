package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-manager/internal/core/domain"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	mirrorKeyPrefix      = "ledger:"
	idempotencyKeyTTL    = 24 * time.Hour
)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// Apply mirrors a change into the hash ledger:<kind>, one JSON field per id.
func (r *RedisAdapter) Apply(ctx context.Context, change domain.Change) error {
	key := mirrorKeyPrefix + string(change.Kind)
	field := strconv.FormatUint(change.ID, 10)

	if change.Op == domain.ChangeDelete {
		return r.client.HDel(ctx, key, field).Err()
	}

	payload, err := json.Marshal(change.Record)
	if err != nil {
		return fmt.Errorf("encode %s %d: %w", change.Kind, change.ID, err)
	}
	return r.client.HSet(ctx, key, field, payload).Err()
}
