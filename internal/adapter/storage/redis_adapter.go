package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/restock-engine/internal/core/domain"
)

const (
	recentSalesKey           = "recent-sales"
	recentSalesGenerationKey = "recent-sales:gen"
	recentSalesTTL           = 24 * time.Hour
)

// setRecentSalesScript writes a cached view only if no invalidation happened
// since the caller read the generation.
var setRecentSalesScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if current ~= tonumber(ARGV[1]) then
	return 0
end

redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) RecentSalesGeneration(ctx context.Context) (int64, error) {
	gen, err := r.client.Get(ctx, recentSalesGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *RedisAdapter) GetRecentSales(ctx context.Context, limit int) ([]domain.SaleEvent, bool, error) {
	raw, err := r.client.HGet(ctx, recentSalesKey, strconv.Itoa(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var sales []domain.SaleEvent
	if err := json.Unmarshal(raw, &sales); err != nil {
		return nil, false, fmt.Errorf("decode cached sales: %w", err)
	}
	return sales, true, nil
}

func (r *RedisAdapter) SetRecentSales(ctx context.Context, generation int64, limit int, sales []domain.SaleEvent) error {
	if sales == nil {
		sales = []domain.SaleEvent{}
	}
	payload, err := json.Marshal(sales)
	if err != nil {
		return fmt.Errorf("encode sales: %w", err)
	}

	keys := []string{recentSalesKey, recentSalesGenerationKey}
	return setRecentSalesScript.Run(ctx, r.client, keys,
		generation, strconv.Itoa(limit), payload, recentSalesTTL.Milliseconds(),
	).Err()
}

func (r *RedisAdapter) InvalidateRecentSales(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recentSalesKey)
		pipe.Incr(ctx, recentSalesGenerationKey)
		return nil
	})
	return err
}

func (r *RedisAdapter) AcquireCooldown(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
