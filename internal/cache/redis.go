package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultAvailabilityTTL = 5 * time.Second

// снимаем блокировку только если она всё ещё наша
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisClient struct {
	client          *redis.Client
	availabilityTTL time.Duration
	log             *zap.Logger
	newToken        func() string
}

func NewRedisClient(addr, password string, db int, availabilityTTL time.Duration, log *zap.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis connected successfully", zap.String("addr", addr))

	return NewFromClient(rdb, availabilityTTL, log), nil
}

func NewFromClient(rdb *redis.Client, availabilityTTL time.Duration, log *zap.Logger) *RedisClient {
	if availabilityTTL <= 0 {
		availabilityTTL = defaultAvailabilityTTL
	}
	return &RedisClient{
		client:          rdb,
		availabilityTTL: availabilityTTL,
		log:             log,
		newToken:        uuid.NewString,
	}
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func availabilityKey(itemID uuid.UUID) string {
	return fmt.Sprintf("availability:%s", itemID)
}

// Кэш остатков
func (r *RedisClient) GetAvailability(ctx context.Context, itemID uuid.UUID) (int32, bool, error) {
	val, err := r.client.Get(ctx, availabilityKey(itemID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("bad cached availability %q: %w", val, err)
	}
	return int32(n), true, nil
}

func (r *RedisClient) SetAvailability(ctx context.Context, itemID uuid.UUID, available int32) error {
	return r.client.Set(ctx, availabilityKey(itemID), available, r.availabilityTTL).Err()
}

func (r *RedisClient) InvalidateAvailability(ctx context.Context, itemID uuid.UUID) error {
	return r.client.Del(ctx, availabilityKey(itemID)).Err()
}

// Блокировка прохода reclaim между репликами
func (r *RedisClient) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := r.newToken()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisClient) Unlock(ctx context.Context, key, token string) error {
	return unlockScript.Run(ctx, r.client, []string{key}, token).Err()
}
