package token

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pulse:"

// RedisBackend stores the pair as two plain keys so several local clients
// can share one login.
type RedisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Get(ctx context.Context) (string, string, error) {
	if b.rdb == nil {
		return "", "", errNoRedis
	}
	vals, err := b.rdb.MGet(ctx, redisKeyPrefix+AccessTokenKey, redisKeyPrefix+RefreshTokenKey).Result()
	if err != nil {
		return "", "", err
	}
	access, _ := vals[0].(string)
	refresh, _ := vals[1].(string)
	return access, refresh, nil
}

func (b *RedisBackend) SetPair(ctx context.Context, access, refresh string) error {
	if b.rdb == nil {
		return errNoRedis
	}
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+AccessTokenKey, access, 0)
		pipe.Set(ctx, redisKeyPrefix+RefreshTokenKey, refresh, 0)
		return nil
	})
	return err
}

func (b *RedisBackend) Delete(ctx context.Context) error {
	if b.rdb == nil {
		return errNoRedis
	}
	return b.rdb.Del(ctx, redisKeyPrefix+AccessTokenKey, redisKeyPrefix+RefreshTokenKey).Err()
}
