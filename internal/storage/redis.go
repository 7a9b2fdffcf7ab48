package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"visitor-router/internal/config"
)

type Redis struct {
	cli redis.UniversalClient
}

func NewRedis(ctx context.Context, cfg config.Config) (*Redis, error) {
	cli := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, errors.WithMessage(err, "ping redis")
	}
	return NewRedisFromClient(cli), nil
}

func NewRedisFromClient(cli redis.UniversalClient) *Redis {
	return &Redis{cli: cli}
}

func (r *Redis) HGet(ctx context.Context, hash, field string) (string, bool, error) {
	value, err := r.cli.HGet(ctx, hash, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WithMessage(err, "hget")
	}
	return value, true, nil
}

func (r *Redis) HMGet(ctx context.Context, hash string, fields ...string) ([]string, error) {
	if len(fields) == 0 {
		return []string{}, nil
	}
	values, err := r.cli.HMGet(ctx, hash, fields...).Result()
	if err != nil {
		return nil, errors.WithMessage(err, "hmget")
	}
	out := make([]string, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[i] = s
		}
	}
	return out, nil
}

func (r *Redis) HSet(ctx context.Context, hash, field, value string) error {
	if err := r.cli.HSet(ctx, hash, field, value).Err(); err != nil {
		return errors.WithMessage(err, "hset")
	}
	return nil
}

func (r *Redis) HSetNX(ctx context.Context, hash, field, value string) (bool, error) {
	ok, err := r.cli.HSetNX(ctx, hash, field, value).Result()
	if err != nil {
		return false, errors.WithMessage(err, "hsetnx")
	}
	return ok, nil
}

func (r *Redis) HGetAll(ctx context.Context, hash string) (map[string]string, error) {
	values, err := r.cli.HGetAll(ctx, hash).Result()
	if err != nil {
		return nil, errors.WithMessage(err, "hgetall")
	}
	return values, nil
}

func (r *Redis) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := r.cli.SAdd(ctx, key, toArgs(members)...).Err(); err != nil {
		return errors.WithMessage(err, "sadd")
	}
	return nil
}

func (r *Redis) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := r.cli.SRem(ctx, key, toArgs(members)...).Err(); err != nil {
		return errors.WithMessage(err, "srem")
	}
	return nil
}

func (r *Redis) SInter(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	members, err := r.cli.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, errors.WithMessage(err, "sinter")
	}
	return members, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WithMessage(err, "get")
	}
	return value, true, nil
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	value, err := r.cli.Incr(ctx, key).Result()
	if err != nil {
		return 0, errors.WithMessage(err, "incr")
	}
	return value, nil
}

func (r *Redis) ExpireNX(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.cli.ExpireNX(ctx, key, ttl).Err(); err != nil {
		return errors.WithMessage(err, "expire nx")
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.cli.Close()
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
