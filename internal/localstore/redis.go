package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps the three keys in redis under a shopfront: prefix. Meant
// for deployments where the client runs on shared infrastructure (kiosks)
// rather than a single machine.
type redisStore struct {
	client *redis.Client
}

func openRedis(ctx context.Context, dsn string) (Store, error) {
	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

func (s *redisStore) key(k string) string {
	return "shopfront:" + k
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoValue
	}
	return v, err
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *redisStore) Reset(ctx context.Context) error {
	return s.client.Del(ctx, s.key(KeyToken), s.key(KeyUser), s.key(KeyCart)).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
