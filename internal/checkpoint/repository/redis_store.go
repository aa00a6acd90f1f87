package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/purchasesync/internal/checkpoint/domain"
)

const keyCheckpoint = "purchasesync:checkpoint:%s"

type redisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) domain.Store {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, feed string) (*time.Time, error) {
	if feed == "" {
		return nil, domain.ErrInvalidFeed
	}
	raw, err := s.client.Get(ctx, fmt.Sprintf(keyCheckpoint, feed)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", feed, err)
	}
	at = at.UTC()
	return &at, nil
}

func (s *redisStore) Set(ctx context.Context, feed string, at time.Time) error {
	if feed == "" {
		return domain.ErrInvalidFeed
	}
	return s.client.Set(ctx, fmt.Sprintf(keyCheckpoint, feed), at.UTC().Format(time.RFC3339Nano), 0).Err()
}

func (s *redisStore) Reset(ctx context.Context, feed string) error {
	if feed == "" {
		return domain.ErrInvalidFeed
	}
	return s.client.Del(ctx, fmt.Sprintf(keyCheckpoint, feed)).Err()
}
