package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// RedisStore keeps each user's history as a list of JSON records.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(userID string) string {
	return "history:" + userID
}

func (s *RedisStore) Append(ctx context.Context, userID string, rec Record) error {
	ba, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, redisKey(userID), ba).Err()
}

func (s *RedisStore) List(ctx context.Context, userID string) ([]Record, error) {
	items, err := s.client.LRange(ctx, redisKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	recs := make([]Record, 0, len(items))
	for i, item := range items {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("history entry %d of %s: %w", i, userID, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
