package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisRecordsKey = "codegate:delivers"

// RedisStore keeps quota records in one Redis hash, field per chat.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, chatID int64) (Record, bool, error) {
	data, err := s.client.HGet(ctx, redisRecordsKey, strconv.FormatInt(chatID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("fetch quota record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode quota record: %w", err)
	}
	return rec, true, nil
}

func (s *RedisStore) Set(ctx context.Context, chatID int64, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode quota record: %w", err)
	}
	if err := s.client.HSet(ctx, redisRecordsKey, strconv.FormatInt(chatID, 10), data).Err(); err != nil {
		return fmt.Errorf("persist quota record: %w", err)
	}
	return nil
}
