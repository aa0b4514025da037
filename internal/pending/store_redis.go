package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"codegate/pkg/platform/sentinel"
)

const (
	redisIntakeKey    = "codegate:intake"
	redisCompletedKey = "codegate:pending"
	redisOrderKey     = "codegate:pending:order"
)

// RedisRegistry is a Redis-backed Registry for deployments where the bot and
// its state must survive host replacement or run alongside other tooling.
// Entries live in hashes; a list alongside the completed hash preserves
// insertion order for deterministic matching.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) PutIntake(ctx context.Context, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode intake entry: %w", err)
	}
	field := strconv.FormatInt(req.ChatID, 10)
	if err := r.client.HSet(ctx, redisIntakeKey, field, data).Err(); err != nil {
		return fmt.Errorf("persist intake entry: %w", err)
	}
	return nil
}

func (r *RedisRegistry) GetIntake(ctx context.Context, chatID int64) (Request, error) {
	field := strconv.FormatInt(chatID, 10)
	data, err := r.client.HGet(ctx, redisIntakeKey, field).Result()
	if errors.Is(err, redis.Nil) {
		return Request{}, fmt.Errorf("intake entry for chat %d: %w", chatID, sentinel.ErrNotFound)
	}
	if err != nil {
		return Request{}, fmt.Errorf("fetch intake entry: %w", err)
	}
	return decodeRequest([]byte(data))
}

func (r *RedisRegistry) Complete(ctx context.Context, key string, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode completed entry: %w", err)
	}
	known, err := r.client.HExists(ctx, redisCompletedKey, key).Result()
	if err != nil {
		return fmt.Errorf("check completed entry: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HDel(ctx, redisIntakeKey, strconv.FormatInt(req.ChatID, 10))
	pipe.HSet(ctx, redisCompletedKey, key, data)
	if !known {
		pipe.RPush(ctx, redisOrderKey, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist completed entry: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, key string) (Request, error) {
	data, err := r.client.HGet(ctx, redisCompletedKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return Request{}, fmt.Errorf("entry %q: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return Request{}, fmt.Errorf("fetch entry: %w", err)
	}
	return decodeRequest([]byte(data))
}

func (r *RedisRegistry) Remove(ctx context.Context, key string) error {
	pipe := r.client.TxPipeline()
	pipe.HDel(ctx, redisCompletedKey, key)
	pipe.LRem(ctx, redisOrderKey, 0, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist removal: %w", err)
	}
	return nil
}

func (r *RedisRegistry) List(ctx context.Context) ([]Entry, error) {
	keys, err := r.client.LRange(ctx, redisOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list entry order: %w", err)
	}
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.HGet(ctx, redisCompletedKey, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch entry %q: %w", key, err)
		}
		req, err := decodeRequest([]byte(data))
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Request: req})
	}
	return entries, nil
}

func (r *RedisRegistry) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0

	intake, err := r.client.HGetAll(ctx, redisIntakeKey).Result()
	if err != nil {
		return 0, fmt.Errorf("scan intake entries: %w", err)
	}
	for field, data := range intake {
		req, err := decodeRequest([]byte(data))
		if err != nil {
			return deleted, err
		}
		if req.CreatedAt.Before(cutoff) {
			if err := r.client.HDel(ctx, redisIntakeKey, field).Err(); err != nil {
				return deleted, fmt.Errorf("delete expired intake entry: %w", err)
			}
			deleted++
		}
	}

	entries, err := r.List(ctx)
	if err != nil {
		return deleted, err
	}
	for _, entry := range entries {
		if entry.Request.CreatedAt.Before(cutoff) {
			if err := r.Remove(ctx, entry.Key); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

func decodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode entry: %w", err)
	}
	return req, nil
}
