package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"librarium/contentservice/internal/domain"
)

const redisKeyPrefix = "content:search:"

// RedisBackend mirrors search responses into Redis so cached results survive
// restarts and are shared across instances. The in-memory cache stays
// authoritative; Redis errors are reported but never fatal.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key string) (domain.SearchResponse, bool, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.SearchResponse{}, false, nil
		}
		return domain.SearchResponse{}, false, err
	}
	var response domain.SearchResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return domain.SearchResponse{}, false, err
	}
	if !SearchResponseValidator(response) {
		_ = r.client.Del(ctx, redisKeyPrefix+key).Err()
		return domain.SearchResponse{}, false, nil
	}
	return response, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, response domain.SearchResponse, ttl time.Duration) error {
	if !SearchResponseAcceptor(response) {
		return nil
	}
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisKeyPrefix+key).Err()
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
