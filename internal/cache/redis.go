package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/usersearch/go-services/internal/models"
	"github.com/usersearch/go-services/internal/users"
)

// RedisCache implements users.Cache. Users are stored as JSON under
// key: "<prefix><username>" with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ users.Cache = (*RedisCache)(nil)

// NewRedisCache creates a Redis-based user cache. Prefix may be empty.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "user:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) key(username string) string {
	return r.prefix + username
}

func (r *RedisCache) Get(ctx context.Context, username string) (*models.User, error) {
	b, err := r.client.Get(ctx, r.key(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(b, &u); err != nil {
		// drop undecodable entries so the next lookup repopulates them
		_ = r.client.Del(ctx, r.key(username)).Err()
		return nil, err
	}
	return &u, nil
}

func (r *RedisCache) Set(ctx context.Context, u *models.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(u.Username), b, r.ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, username string) error {
	return r.client.Del(ctx, r.key(username)).Err()
}
