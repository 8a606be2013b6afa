package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

var errEmptyRedisURL = errors.New("token_store.redis.empty_url")

const redisKeyPrefix = "classgate:"

// RedisStore keeps the session document in Redis so gateway replicas share
// one credential pair. A refresh performed by another replica racing with
// this one's read is the same accepted hazard as two browser tabs sharing
// localStorage.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects using a redis:// URL.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("token_store.redis.open: %w", errEmptyRedisURL)
	}
	options, parseErr := redis.ParseURL(redisURL)
	if parseErr != nil {
		return nil, fmt.Errorf("token_store.redis.parse_url: %w", parseErr)
	}
	return &RedisStore{client: redis.NewClient(options)}, nil
}

// Credentials loads both tokens with one MGET.
func (store *RedisStore) Credentials(ctx context.Context) (Credentials, error) {
	values, err := store.client.MGet(ctx, redisKeyPrefix+KeyAccessToken, redisKeyPrefix+KeyRefreshToken).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("token_store.redis.credentials: %w", err)
	}
	return sanitizeCredentials(Credentials{
		AccessToken:  stringValue(values[0]),
		RefreshToken: stringValue(values[1]),
	})
}

// SetCredentials writes both tokens with one MSET.
func (store *RedisStore) SetCredentials(ctx context.Context, pair Credentials) error {
	err := store.client.MSet(ctx,
		redisKeyPrefix+KeyAccessToken, pair.AccessToken,
		redisKeyPrefix+KeyRefreshToken, pair.RefreshToken,
	).Err()
	if err != nil {
		return fmt.Errorf("token_store.redis.set_credentials: %w", err)
	}
	return nil
}

// Value returns a cached projection by key.
func (store *RedisStore) Value(ctx context.Context, key string) (string, error) {
	value, err := store.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrValueNotFound
		}
		return "", fmt.Errorf("token_store.redis.value: %w", err)
	}
	if value == "" {
		return "", ErrValueNotFound
	}
	return value, nil
}

// SetValue stores a cached projection by key.
func (store *RedisStore) SetValue(ctx context.Context, key string, value string) error {
	if err := store.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("token_store.redis.set_value: %w", err)
	}
	return nil
}

// Clear deletes both tokens and the cached user with one DEL.
func (store *RedisStore) Clear(ctx context.Context) error {
	err := store.client.Del(ctx,
		redisKeyPrefix+KeyAccessToken,
		redisKeyPrefix+KeyRefreshToken,
		redisKeyPrefix+KeyUser,
	).Err()
	if err != nil {
		return fmt.Errorf("token_store.redis.clear: %w", err)
	}
	return nil
}

func stringValue(raw interface{}) string {
	if raw == nil {
		return ""
	}
	text, ok := raw.(string)
	if !ok {
		return ""
	}
	return text
}
