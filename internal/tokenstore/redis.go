package tokenstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores one installation's entries as fields of a single Redis hash.
// A multi-field HSET is atomic, which gives PutAll its all-or-nothing guarantee.
type RedisBackend struct {
	client redis.UniversalClient
	key    string
}

// NewRedisBackend returns a backend writing to the hash "authsession:<namespace>".
func NewRedisBackend(client redis.UniversalClient, namespace string) *RedisBackend {
	if namespace == "" {
		namespace = "default"
	}
	return &RedisBackend{client: client, key: "authsession:" + namespace}
}

// Get returns the field value for key.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := b.client.HGet(ctx, b.key, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// PutAll writes every entry with one HSET.
func (b *RedisBackend) PutAll(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(entries))
	for k, v := range entries {
		values[k] = v
	}
	return b.client.HSet(ctx, b.key, values).Err()
}

// Delete removes fields; missing fields are ignored.
func (b *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.client.HDel(ctx, b.key, keys...).Err()
}
