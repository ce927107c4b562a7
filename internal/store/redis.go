package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cachetune/cachetune/pkg/errors"
	"github.com/cachetune/cachetune/pkg/types"
)

// RedisConfig represents Redis store configuration
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// redisEnvelope wraps a cached value so the data type classification
// survives the round trip through Redis.
type redisEnvelope struct {
	Value    []byte         `msgpack:"v"`
	DataType types.DataType `msgpack:"t"`
	StoredAt time.Time      `msgpack:"s"`
}

// RedisStore implements types.Store backed by Redis. TTLs map directly
// onto Redis key expiry, so expired values disappear without a sweep.
type RedisStore struct {
	client *redis.Client
	prefix string
	query  time.Duration
}

var _ types.Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store and verifies connectivity
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "redis store config is required")
	}
	if config.Addr == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "redis addr is required")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewError(errors.ErrCodeConnectionFailed,
			fmt.Sprintf("failed to connect to redis at %s", config.Addr)).
			WithComponent("store").
			WithCause(err)
	}

	return &RedisStore{
		client: client,
		prefix: config.KeyPrefix,
		query:  timeout,
	}, nil
}

func (s *RedisStore) prefixKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *RedisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.query)
}

// Get retrieves a value. The second return is false when the key is
// absent or its Redis TTL has elapsed.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	data, err := s.client.Get(qctx, s.prefixKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewError(errors.ErrCodeStorageRead, "redis get failed").
			WithOperation("Get").
			WithContext("key", key).
			WithCause(err)
	}

	var env redisEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, false, errors.NewError(errors.ErrCodeMetadataCorrupt, "stored value is not a valid envelope").
			WithOperation("Get").
			WithContext("key", key).
			WithCause(err)
	}
	return env.Value, true, nil
}

// Set stores a value. A non-positive ttl stores the value without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	env := redisEnvelope{
		Value:    value,
		DataType: types.DataTypeObject,
		StoredAt: time.Now().UTC(),
	}
	data, err := msgpack.Marshal(&env)
	if err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "failed to encode value envelope").
			WithOperation("Set").
			WithContext("key", key).
			WithCause(err)
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(qctx, s.prefixKey(key), data, ttl).Err(); err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "redis set failed").
			WithOperation("Set").
			WithContext("key", key).
			WithCause(err)
	}
	return nil
}

// Refresh re-arms the Redis expiry for a key. A non-positive ttl makes
// the key persistent. Refreshing an absent key is not an error.
func (s *RedisStore) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	k := s.prefixKey(key)
	var err error
	if ttl > 0 {
		err = s.client.Expire(qctx, k, ttl).Err()
	} else {
		err = s.client.Persist(qctx, k).Err()
	}
	if err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "redis expire failed").
			WithOperation("Refresh").
			WithContext("key", key).
			WithCause(err)
	}
	return nil
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if err := s.client.Del(qctx, s.prefixKey(key)).Err(); err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "redis delete failed").
			WithOperation("Remove").
			WithContext("key", key).
			WithCause(err)
	}
	return nil
}

// Keys lists all keys under the store's prefix using SCAN
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	pattern := "*"
	trim := ""
	if s.prefix != "" {
		pattern = s.prefix + ":*"
		trim = s.prefix + ":"
	}

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if trim != "" {
			k = k[len(trim):]
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.NewError(errors.ErrCodeStorageList, "redis scan failed").
			WithOperation("Keys").
			WithCause(err)
	}
	return keys, nil
}

// Close releases the underlying Redis connection
func (s *RedisStore) Close(ctx context.Context) error {
	return s.client.Close()
}
