package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTimeout bounds each redis round trip.
const DefaultRedisTimeout = 2 * time.Second

// RedisStore keeps credentials as prefixed redis string keys.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	timeout   time.Duration
	available bool
	logger    Logger
}

// NewRedisStore wraps client and checks it with PING. A failed PING yields a
// store whose Available reports false.
func NewRedisStore(client *redis.Client, prefix string, timeout time.Duration, logger Logger) *RedisStore {
	if logger == nil {
		logger = nopLogger{}
	}
	if timeout <= 0 {
		timeout = DefaultRedisTimeout
	}
	s := &RedisStore{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed: %v", err)
		return s
	}
	s.available = true
	return s
}

// Available reports whether the availability check succeeded.
func (s *RedisStore) Available() bool { return s.available }

// Get returns the value for key.
func (s *RedisStore) Get(key string) (string, bool) {
	if !s.available {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Error("redis get %s: %v", key, err)
		}
		return "", false
	}
	return v, true
}

// Set stores value under key without expiry.
func (s *RedisStore) Set(key, value string) error {
	if !s.available {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *RedisStore) Remove(key string) error {
	if !s.available {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}
