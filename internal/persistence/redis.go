package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"delivery-cart/internal/logger"
)

// RedisStore keeps snapshots as plain string values in Redis
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *logger.Logger
}

// RedisOptions configures a RedisStore. A zero TTL keeps values forever.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisStore creates a store for the given address; it does not dial until first use
func NewRedisStore(opts RedisOptions, log *logger.Logger) *RedisStore {
	clientOpts, err := redis.ParseURL(opts.Addr)
	if err != nil {
		// not a redis:// URL, treat it as host:port
		clientOpts = &redis.Options{
			Addr:         opts.Addr,
			Password:     opts.Password,
			DB:           opts.DB,
			MinIdleConns: 1,
			MaxRetries:   3,
			DialTimeout:  10 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			PoolSize:     4,
		}
	}

	return &RedisStore{
		client:    redis.NewClient(clientOpts),
		keyPrefix: opts.KeyPrefix,
		ttl:       opts.TTL,
		logger:    log,
	}
}

// Initialize waits for Redis to answer a ping, backing off exponentially up to maxAttempts
func (r *RedisStore) Initialize(ctx context.Context, maxAttempts int) error {
	for i := 0; i < maxAttempts; i++ {
		if r.Ping(ctx) {
			r.logger.Info("redis_connected", "Connected to Redis", "startup", map[string]interface{}{
				"attempt": i + 1,
			})
			return nil
		}

		backoff := time.Duration(500*(1<<uint(i))) * time.Millisecond
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
		r.logger.Warn("redis_connection_failed",
			fmt.Sprintf("Failed to ping Redis, retrying in %v", backoff),
			"startup", map[string]interface{}{"attempt": i + 1})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.keyPrefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", key, err)
	}
	return nil
}

// Ping checks Redis is reachable
func (r *RedisStore) Ping(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// Close closes the client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
