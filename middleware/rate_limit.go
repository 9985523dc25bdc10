package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"taskflow/config"
	"taskflow/utils"
)

// RateLimitConfig sizes one limiter.
type RateLimitConfig struct {
	// Name separates the counters of different limiters in shared storage
	Name string

	// Max is the number of requests allowed per client within Window
	Max int

	// Window is how long a counter lives before it resets
	Window time.Duration

	// Storage keeps the counters; nil means in-memory
	Storage fiber.Storage
}

// RateLimiter limits requests per client IP. Counters live in Storage when it
// is set, otherwise in process memory.
func RateLimiter(cfg RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			// Rate limit key combines limiter name and client IP
			return fmt.Sprintf("rl:%s:%s", cfg.Name, c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			// Log rate limit hit
			utils.LogEvent("rate_limit_hit", map[string]interface{}{
				"limiter":    cfg.Name,
				"endpoint":   c.Path(),
				"ip":         c.IP(),
				"user_agent": c.Get("User-Agent"),
			})
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%.0f", cfg.Window.Seconds()))
			return utils.ErrorResponse(c, fiber.StatusTooManyRequests, "Too many requests, please try again later", nil)
		},
		Storage: cfg.Storage,
	})
}

// NewRateLimitStorage returns Redis storage when enabled, nil otherwise.
func NewRateLimitStorage(cfg config.RedisConfig) fiber.Storage {
	if cfg.Enabled {
		return NewRedisStorage(cfg)
	}
	return nil
}

// RedisStorage implements fiber.Storage for Redis
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage connects lazily; call Ping to verify the server is reachable.
func NewRedisStorage(cfg config.RedisConfig) *RedisStorage {
	return &RedisStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Get returns nil for a missing key, as fiber.Storage expects.
func (r *RedisStorage) Get(key string) ([]byte, error) {
	val, err := r.client.Get(context.Background(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores val under key for exp. Empty keys and values are ignored.
func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if len(key) == 0 || len(val) == 0 {
		return nil
	}
	return r.client.Set(context.Background(), key, val, exp).Err()
}

func (r *RedisStorage) Delete(key string) error {
	return r.client.Del(context.Background(), key).Err()
}

// Reset flushes the whole Redis database selected by REDIS_DB.
func (r *RedisStorage) Reset() error {
	return r.client.FlushDB(context.Background()).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// Ping checks the connection at startup.
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
