package reservation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bdougie/annotator/internal/config"
)

// RedisConfig configures the Redis reservation backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to every slot-set key
	Prefix string

	// Timeout for Redis operations
	Timeout time.Duration
}

// RedisConfigFrom converts the config file section.
func RedisConfigFrom(c config.Redis) RedisConfig {
	return RedisConfig{
		Address:  c.Address,
		Password: c.Password,
		Database: c.Database,
		Prefix:   c.Prefix,
		Timeout:  time.Duration(c.TimeoutSeconds) * time.Second,
	}
}

// reserveScript adds ARGV[1] to the set at KEYS[1] unless the set already
// holds ARGV[2] other members. Returns 1 when the slot is held.
var reserveScript = redis.NewScript(`
	if redis.call("sismember", KEYS[1], ARGV[1]) == 1 then
		return 1
	end
	if redis.call("scard", KEYS[1]) >= tonumber(ARGV[2]) then
		return 0
	end
	redis.call("sadd", KEYS[1], ARGV[1])
	return 1
`)

// Redis keeps slot sets in Redis so every server process shares them.
type Redis struct {
	cfg    RedisConfig
	limit  int
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig, limit int) (*Redis, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{cfg: cfg, limit: limit, client: client}, nil
}

func (r *Redis) key(block int) string {
	return r.cfg.Prefix + strconv.Itoa(block)
}

func (r *Redis) Reserve(ctx context.Context, block int, annotator string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	held, err := reserveScript.Run(ctx, r.client, []string{r.key(block)}, annotator, r.limit).Int()
	if err != nil {
		return false, fmt.Errorf("reserve block %d: %w", block, err)
	}
	return held == 1, nil
}

// Holders returns the size of the block's slot set.
func (r *Redis) Holders(ctx context.Context, block int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	n, err := r.client.SCard(ctx, r.key(block)).Result()
	if err != nil {
		return 0, fmt.Errorf("count holders of block %d: %w", block, err)
	}
	return int(n), nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
