package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/config"
	"github.com/go-redis/redis/v8"
)

var ErrLocked = errors.New("already locked")

type Client struct {
	rdb *redis.Client
}

func NewClient(cfg *config.Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &Client{rdb: rdb}
}

// Wrap adapts an existing go-redis client.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func settleKey(bookingID uint) string {
	return fmt.Sprintf("settle_lock:%d", bookingID)
}

// LockSettlement marks a booking as being settled for ttl. It returns
// ErrLocked when another settlement holds the lock.
func (c *Client) LockSettlement(ctx context.Context, bookingID uint, ttl time.Duration) error {
	ok, err := c.rdb.SetNX(ctx, settleKey(bookingID), "settling", ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to lock booking %d: %w", bookingID, err)
	}
	if !ok {
		return fmt.Errorf("booking %d: %w", bookingID, ErrLocked)
	}
	return nil
}

func (c *Client) UnlockSettlement(ctx context.Context, bookingID uint) error {
	return c.rdb.Del(ctx, settleKey(bookingID)).Err()
}

// GetJSON loads a cached value into dst. A miss returns false with no error.
func (c *Client) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
