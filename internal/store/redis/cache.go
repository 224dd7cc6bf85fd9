// Package redis caches the latest session snapshot and the active
// settings so a restarted process (and observers reconnecting to it)
// can show the last known state immediately.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cryptobot/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	snapshotKey = "bot:snapshot:latest"
	settingsKey = "bot:settings"

	snapshotTTL = 24 * time.Hour
)

// CacheConfig configures the Redis cache connection.
type CacheConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Cache is the Redis-backed snapshot and settings cache.
type Cache struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// New connects to Redis and pings the server.
func New(cfg CacheConfig) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Cache{client: client}, nil
}

// SaveSnapshot stores the latest snapshot with a TTL. Stale state past
// the TTL is worse than no state.
func (c *Cache) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", snapshotKey, err)
	}
	return nil
}

// LoadSnapshot returns the cached snapshot, or nil when absent.
func (c *Cache) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", snapshotKey, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSettings stores the active settings without a TTL. Settings stay
// valid until the next run overwrites them.
func (c *Cache) SaveSettings(ctx context.Context, s model.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := c.client.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", settingsKey, err)
	}
	return nil
}

// LoadSettings returns the stored settings, or nil when absent.
func (c *Cache) LoadSettings(ctx context.Context) (*model.Settings, error) {
	data, err := c.client.Get(ctx, settingsKey).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", settingsKey, err)
	}
	var s model.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &s, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
