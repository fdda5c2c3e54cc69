/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for frequently accessed
// playlist and watch-state records. All operations degrade to no-ops when
// Redis is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/skald/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types.
const (
	DefaultPlaylistTTL  = 1 * time.Hour
	DefaultWatchDataTTL = 5 * time.Minute
	DefaultMembersTTL   = 10 * time.Minute
)

// Key prefixes for Redis cache.
const (
	KeyPlaylist  = "skald:cache:playlist:"  // + playlist_id
	KeyWatchData = "skald:cache:watch:"     // + user_id:item_id
	KeyMembers   = "skald:cache:members:"   // + playlist_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	PlaylistTTL  time.Duration
	WatchDataTTL time.Duration
	MembersTTL   time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		PlaylistTTL:    DefaultPlaylistTTL,
		WatchDataTTL:   DefaultWatchDataTTL,
		MembersTTL:     DefaultMembersTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. When Redis cannot be reached the cache
// starts disabled and every operation is a no-op.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// SCAN rather than KEYS, which blocks the server on large keyspaces.
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Playlist caching methods

// GetPlaylist retrieves a cached smart playlist by ID.
func (c *Cache) GetPlaylist(ctx context.Context, playlistID string) (*models.SmartPlaylist, bool) {
	var list models.SmartPlaylist
	found, err := c.get(ctx, KeyPlaylist+playlistID, &list)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("playlist_id", playlistID).Msg("playlist cache hit")
	return &list, true
}

// SetPlaylist caches a smart playlist.
func (c *Cache) SetPlaylist(ctx context.Context, list *models.SmartPlaylist) error {
	c.logger.Debug().Str("playlist_id", list.ID).Msg("caching playlist")
	return c.set(ctx, KeyPlaylist+list.ID, list, c.config.PlaylistTTL)
}

// InvalidatePlaylist removes a playlist and its member list from cache.
func (c *Cache) InvalidatePlaylist(ctx context.Context, playlistID string) error {
	c.logger.Debug().Str("playlist_id", playlistID).Msg("invalidating playlist cache")
	if err := c.delete(ctx, KeyPlaylist+playlistID); err != nil {
		return err
	}
	return c.delete(ctx, KeyMembers+playlistID)
}

// Member list caching methods

// GetMembers retrieves the cached member list for a playlist.
func (c *Cache) GetMembers(ctx context.Context, playlistID string) ([]string, bool) {
	var members []string
	found, err := c.get(ctx, KeyMembers+playlistID, &members)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("playlist_id", playlistID).Int("count", len(members)).Msg("members cache hit")
	return members, true
}

// SetMembers caches the member list for a playlist.
func (c *Cache) SetMembers(ctx context.Context, playlistID string, members []string) error {
	c.logger.Debug().Str("playlist_id", playlistID).Int("count", len(members)).Msg("caching members")
	return c.set(ctx, KeyMembers+playlistID, members, c.config.MembersTTL)
}

// Watch data caching methods

// GetWatchData retrieves cached per-user watch state for an item.
func (c *Cache) GetWatchData(ctx context.Context, userID, itemID string) (*models.UserItemData, bool) {
	var data models.UserItemData
	found, err := c.get(ctx, KeyWatchData+userID+":"+itemID, &data)
	if err != nil || !found {
		return nil, false
	}
	return &data, true
}

// SetWatchData caches per-user watch state for an item.
func (c *Cache) SetWatchData(ctx context.Context, data *models.UserItemData) error {
	return c.set(ctx, KeyWatchData+data.UserID+":"+data.ItemID, data, c.config.WatchDataTTL)
}

// InvalidateWatchData removes all cached watch state for a user.
func (c *Cache) InvalidateWatchData(ctx context.Context, userID string) error {
	c.logger.Debug().Str("user_id", userID).Msg("invalidating watch data cache")
	return c.deletePattern(ctx, KeyWatchData+userID+":*")
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, "skald:cache:*")
}
