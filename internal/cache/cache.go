/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for frequently accessed data.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_traffic/internal/telemetry"
)

// Default TTL values for different cache types
const (
	DefaultStationListTTL  = 5 * time.Minute
	DefaultContentListTTL  = 5 * time.Minute
	DefaultCampaignListTTL = 10 * time.Minute
	DefaultClockTTL        = 1 * time.Hour
	DefaultRampTTL         = 6 * time.Hour
)

// Key prefixes for Redis cache
const (
	KeyStationList  = "muninn:cache:stations"
	KeyContentList  = "muninn:cache:content:"   // + station_id + ":" + type
	KeyCampaignList = "muninn:cache:campaigns:" // + station_id
	KeyClockList    = "muninn:cache:clocks:"    // + station_id
	KeyRamp         = "muninn:cache:ramp:"      // + station_id + ":" + file_ref
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	StationListTTL  time.Duration
	ContentListTTL  time.Duration
	CampaignListTTL time.Duration
	ClockTTL        time.Duration
	RampTTL         time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:       "localhost:6379",
		StationListTTL:  DefaultStationListTTL,
		ContentListTTL:  DefaultContentListTTL,
		CampaignListTTL: DefaultCampaignListTTL,
		ClockTTL:        DefaultClockTTL,
		RampTTL:         DefaultRampTTL,
		DisableOnError:  true,
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

// New creates a new cache instance.
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

	// Test connection
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
		telemetry.CacheMisses.Inc()
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		telemetry.CacheMisses.Inc()
		return false, nil
	}

	telemetry.CacheHits.Inc()
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

	// Use SCAN to find keys (safer than KEYS for production)
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

// Station caching methods

// CachedStation represents a cached station record.
type CachedStation struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Callsign string `json:"callsign"`
	Timezone string `json:"timezone"`
}

// GetStationList retrieves the cached list of stations.
func (c *Cache) GetStationList(ctx context.Context) ([]CachedStation, bool) {
	var stations []CachedStation
	found, err := c.get(ctx, KeyStationList, &stations)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Int("count", len(stations)).Msg("station list cache hit")
	return stations, true
}

// SetStationList caches the list of stations.
func (c *Cache) SetStationList(ctx context.Context, stations []CachedStation) error {
	c.logger.Debug().Int("count", len(stations)).Msg("caching station list")
	return c.set(ctx, KeyStationList, stations, c.config.StationListTTL)
}

// InvalidateStationList removes the station list from cache.
func (c *Cache) InvalidateStationList(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating station list cache")
	return c.delete(ctx, KeyStationList)
}

// Content caching methods

// CachedContentItem represents a cached content catalog entry.
type CachedContentItem struct {
	ID              string     `json:"id"`
	StationID       string     `json:"station_id"`
	Type            string     `json:"type"`
	Title           string     `json:"title"`
	Artist          string     `json:"artist"`
	DurationSec     int        `json:"duration_sec"`
	FileRef         string     `json:"file_ref"`
	AutomationID    *int64     `json:"automation_id,omitempty"`
	Daypart         string     `json:"daypart,omitempty"`
	BPM             float64    `json:"bpm,omitempty"`
	RampInSec       float64    `json:"ramp_in_sec,omitempty"`
	NewRelease      bool       `json:"new_release,omitempty"`
	AllowBackToBack bool       `json:"allow_back_to_back,omitempty"`
	CampaignID      *string    `json:"campaign_id,omitempty"`
	LastPlayedAt    *time.Time `json:"last_played_at,omitempty"`
}

func contentListKey(stationID, contentType string) string {
	return KeyContentList + stationID + ":" + contentType
}

// GetContentList retrieves the cached active content list for a station and type.
func (c *Cache) GetContentList(ctx context.Context, stationID, contentType string) ([]CachedContentItem, bool) {
	var items []CachedContentItem
	found, err := c.get(ctx, contentListKey(stationID, contentType), &items)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("station_id", stationID).Str("type", contentType).Int("count", len(items)).Msg("content list cache hit")
	return items, true
}

// SetContentList caches the active content list for a station and type.
func (c *Cache) SetContentList(ctx context.Context, stationID, contentType string, items []CachedContentItem) error {
	c.logger.Debug().Str("station_id", stationID).Str("type", contentType).Int("count", len(items)).Msg("caching content list")
	return c.set(ctx, contentListKey(stationID, contentType), items, c.config.ContentListTTL)
}

// InvalidateContent removes all cached content lists for a station.
func (c *Cache) InvalidateContent(ctx context.Context, stationID string) error {
	c.logger.Debug().Str("station_id", stationID).Msg("invalidating content caches")
	return c.deletePattern(ctx, KeyContentList+stationID+":*")
}

// Campaign caching methods

// CachedCampaign represents a cached advertisement campaign. Flight dates
// are day-granular YYYY-MM-DD strings.
type CachedCampaign struct {
	ID              string `json:"id"`
	StationID       string `json:"station_id"`
	Name            string `json:"name"`
	Advertiser      string `json:"advertiser"`
	Priority        int    `json:"priority"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	MaxPlaysPerHour int    `json:"max_plays_per_hour"`
}

// GetCampaignList retrieves the cached active campaigns for a station.
func (c *Cache) GetCampaignList(ctx context.Context, stationID string) ([]CachedCampaign, bool) {
	var campaigns []CachedCampaign
	found, err := c.get(ctx, KeyCampaignList+stationID, &campaigns)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("station_id", stationID).Int("count", len(campaigns)).Msg("campaign list cache hit")
	return campaigns, true
}

// SetCampaignList caches the active campaigns for a station.
func (c *Cache) SetCampaignList(ctx context.Context, stationID string, campaigns []CachedCampaign) error {
	c.logger.Debug().Str("station_id", stationID).Int("count", len(campaigns)).Msg("caching campaign list")
	return c.set(ctx, KeyCampaignList+stationID, campaigns, c.config.CampaignListTTL)
}

// InvalidateCampaigns removes the campaign cache for a station.
func (c *Cache) InvalidateCampaigns(ctx context.Context, stationID string) error {
	c.logger.Debug().Str("station_id", stationID).Msg("invalidating campaign cache")
	return c.delete(ctx, KeyCampaignList+stationID)
}

// Clock caching methods

// CachedClockSlot represents one slot of a cached clock template.
type CachedClockSlot struct {
	Position           int    `json:"position"`
	Type               string `json:"type"`
	Count              int    `json:"count"`
	FallbackType       string `json:"fallback_type,omitempty"`
	HardStart          bool   `json:"hard_start,omitempty"`
	ScheduledOffsetSec *int   `json:"scheduled_offset_sec,omitempty"`
	FixedDurationSec   *int   `json:"fixed_duration_sec,omitempty"`
	Anchor             string `json:"anchor,omitempty"`
}

// CachedClockTemplate represents a cached hourly clock template.
type CachedClockTemplate struct {
	ID        string            `json:"id"`
	StationID string            `json:"station_id"`
	Name      string            `json:"name"`
	StartHour int               `json:"start_hour"`
	EndHour   int               `json:"end_hour"`
	Slots     []CachedClockSlot `json:"slots"`
}

// GetClockTemplates retrieves cached clock templates for a station.
func (c *Cache) GetClockTemplates(ctx context.Context, stationID string) ([]CachedClockTemplate, bool) {
	var templates []CachedClockTemplate
	found, err := c.get(ctx, KeyClockList+stationID, &templates)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("station_id", stationID).Int("count", len(templates)).Msg("clock template cache hit")
	return templates, true
}

// SetClockTemplates caches clock templates for a station.
func (c *Cache) SetClockTemplates(ctx context.Context, stationID string, templates []CachedClockTemplate) error {
	c.logger.Debug().Str("station_id", stationID).Int("count", len(templates)).Msg("caching clock templates")
	return c.set(ctx, KeyClockList+stationID, templates, c.config.ClockTTL)
}

// InvalidateClocks removes the clock template cache for a station.
func (c *Cache) InvalidateClocks(ctx context.Context, stationID string) error {
	c.logger.Debug().Str("station_id", stationID).Msg("invalidating clock template cache")
	return c.delete(ctx, KeyClockList+stationID)
}

// Ramp estimate caching methods

// CachedRamp holds the talk-over estimates for one audio file.
type CachedRamp struct {
	RampInSec  float64 `json:"ramp_in_sec"`
	RampOutSec float64 `json:"ramp_out_sec"`
}

func rampKey(stationID, fileRef string) string {
	return KeyRamp + stationID + ":" + fileRef
}

// GetRamp retrieves a cached ramp estimate for a file.
func (c *Cache) GetRamp(ctx context.Context, stationID, fileRef string) (CachedRamp, bool) {
	var ramp CachedRamp
	found, err := c.get(ctx, rampKey(stationID, fileRef), &ramp)
	if err != nil || !found {
		return CachedRamp{}, false
	}
	return ramp, true
}

// SetRamp caches a ramp estimate for a file.
func (c *Cache) SetRamp(ctx context.Context, stationID, fileRef string, ramp CachedRamp) error {
	return c.set(ctx, rampKey(stationID, fileRef), ramp, c.config.RampTTL)
}

// InvalidateRamps removes all cached ramp estimates for a station.
func (c *Cache) InvalidateRamps(ctx context.Context, stationID string) error {
	c.logger.Debug().Str("station_id", stationID).Msg("invalidating ramp caches")
	return c.deletePattern(ctx, KeyRamp+stationID+":*")
}

// Bulk invalidation methods

// InvalidateStation removes all caches related to a station.
func (c *Cache) InvalidateStation(ctx context.Context, stationID string) error {
	c.logger.Debug().Str("station_id", stationID).Msg("invalidating all station caches")

	if err := c.InvalidateStationList(ctx); err != nil {
		return err
	}

	if err := c.InvalidateContent(ctx, stationID); err != nil {
		return err
	}

	if err := c.InvalidateCampaigns(ctx, stationID); err != nil {
		return err
	}

	return c.InvalidateClocks(ctx, stationID)
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, "muninn:cache:*")
}
