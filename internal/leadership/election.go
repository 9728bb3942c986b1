/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_traffic/internal/telemetry"
)

const (
	defaultElectionKey     = "muninn:leader:autogen"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
)

// Config controls the Redis lease election.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey is the Redis key the lease lives under. Instances
	// sharing a key compete for the same role.
	ElectionKey string

	// LeaseDuration bounds how long a crashed leader blocks takeover.
	LeaseDuration time.Duration

	// RenewalInterval is how often the lease is acquired or renewed.
	// Must be comfortably below LeaseDuration.
	RenewalInterval time.Duration

	// InstanceID identifies this process in the lease value and in
	// metrics. Generated when empty.
	InstanceID string
}

// DefaultConfig returns the election defaults for a single-role
// deployment.
func DefaultConfig() Config {
	return Config{
		RedisAddr:       "localhost:6379",
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		InstanceID:      uuid.NewString(),
	}
}

// Election holds a Redis lease so that exactly one instance runs
// singleton background work. Followers keep campaigning and take over
// when the lease expires.
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	cfg    Config

	mu     sync.RWMutex
	leader bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New connects to Redis and prepares an election. The campaign does
// not start until Start is called.
func New(cfg Config, logger zerolog.Logger) (*Election, error) {
	if cfg.ElectionKey == "" {
		cfg.ElectionKey = defaultElectionKey
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.RenewalInterval <= 0 {
		cfg.RenewalInterval = defaultRenewalInterval
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis for leader election: %w", err)
	}

	logger.Info().
		Str("redis_addr", cfg.RedisAddr).
		Str("instance_id", cfg.InstanceID).
		Msg("leader election ready")

	return &Election{
		client: client,
		logger: logger.With().Str("component", "leadership").Logger(),
		cfg:    cfg,
		done:   make(chan struct{}),
	}, nil
}

// Start launches the campaign loop.
func (e *Election) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.logger.Info().
		Str("instance_id", e.cfg.InstanceID).
		Dur("lease", e.cfg.LeaseDuration).
		Msg("starting leader campaign")

	go e.campaign(ctx)
}

// Stop ends the campaign, releases the lease if held, and closes the
// Redis connection.
func (e *Election) Stop() error {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}

	if e.IsLeader() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.release(ctx); err != nil {
			e.logger.Error().Err(err).Msg("release leadership lease")
		}
	}
	return e.client.Close()
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leader
}

// CurrentLeader returns the instance ID holding the lease, or empty
// when nobody does.
func (e *Election) CurrentLeader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.cfg.ElectionKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read leader lease: %w", err)
	}
	return id, nil
}

func (e *Election) campaign(ctx context.Context) {
	defer close(e.done)

	// Campaign immediately so a fresh start does not wait a full
	// interval behind an expired lease.
	e.tick(ctx)

	ticker := time.NewTicker(e.cfg.RenewalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Election) tick(ctx context.Context) {
	held, err := e.tryAcquire(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("leadership campaign failed")
		e.setLeader(false)
		return
	}
	e.setLeader(held)
}

// tryAcquire takes the lease if free, or renews it if this instance
// already owns it.
func (e *Election) tryAcquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.cfg.ElectionKey, e.cfg.InstanceID, e.cfg.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := e.client.Get(ctx, e.cfg.ElectionKey).Result()
	if err == redis.Nil {
		// Lease expired between SETNX and GET; next tick retries.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lease holder: %w", err)
	}
	if holder != e.cfg.InstanceID {
		return false, nil
	}

	if err := e.client.Expire(ctx, e.cfg.ElectionKey, e.cfg.LeaseDuration).Err(); err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return true, nil
}

// release deletes the lease only if this instance still owns it.
func (e *Election) release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	if err := e.client.Eval(ctx, script, []string{e.cfg.ElectionKey}, e.cfg.InstanceID).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	e.logger.Info().Msg("released leadership lease")
	return nil
}

func (e *Election) setLeader(leader bool) {
	e.mu.Lock()
	changed := e.leader != leader
	e.leader = leader
	e.mu.Unlock()
	if !changed {
		return
	}

	if leader {
		e.logger.Info().Str("instance_id", e.cfg.InstanceID).Msg("acquired leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(e.cfg.InstanceID).Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues(e.cfg.InstanceID, "acquired").Inc()
	} else {
		e.logger.Warn().Str("instance_id", e.cfg.InstanceID).Msg("lost leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(e.cfg.InstanceID).Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues(e.cfg.InstanceID, "lost").Inc()
	}
}
