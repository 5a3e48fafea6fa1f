// Package storage keeps the latest snapshot in Redis and announces new
// snapshots on a pub/sub channel.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"choreshore-bridge/domain"
)

const (
	DefaultTTL     = time.Hour
	DefaultChannel = "choreshore:snapshots"

	cacheVersion = 1
)

type cachedSnapshot struct {
	Version  int              `json:"version"`
	CachedAt time.Time        `json:"cachedAt"`
	Snapshot *domain.Snapshot `json:"snapshot"`
}

// Notice is published on the snapshot channel after every store.
type Notice struct {
	Scope       string    `json:"scope"`
	LastUpdated time.Time `json:"lastUpdated"`
	Degraded    []string  `json:"degraded,omitempty"`
}

// SnapshotCache stores the snapshot of one scope. It is a coordinator
// listener; a nil redis client turns every method into a no-op.
type SnapshotCache struct {
	redis   *redis.Client
	scope   domain.Scope
	ttl     time.Duration
	channel string
	logger  *log.Logger
	now     func() time.Time
}

// NewSnapshotCache creates a cache for scope. A zero ttl or empty channel
// selects the defaults.
func NewSnapshotCache(client *redis.Client, scope domain.Scope, ttl time.Duration, channel string, logger *log.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &SnapshotCache{
		redis:   client,
		scope:   scope,
		ttl:     ttl,
		channel: channel,
		logger:  logger,
		now:     time.Now,
	}
}

// Channel is the pub/sub channel notices are published on.
func (c *SnapshotCache) Channel() string {
	return c.channel
}

// SnapshotUpdated stores snap and publishes a Notice.
func (c *SnapshotCache) SnapshotUpdated(ctx context.Context, snap *domain.Snapshot) {
	if c == nil || c.redis == nil || snap == nil {
		return
	}
	logger := c.logger.WithField("scope", c.scope.Key())
	data, err := sonic.Marshal(cachedSnapshot{
		Version:  cacheVersion,
		CachedAt: c.now().UTC(),
		Snapshot: snap,
	})
	if err != nil {
		logger.WithError(err).Error("failed to marshal snapshot cache payload")
		return
	}
	if err := c.redis.Set(ctx, snapshotKey(c.scope), data, c.ttl).Err(); err != nil {
		logger.WithError(err).Error("failed to store snapshot cache entry")
		return
	}
	notice, err := sonic.Marshal(Notice{
		Scope:       c.scope.Key(),
		LastUpdated: snap.LastUpdated,
		Degraded:    snap.Degraded,
	})
	if err != nil {
		logger.WithError(err).Error("failed to marshal snapshot notice")
		return
	}
	if err := c.redis.Publish(ctx, c.channel, notice).Err(); err != nil {
		logger.WithError(err).Error("failed to publish snapshot notice")
	}
}

// SnapshotInvalidated drops the cached snapshot.
func (c *SnapshotCache) SnapshotInvalidated(ctx context.Context) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, snapshotKey(c.scope)).Err(); err != nil {
		c.logger.WithError(err).WithField("scope", c.scope.Key()).Error("failed to evict snapshot cache entry")
	}
}

// Load returns the cached snapshot. Unreadable entries are evicted.
func (c *SnapshotCache) Load(ctx context.Context) (*domain.Snapshot, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}
	return load(ctx, c.redis, snapshotKey(c.scope))
}

func load(ctx context.Context, rc *redis.Client, key string) (*domain.Snapshot, bool) {
	data, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			_ = rc.Del(ctx, key).Err()
		}
		return nil, false
	}
	var payload cachedSnapshot
	if err := sonic.Unmarshal(data, &payload); err != nil || payload.Version != cacheVersion || payload.Snapshot == nil {
		_ = rc.Del(ctx, key).Err()
		return nil, false
	}
	return payload.Snapshot, true
}

func snapshotKey(scope domain.Scope) string {
	return scopeKey(scope.Key())
}

func scopeKey(scope string) string {
	return "snapshot:" + scope
}
