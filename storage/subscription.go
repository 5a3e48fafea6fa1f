package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"choreshore-bridge/domain"
)

const resubscribeDelay = time.Second

// Subscribe listens for snapshot notices and hands the cached snapshot of
// the announced scope to broadcast. It reconnects when the subscription
// channel closes and returns when ctx ends.
func Subscribe(
	ctx context.Context,
	logger *log.Logger,
	rc *redis.Client,
	channel string,
	broadcast func(scope string, snap *domain.Snapshot),
) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var notice Notice
				if err := sonic.Unmarshal([]byte(msg.Payload), &notice); err != nil {
					logger.Errorf("unable to parse snapshot notice: %v", err)
					continue
				}
				snap, ok := load(ctx, rc, scopeKey(notice.Scope))
				if !ok {
					logger.WithField("scope", notice.Scope).Warn("snapshot notice without cached snapshot")
					continue
				}
				broadcast(notice.Scope, snap)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}
