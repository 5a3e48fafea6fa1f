package coordinator

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

const (
	actionComplete = "complete"
	actionSkip     = "skip"
)

// CompleteTask marks the instance completed by the acting user and returns
// once a poll started after the mutation has been applied. The configured
// scope user always acts; actingUser is used only for household scopes.
func (c *Coordinator) CompleteTask(ctx context.Context, taskID, actingUser string) error {
	return c.mutate(ctx, actionComplete, taskID, actingUser, func(ctx context.Context, actor string) error {
		return c.source.CompleteInstance(ctx, taskID, actor)
	})
}

// SkipTask marks the instance skipped. A nil reason is sent as null.
func (c *Coordinator) SkipTask(ctx context.Context, taskID, actingUser string, reason *string) error {
	return c.mutate(ctx, actionSkip, taskID, actingUser, func(ctx context.Context, actor string) error {
		return c.source.SkipInstance(ctx, taskID, actor, reason)
	})
}

// ActingUser resolves the user an action is attributed to.
func (c *Coordinator) ActingUser(requested string) string {
	if c.cfg.Scope.UserID != "" {
		return c.cfg.Scope.UserID
	}
	return requested
}

func (c *Coordinator) mutate(ctx context.Context, action, taskID, actingUser string, call func(context.Context, string) error) error {
	actor := c.ActingUser(actingUser)
	if actor == "" {
		return ErrNoActor
	}
	logger := c.logger.WithFields(log.Fields{
		"action":      action,
		"instance_id": taskID,
		"user_id":     actor,
	})

	actx, cancel := context.WithTimeout(ctx, c.cfg.ActionTimeout)
	actx, span := startActionSpan(actx, action, taskID)
	err := call(actx, actor)
	finishAction(span, action, err)
	cancel()
	if err != nil {
		return fmt.Errorf("%s task %s: %w", action, taskID, err)
	}

	for _, l := range c.listeners {
		if inv, ok := l.(Invalidator); ok {
			inv.SnapshotInvalidated(ctx)
		}
	}
	if _, err := c.forceRefresh(ctx); err != nil {
		// The mutation is applied; the next scheduled poll will pick it up.
		logger.Warnf("refresh after %s failed: %v", action, err)
		return nil
	}
	logger.Info("task action applied")
	return nil
}
