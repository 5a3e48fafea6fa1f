package api

import (
	"context"

	"choreshore-bridge/domain"
)

// Service is the coordinator surface the handlers use.
type Service interface {
	Snapshot() *domain.Snapshot
	Refresh(ctx context.Context) (*domain.Snapshot, error)
	CompleteTask(ctx context.Context, taskID, actingUser string) error
	SkipTask(ctx context.Context, taskID, actingUser string, reason *string) error
	// ActingUser returns the user an action is attributed to, given the
	// requested one.
	ActingUser(requested string) string
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate actions.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the action fails.
	Remove(ctx context.Context, userID, key string) error
}
