package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

const (
	completePath = "/rest/v1/rpc/complete_shared_chore_instances"
	skipPath     = "/rest/v1/rpc/skip_shared_chore_instances"
)

var errMissingInstance = errors.New("missing instance id")
var errMissingActor = errors.New("missing acting user")

type completeRequest struct {
	InstanceID  string `json:"p_instance_id"`
	CompletedBy string `json:"p_completed_by"`
}

type skipRequest struct {
	InstanceID string  `json:"p_instance_id"`
	SkippedBy  string  `json:"p_skipped_by"`
	SkipReason *string `json:"p_skip_reason"`
}

// CompleteInstance marks the instance completed by the given user.
func (c *Client) CompleteInstance(ctx context.Context, instanceID, completedBy string) error {
	if instanceID == "" {
		return errMissingInstance
	}
	if completedBy == "" {
		return errMissingActor
	}
	fields := log.Fields{"instance_id": instanceID, "user_id": completedBy}
	c.logger.WithFields(fields).Debug("completing chore instance")

	body := completeRequest{InstanceID: instanceID, CompletedBy: completedBy}
	if err := c.rpc(ctx, completePath, body); err != nil {
		c.logger.WithFields(fields).Errorf("unable to complete chore instance: %v", err)
		return err
	}
	c.logger.WithFields(fields).Info("completed chore instance")
	return nil
}

// SkipInstance marks the instance skipped. reason may be nil.
func (c *Client) SkipInstance(ctx context.Context, instanceID, skippedBy string, reason *string) error {
	if instanceID == "" {
		return errMissingInstance
	}
	if skippedBy == "" {
		return errMissingActor
	}
	fields := log.Fields{"instance_id": instanceID, "user_id": skippedBy}
	if reason != nil {
		fields["reason"] = *reason
	}
	c.logger.WithFields(fields).Debug("skipping chore instance")

	body := skipRequest{InstanceID: instanceID, SkippedBy: skippedBy, SkipReason: reason}
	if err := c.rpc(ctx, skipPath, body); err != nil {
		c.logger.WithFields(fields).Errorf("unable to skip chore instance: %v", err)
		return err
	}
	c.logger.WithFields(fields).Info("skipped chore instance")
	return nil
}

// rpc posts to a mutation endpoint. Only HTTP 200 counts as success, and a
// 200 body carrying an error field is a rejection.
func (c *Client) rpc(ctx context.Context, path string, body any) error {
	var out any
	if err := c.exchange(ctx, 0, http.MethodPost, path, nil, body, &out, http.StatusOK); err != nil {
		return err
	}
	if obj, ok := out.(map[string]any); ok {
		if msg, ok := obj["error"]; ok && msg != nil {
			return fmt.Errorf("%w: %v", ErrBackendRejected, msg)
		}
	}
	return nil
}
