package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"

	"choreshore-bridge/domain"
)

const (
	instancesPath = "/rest/v1/chore_instances"
	choresPath    = "/rest/v1/chores"
	profilesPath  = "/rest/v1/profiles"
	bundlePath    = "/functions/v1/ha-analytics"
)

// ChoreInstances lists the instances of the scope household, restricted to
// the scope user when one is set. On failure it logs and returns an empty
// collection together with the error.
func (c *Client) ChoreInstances(ctx context.Context, scope domain.Scope) ([]domain.ChoreInstance, error) {
	q := url.Values{}
	q.Set("select", "*,chores!inner(household_id)")
	q.Set("chores.household_id", "eq."+scope.HouseholdID)
	if scope.UserID != "" {
		q.Set("assigned_to", "eq."+scope.UserID)
	}
	q.Set("order", "due_date.asc")

	out := []domain.ChoreInstance{}
	if err := c.do(ctx, 0, http.MethodGet, instancesPath, q, nil, &out); err != nil {
		c.logFailure(domain.ResourceInstances, scope.HouseholdID, err)
		return []domain.ChoreInstance{}, err
	}
	return out, nil
}

// Chores lists the chore definitions of a household.
func (c *Client) Chores(ctx context.Context, householdID string) ([]domain.Chore, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("household_id", "eq."+householdID)

	out := []domain.Chore{}
	if err := c.do(ctx, 0, http.MethodGet, choresPath, q, nil, &out); err != nil {
		c.logFailure(domain.ResourceChores, householdID, err)
		return []domain.Chore{}, err
	}
	return out, nil
}

// Profiles lists the members of a household.
func (c *Client) Profiles(ctx context.Context, householdID string) ([]domain.Profile, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("household_id", "eq."+householdID)

	out := []domain.Profile{}
	if err := c.do(ctx, 0, http.MethodGet, profilesPath, q, nil, &out); err != nil {
		c.logFailure(domain.ResourceProfiles, householdID, err)
		return []domain.Profile{}, err
	}
	return out, nil
}

// Bundle calls the analytics edge function, which returns pre-joined
// instances and members in one response.
func (c *Client) Bundle(ctx context.Context, householdID string) (*domain.Bundle, error) {
	body := map[string]string{"household_id": householdID}

	var out domain.Bundle
	if err := c.do(ctx, 0, http.MethodPost, bundlePath, nil, body, &out); err != nil {
		c.logFailure(domain.ResourceBundle, householdID, err)
		return &domain.Bundle{}, err
	}
	if out.Error != nil {
		err := fmt.Errorf("%w: %v", ErrBackendRejected, out.Error)
		c.logFailure(domain.ResourceBundle, householdID, err)
		return &domain.Bundle{}, err
	}
	if out.Instances == nil {
		out.Instances = []domain.ChoreInstance{}
	}
	if out.Members == nil {
		out.Members = []domain.Profile{}
	}
	return &out, nil
}

func (c *Client) logFailure(resource, householdID string, err error) {
	c.logger.WithFields(log.Fields{
		"resource":     resource,
		"household_id": householdID,
	}).Errorf("unable to fetch resource: %v", err)
}
