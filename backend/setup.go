package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"choreshore-bridge/domain"
)

const setupTimeout = 10 * time.Second

// Setup failures. Each maps to a distinct operator facing message.
var (
	ErrCannotConnect    = errors.New("cannot connect")
	ErrInvalidAuth      = errors.New("invalid credentials")
	ErrInvalidHousehold = errors.New("household mismatch")
)

// SetupInfo describes a validated configuration.
type SetupInfo struct {
	Title   string
	Profile *domain.Profile
}

// ValidateSetup checks that the credentials work and that the user, when
// given, belongs to the household.
func (c *Client) ValidateSetup(ctx context.Context, householdID, userID string) (SetupInfo, error) {
	if householdID == "" {
		return SetupInfo{}, fmt.Errorf("%w: missing household id", ErrInvalidHousehold)
	}

	if userID == "" {
		q := url.Values{}
		q.Set("select", "id")
		q.Set("household_id", "eq."+householdID)
		q.Set("limit", "1")
		var members []domain.Profile
		if err := c.do(ctx, setupTimeout, http.MethodGet, profilesPath, q, nil, &members); err != nil {
			return SetupInfo{}, classifySetupError(err)
		}
		if len(members) == 0 {
			return SetupInfo{}, fmt.Errorf("%w: no members in household %s", ErrInvalidHousehold, householdID)
		}
		return SetupInfo{Title: "ChoreShore"}, nil
	}

	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+userID)
	var profiles []domain.Profile
	if err := c.do(ctx, setupTimeout, http.MethodGet, profilesPath, q, nil, &profiles); err != nil {
		return SetupInfo{}, classifySetupError(err)
	}
	if len(profiles) == 0 {
		return SetupInfo{}, fmt.Errorf("%w: unknown user %s", ErrInvalidAuth, userID)
	}
	profile := profiles[0]
	if profile.HouseholdID != householdID {
		return SetupInfo{}, fmt.Errorf("%w: user %s belongs to household %q", ErrInvalidHousehold, userID, profile.HouseholdID)
	}
	name := profile.FirstName
	if name == "" {
		name = "User"
	}
	return SetupInfo{Title: "ChoreShore - " + name, Profile: &profile}, nil
}

// classifySetupError maps HTTP rejections to ErrInvalidAuth and everything
// else to ErrCannotConnect.
func classifySetupError(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return fmt.Errorf("%w: %v", ErrInvalidAuth, err)
	}
	return fmt.Errorf("%w: %v", ErrCannotConnect, err)
}
