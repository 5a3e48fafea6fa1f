package domain

import (
	"encoding/json"
	"strings"
)

// Status is the stored state of a chore instance. Overdue is never stored;
// it is derived from a pending status and the due date.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusOverdue   Status = "overdue"
)

// ChoreInstance is one scheduled occurrence of a chore.
type ChoreInstance struct {
	ID          string  `json:"id"`
	ChoreID     string  `json:"chore_id,omitempty"`
	Status      Status  `json:"status"`
	DueDate     string  `json:"due_date,omitempty"`
	DueTime     *string `json:"due_time,omitempty"`
	AssignedTo  string  `json:"assigned_to,omitempty"`
	CompletedBy *string `json:"completed_by,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	SkipReason  *string `json:"skip_reason,omitempty"`

	Chore         *Chore   `json:"chores,omitempty"`
	AssignedUser  *Profile `json:"assigned_user,omitempty"`
	CompletedUser *Profile `json:"completed_user,omitempty"`
}

// ChoreName returns the attached chore name or a placeholder.
func (ci ChoreInstance) ChoreName() string {
	if ci.Chore != nil && ci.Chore.Name != "" {
		return ci.Chore.Name
	}
	return "Unknown Task"
}

// Chore is the reusable definition chore instances are generated from.
type Chore struct {
	ID                string          `json:"id"`
	Name              string          `json:"name,omitempty"`
	Category          string          `json:"category,omitempty"`
	Priority          string          `json:"priority,omitempty"`
	Description       string          `json:"description,omitempty"`
	Location          string          `json:"location,omitempty"`
	EstimatedDuration *int            `json:"estimated_duration,omitempty"`
	Instructions      string          `json:"instructions,omitempty"`
	RecurrenceType    string          `json:"recurrence_type,omitempty"`
	RecurrenceConfig  json.RawMessage `json:"recurrence_config,omitempty"`
	HouseholdID       string          `json:"household_id,omitempty"`
}

// Profile is a household member.
type Profile struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Role        string `json:"role,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	HouseholdID string `json:"household_id,omitempty"`
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Scope selects the tasks a coordinator tracks. UserID is optional; when set
// only instances assigned to that user are kept.
type Scope struct {
	HouseholdID string
	UserID      string
}

// Key identifies the scope in caches and logs.
func (s Scope) Key() string {
	if s.UserID == "" {
		return s.HouseholdID
	}
	return s.HouseholdID + ":" + s.UserID
}

// DisplayName resolves the user of the scope against the member list.
func DisplayName(members []Profile, userID string) string {
	for _, m := range members {
		if m.ID == userID {
			if name := m.FullName(); name != "" {
				return name
			}
			return "User"
		}
	}
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return "User " + short
}
