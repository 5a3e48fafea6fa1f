package domain

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Source names where a snapshot was read from.
type Source string

const (
	SourceREST Source = "rest"
	SourceEdge Source = "edge"
)

// Resource names used in Snapshot.Degraded.
const (
	ResourceInstances = "chore_instances"
	ResourceChores    = "chores"
	ResourceProfiles  = "profiles"
	ResourceBundle    = "ha-analytics"
)

// Snapshot is the result of one poll cycle. It is never modified after it
// has been published; the next poll replaces it as a whole.
type Snapshot struct {
	HouseholdID     string            `json:"household_id"`
	UserID          string            `json:"user_id,omitempty"`
	Instances       []ChoreInstance   `json:"chore_instances"`
	Chores          []Chore           `json:"chores,omitempty"`
	Members         []Profile         `json:"members"`
	Analytics       Analytics         `json:"analytics"`
	MemberAnalytics []MemberAnalytics `json:"member_analytics,omitempty"`
	Degraded        []string          `json:"degraded,omitempty"`
	Source          Source            `json:"source"`
	LastUpdated     time.Time         `json:"last_updated"`
}

// Instance returns the instance with the given id.
func (s *Snapshot) Instance(id string) (ChoreInstance, bool) {
	if s == nil {
		return ChoreInstance{}, false
	}
	for _, inst := range s.Instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return ChoreInstance{}, false
}

// Bundle is the pre-joined payload of the analytics edge function.
type Bundle struct {
	Instances   []ChoreInstance `json:"chore_instances"`
	Members     []Profile       `json:"members"`
	Analytics   *Analytics      `json:"analytics,omitempty"`
	LastUpdated string          `json:"last_updated,omitempty"`
	Error       any             `json:"error,omitempty"`
}

// Build assembles a snapshot for scope from raw reads. Instances are
// normalized, filtered to the scope user and analysed against now.
func Build(scope Scope, instances []ChoreInstance, chores []Chore, members []Profile, now time.Time, loc *time.Location, logger log.FieldLogger) *Snapshot {
	joined := FilterByAssignee(Normalize(instances, chores, members), scope.UserID)
	if members == nil {
		members = []Profile{}
	}
	return &Snapshot{
		HouseholdID:     scope.HouseholdID,
		UserID:          scope.UserID,
		Instances:       joined,
		Chores:          chores,
		Members:         members,
		Analytics:       Calculate(joined, now, loc, logger),
		MemberAnalytics: CalculateMembers(joined, members, now, loc, logger),
		LastUpdated:     now,
	}
}
