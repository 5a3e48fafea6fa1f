package domain

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// Analytics is derived from the instance list of one snapshot.
type Analytics struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	OverdueTasks   int     `json:"overdue_tasks"`
	PendingTasks   int     `json:"pending_tasks"`
	SkippedTasks   int     `json:"skipped_tasks"`
	CompletionRate float64 `json:"completion_rate"`
}

// MemberAnalytics is Analytics restricted to the instances of one member.
type MemberAnalytics struct {
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
	MemberRole string `json:"member_role,omitempty"`
	Analytics
}

// IsOverdue reports whether inst is pending with a due date strictly before
// today. Unparseable due dates are never overdue.
func IsOverdue(inst ChoreInstance, today Date, loc *time.Location) (bool, error) {
	if inst.Status != StatusPending || inst.DueDate == "" {
		return false, nil
	}
	due, err := ParseDueDate(inst.DueDate, loc)
	if err != nil {
		return false, err
	}
	return due.Before(today), nil
}

// Calculate counts instances by status and derives the completion rate.
// logger may be nil.
func Calculate(instances []ChoreInstance, now time.Time, loc *time.Location, logger log.FieldLogger) Analytics {
	var a Analytics
	today := DateOf(now, loc)
	for _, inst := range instances {
		a.TotalTasks++
		switch inst.Status {
		case StatusCompleted:
			a.CompletedTasks++
		case StatusSkipped:
			a.SkippedTasks++
		case StatusPending:
			a.PendingTasks++
			overdue, err := IsOverdue(inst, today, loc)
			if err != nil {
				if logger != nil {
					logger.WithFields(log.Fields{
						"instance_id": inst.ID,
						"due_date":    inst.DueDate,
					}).Warnf("skipping malformed due date: %v", err)
				}
				continue
			}
			if overdue {
				a.OverdueTasks++
			}
		}
	}
	a.CompletionRate = CompletionRate(a.CompletedTasks, a.TotalTasks)
	return a
}

// CompletionRate is completed/total as a percentage rounded to one decimal.
func CompletionRate(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*1000) / 10
}

// CalculateMembers derives per member analytics for every profile.
func CalculateMembers(instances []ChoreInstance, members []Profile, now time.Time, loc *time.Location, logger log.FieldLogger) []MemberAnalytics {
	byMember := make(map[string][]ChoreInstance, len(members))
	for _, inst := range instances {
		byMember[inst.AssignedTo] = append(byMember[inst.AssignedTo], inst)
	}
	out := make([]MemberAnalytics, 0, len(members))
	for _, m := range members {
		out = append(out, MemberAnalytics{
			MemberID:   m.ID,
			MemberName: m.FullName(),
			MemberRole: m.Role,
			Analytics:  Calculate(byMember[m.ID], now, loc, logger),
		})
	}
	return out
}
