package entities

import (
	"time"

	"choreshore-bridge/domain"
)

const (
	DefaultPrefix      = "choreshore"
	DefaultDisplayName = "ChoreShore"

	stateClassMeasurement = "measurement"
	deviceClassProblem    = "problem"
)

// Builder turns snapshots into entities. The zero value uses the default
// prefix and display name.
type Builder struct {
	// Prefix is prepended to every unique id.
	Prefix string
	// DisplayName is prepended to every entity name.
	DisplayName string
	Location    *time.Location
}

func (b Builder) prefix() string {
	if b.Prefix == "" {
		return DefaultPrefix
	}
	return b.Prefix
}

func (b Builder) name(suffix string) string {
	display := b.DisplayName
	if display == "" {
		display = DefaultDisplayName
	}
	if suffix == "" {
		return display
	}
	return display + " " + suffix
}

func (b Builder) id(suffix string) string {
	return b.prefix() + "_" + suffix
}

// Build returns every entity for snap in a stable order: analytics sensors,
// member sensors, household binary sensors, then per task binary sensors and
// switches. A nil snapshot yields entities reporting zero.
func (b Builder) Build(snap *domain.Snapshot, now time.Time) []Entity {
	if snap == nil {
		snap = &domain.Snapshot{}
	}
	loc := b.Location
	if loc == nil {
		loc = time.Local
	}
	today := domain.DateOf(now, loc)

	out := b.analyticsSensors(snap.Analytics)
	for _, m := range snap.MemberAnalytics {
		out = append(out, b.memberSensor(m))
	}
	out = append(out,
		Entity{
			Kind:        KindBinarySensor,
			UniqueID:    b.id("has_overdue_tasks"),
			Name:        b.name("Has Overdue Tasks"),
			State:       onOff(snap.Analytics.OverdueTasks > 0),
			Icon:        "mdi:alert-circle",
			DeviceClass: deviceClassProblem,
			Available:   true,
			Attributes:  map[string]any{"overdue_tasks": snap.Analytics.OverdueTasks},
		},
		Entity{
			Kind:       KindBinarySensor,
			UniqueID:   b.id("has_pending_tasks"),
			Name:       b.name("Has Pending Tasks"),
			State:      onOff(snap.Analytics.PendingTasks > 0),
			Icon:       "mdi:clock-outline",
			Available:  true,
			Attributes: map[string]any{"pending_tasks": snap.Analytics.PendingTasks},
		},
	)

	for _, inst := range snap.Instances {
		if !tracked(inst, today, loc) {
			continue
		}
		overdue, _ := domain.IsOverdue(inst, today, loc)
		out = append(out, b.taskSensor(inst, overdue), b.taskSwitch(inst))
	}
	return out
}

// tracked reports whether a task gets its own entities: every pending task
// and tasks completed today, so a completed task is shown as done until the
// day ends.
func tracked(inst domain.ChoreInstance, today domain.Date, loc *time.Location) bool {
	switch inst.Status {
	case domain.StatusPending:
		return true
	case domain.StatusCompleted:
		if inst.CompletedAt == nil {
			return false
		}
		at, err := time.Parse(time.RFC3339Nano, *inst.CompletedAt)
		if err != nil {
			return false
		}
		return domain.DateOf(at, loc) == today
	}
	return false
}

func (b Builder) analyticsSensors(a domain.Analytics) []Entity {
	sensor := func(key, name, icon, state string) Entity {
		return Entity{
			Kind:       KindSensor,
			UniqueID:   b.id(key),
			Name:       b.name(name),
			State:      state,
			Icon:       icon,
			StateClass: stateClassMeasurement,
			Available:  true,
			Attributes: map[string]any{},
		}
	}
	rate := sensor("completion_rate", "Completion Rate", "mdi:percent", floatState(a.CompletionRate))
	rate.Unit = "%"
	return []Entity{
		sensor("total_tasks", "Total Tasks", "mdi:format-list-checks", intState(a.TotalTasks)),
		sensor("completed_tasks", "Completed Tasks", "mdi:check-circle", intState(a.CompletedTasks)),
		sensor("overdue_tasks", "Overdue Tasks", "mdi:alert-circle", intState(a.OverdueTasks)),
		sensor("pending_tasks", "Pending Tasks", "mdi:clock-outline", intState(a.PendingTasks)),
		rate,
	}
}

func (b Builder) memberSensor(m domain.MemberAnalytics) Entity {
	name := m.MemberName
	if name == "" {
		name = "User"
	}
	return Entity{
		Kind:      KindSensor,
		UniqueID:  b.id("member_" + m.MemberID + "_tasks"),
		Name:      b.name(name + " Tasks"),
		State:     intState(m.CompletedTasks),
		Icon:      "mdi:account-check",
		Available: true,
		Attributes: map[string]any{
			"member_name":     name,
			"member_role":     m.MemberRole,
			"total_tasks":     m.TotalTasks,
			"completed_tasks": m.CompletedTasks,
			"pending_tasks":   m.PendingTasks,
			"overdue_tasks":   m.OverdueTasks,
			"completion_rate": m.CompletionRate,
		},
	}
}

func (b Builder) taskSensor(inst domain.ChoreInstance, overdue bool) Entity {
	on := inst.Status == domain.StatusPending
	icon := "mdi:check-circle"
	if on {
		icon = "mdi:clock-alert"
		if overdue {
			icon = "mdi:alert-circle"
		}
	}
	attrs := taskAttributes(inst)
	attrs["is_overdue"] = overdue
	return Entity{
		Kind:       KindBinarySensor,
		UniqueID:   b.id("task_" + inst.ID),
		Name:       b.name(inst.ChoreName()),
		State:      onOff(on),
		Icon:       icon,
		Available:  true,
		TaskID:     inst.ID,
		Attributes: attrs,
	}
}

func (b Builder) taskSwitch(inst domain.ChoreInstance) Entity {
	on := inst.Status == domain.StatusCompleted
	available := inst.Status == domain.StatusPending || on
	icon := "mdi:circle-outline"
	if on {
		icon = "mdi:check-circle"
	}
	state := onOff(on)
	if !available {
		state = StateUnavailable
	}
	return Entity{
		Kind:       KindSwitch,
		UniqueID:   b.id("task_switch_" + inst.ID),
		Name:       b.name(inst.ChoreName() + " Complete"),
		State:      state,
		Icon:       icon,
		Available:  available,
		TaskID:     inst.ID,
		Attributes: taskAttributes(inst),
	}
}

func taskAttributes(inst domain.ChoreInstance) map[string]any {
	attrs := map[string]any{
		"task_id":            inst.ID,
		"chore_name":         nil,
		"description":        nil,
		"category":           nil,
		"priority":           nil,
		"location":           nil,
		"estimated_duration": nil,
		"due_date":           inst.DueDate,
		"due_time":           nil,
		"assigned_to":        "",
		"status":             string(inst.Status),
	}
	if c := inst.Chore; c != nil {
		attrs["chore_name"] = c.Name
		attrs["description"] = c.Description
		attrs["category"] = c.Category
		attrs["priority"] = c.Priority
		attrs["location"] = c.Location
		if c.EstimatedDuration != nil {
			attrs["estimated_duration"] = *c.EstimatedDuration
		}
	}
	if inst.DueTime != nil {
		attrs["due_time"] = *inst.DueTime
	}
	if u := inst.AssignedUser; u != nil {
		attrs["assigned_to"] = u.FullName()
	}
	return attrs
}
