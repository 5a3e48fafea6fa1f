package entities

import (
	"testing"
	"time"

	"choreshore-bridge/domain"
)

var testNow = time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func testSnapshot() *domain.Snapshot {
	ada := domain.Profile{ID: "u1", FirstName: "Ada", LastName: "Lovelace", Role: "admin"}
	dishes := &domain.Chore{ID: "c1", Name: "Dishes", Category: "kitchen", Priority: "high"}
	instances := []domain.ChoreInstance{
		{ID: "a", ChoreID: "c1", Status: domain.StatusPending, DueDate: "2024-03-09", AssignedTo: "u1", Chore: dishes, AssignedUser: &ada},
		{ID: "b", ChoreID: "c1", Status: domain.StatusPending, DueDate: "2024-03-11", AssignedTo: "u1", DueTime: strPtr("08:00")},
		{ID: "c", ChoreID: "c1", Status: domain.StatusCompleted, DueDate: "2024-03-10", AssignedTo: "u1", CompletedAt: strPtr("2024-03-10T09:00:00Z")},
		{ID: "d", ChoreID: "c1", Status: domain.StatusCompleted, DueDate: "2024-03-01", AssignedTo: "u1", CompletedAt: strPtr("2024-03-01T09:00:00Z")},
		{ID: "e", ChoreID: "c1", Status: domain.StatusSkipped, DueDate: "2024-03-05", AssignedTo: "u1"},
	}
	return domain.Build(domain.Scope{HouseholdID: "h1"}, instances, nil, []domain.Profile{ada}, testNow, time.UTC, nil)
}

func byID(list []Entity) map[string]Entity {
	out := make(map[string]Entity, len(list))
	for _, e := range list {
		out[e.EntityID()] = e
	}
	return out
}

func TestBuildAnalyticsSensors(t *testing.T) {
	got := byID(Builder{Location: time.UTC}.Build(testSnapshot(), testNow))

	tests := map[string]string{
		"sensor.choreshore_total_tasks":     "5",
		"sensor.choreshore_completed_tasks": "2",
		"sensor.choreshore_overdue_tasks":   "1",
		"sensor.choreshore_pending_tasks":   "2",
		"sensor.choreshore_completion_rate": "40",
	}
	for id, want := range tests {
		e, ok := got[id]
		if !ok {
			t.Fatalf("missing entity %s", id)
		}
		if e.State != want {
			t.Fatalf("%s: state %q, want %q", id, e.State, want)
		}
		if e.StateClass != "measurement" {
			t.Fatalf("%s: expected measurement state class", id)
		}
	}
	if got["sensor.choreshore_completion_rate"].Unit != "%" {
		t.Fatalf("completion rate must be a percentage")
	}
	if name := got["sensor.choreshore_total_tasks"].Name; name != "ChoreShore Total Tasks" {
		t.Fatalf("unexpected name: %q", name)
	}
}

func TestBuildMemberSensor(t *testing.T) {
	got := byID(Builder{Location: time.UTC}.Build(testSnapshot(), testNow))

	e, ok := got["sensor.choreshore_member_u1_tasks"]
	if !ok {
		t.Fatalf("missing member sensor")
	}
	if e.State != "2" {
		t.Fatalf("member sensor state is the completed count, got %q", e.State)
	}
	if e.Name != "ChoreShore Ada Lovelace Tasks" {
		t.Fatalf("unexpected name: %q", e.Name)
	}
	if e.Attributes["member_role"] != "admin" || e.Attributes["overdue_tasks"] != 1 || e.Attributes["total_tasks"] != 5 {
		t.Fatalf("unexpected attributes: %#v", e.Attributes)
	}
}

func TestBuildHouseholdBinarySensors(t *testing.T) {
	got := byID(Builder{Location: time.UTC}.Build(testSnapshot(), testNow))

	overdue := got["binary_sensor.choreshore_has_overdue_tasks"]
	if overdue.State != StateOn || overdue.DeviceClass != "problem" {
		t.Fatalf("unexpected overdue sensor: %#v", overdue)
	}
	if got["binary_sensor.choreshore_has_pending_tasks"].State != StateOn {
		t.Fatalf("expected pending tasks sensor on")
	}

	empty := byID(Builder{}.Build(nil, testNow))
	if empty["binary_sensor.choreshore_has_overdue_tasks"].State != StateOff {
		t.Fatalf("expected overdue sensor off without data")
	}
	if empty["sensor.choreshore_total_tasks"].State != "0" {
		t.Fatalf("expected zero total without data")
	}
}

func TestBuildTaskEntities(t *testing.T) {
	got := byID(Builder{Location: time.UTC}.Build(testSnapshot(), testNow))

	overdue := got["binary_sensor.choreshore_task_a"]
	if overdue.State != StateOn || overdue.Icon != "mdi:alert-circle" {
		t.Fatalf("unexpected overdue task sensor: %#v", overdue)
	}
	if overdue.Name != "ChoreShore Dishes" || overdue.Attributes["assigned_to"] != "Ada Lovelace" {
		t.Fatalf("unexpected overdue task naming: %#v", overdue)
	}
	if overdue.Attributes["is_overdue"] != true || overdue.Attributes["category"] != "kitchen" {
		t.Fatalf("unexpected task attributes: %#v", overdue.Attributes)
	}

	upcoming := got["binary_sensor.choreshore_task_b"]
	if upcoming.Icon != "mdi:clock-alert" || upcoming.Name != "ChoreShore Unknown Task" {
		t.Fatalf("unexpected upcoming task sensor: %#v", upcoming)
	}
	if upcoming.Attributes["due_time"] != "08:00" {
		t.Fatalf("expected due time attribute, got %#v", upcoming.Attributes["due_time"])
	}

	sw := got["switch.choreshore_task_switch_a"]
	if sw.State != StateOff || !sw.Available || sw.TaskID != "a" {
		t.Fatalf("unexpected pending switch: %#v", sw)
	}
	if sw.Name != "ChoreShore Dishes Complete" {
		t.Fatalf("unexpected switch name: %q", sw.Name)
	}

	done := got["switch.choreshore_task_switch_c"]
	if done.State != StateOn || done.Icon != "mdi:check-circle" {
		t.Fatalf("task completed today should show as on, got %#v", done)
	}
	if got["binary_sensor.choreshore_task_c"].State != StateOff {
		t.Fatalf("completed task sensor should be off")
	}

	for _, id := range []string{"switch.choreshore_task_switch_d", "switch.choreshore_task_switch_e", "binary_sensor.choreshore_task_e"} {
		if _, ok := got[id]; ok {
			t.Fatalf("unexpected entity %s", id)
		}
	}
}

func TestBuildCustomPrefixAndName(t *testing.T) {
	list := Builder{Prefix: "chores", DisplayName: "Home", Location: time.UTC}.Build(testSnapshot(), testNow)
	got := byID(list)
	e, ok := got["sensor.chores_total_tasks"]
	if !ok || e.Name != "Home Total Tasks" {
		t.Fatalf("custom prefix/name not applied: %#v", e)
	}
}

func TestBuildIsStable(t *testing.T) {
	b := Builder{Location: time.UTC}
	first := b.Build(testSnapshot(), testNow)
	second := b.Build(testSnapshot(), testNow)
	if len(first) != len(second) {
		t.Fatalf("entity count differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].EntityID() != second[i].EntityID() || first[i].State != second[i].State {
			t.Fatalf("entity %d differs: %s vs %s", i, first[i].EntityID(), second[i].EntityID())
		}
	}
}

func TestHostAttributes(t *testing.T) {
	e := Entity{Kind: KindSensor, UniqueID: "x", Name: "X", Icon: "mdi:x", Unit: "%", Attributes: map[string]any{"a": 1}}
	attrs := e.HostAttributes()
	if attrs["friendly_name"] != "X" || attrs["icon"] != "mdi:x" || attrs["unit_of_measurement"] != "%" || attrs["a"] != 1 {
		t.Fatalf("unexpected host attributes: %#v", attrs)
	}
	if _, ok := e.Attributes["friendly_name"]; ok {
		t.Fatalf("host attributes must not mutate the entity")
	}
}

func TestParseKind(t *testing.T) {
	if k, ok := ParseKind(" Switch "); !ok || k != KindSwitch {
		t.Fatalf("unexpected kind: %v %v", k, ok)
	}
	if _, ok := ParseKind("light"); ok {
		t.Fatalf("expected unknown kind to be rejected")
	}
}
