package hass

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus/hooks/test"

	"choreshore-bridge/domain"
	"choreshore-bridge/entities"
)

var testNow = time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

type fakeHA struct {
	mu      sync.Mutex
	states  map[string]statePayload
	deleted []string
	fail    map[string]bool
}

func newFakeHA(t *testing.T) (*fakeHA, *httptest.Server) {
	t.Helper()
	ha := &fakeHA{states: map[string]statePayload{}, fail: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ha-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, statesPath)
		ha.mu.Lock()
		defer ha.mu.Unlock()
		if ha.fail[id] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		switch r.Method {
		case http.MethodPost:
			var p statePayload
			data, _ := io.ReadAll(r.Body)
			if err := sonic.Unmarshal(data, &p); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			ha.states[id] = p
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			if _, ok := ha.states[id]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(ha.states, id)
			ha.deleted = append(ha.deleted, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return ha, srv
}

func newTestPublisher(t *testing.T, url string) (*Publisher, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	p, err := NewPublisher(url, "ha-token", entities.Builder{Location: time.UTC}, time.Second, logger)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	p.now = func() time.Time { return testNow }
	return p, hook
}

func snapshotWith(instances ...domain.ChoreInstance) *domain.Snapshot {
	return domain.Build(domain.Scope{HouseholdID: "h1"}, instances, nil, nil, testNow, time.UTC, nil)
}

func TestPublisherPostsStates(t *testing.T) {
	ha, srv := newFakeHA(t)
	p, _ := newTestPublisher(t, srv.URL)

	p.SnapshotUpdated(context.Background(), snapshotWith(
		domain.ChoreInstance{ID: "a", Status: domain.StatusPending, DueDate: "2024-03-09", Chore: &domain.Chore{Name: "Dishes"}},
	))

	ha.mu.Lock()
	defer ha.mu.Unlock()
	total, ok := ha.states["sensor.choreshore_total_tasks"]
	if !ok || total.State != "1" {
		t.Fatalf("expected total tasks state, got %#v", ha.states)
	}
	if total.Attributes["friendly_name"] != "ChoreShore Total Tasks" || total.Attributes["state_class"] != "measurement" {
		t.Fatalf("unexpected attributes: %#v", total.Attributes)
	}
	task, ok := ha.states["binary_sensor.choreshore_task_a"]
	if !ok || task.State != "on" || task.Attributes["icon"] != "mdi:alert-circle" {
		t.Fatalf("unexpected task sensor: %#v", task)
	}
	if _, ok := ha.states["switch.choreshore_task_switch_a"]; !ok {
		t.Fatalf("expected task switch")
	}
}

func TestPublisherRemovesVanishedEntities(t *testing.T) {
	ha, srv := newFakeHA(t)
	p, _ := newTestPublisher(t, srv.URL)
	ctx := context.Background()

	p.SnapshotUpdated(ctx, snapshotWith(domain.ChoreInstance{ID: "a", Status: domain.StatusPending, DueDate: "2024-03-11"}))
	p.SnapshotUpdated(ctx, snapshotWith(domain.ChoreInstance{ID: "a", Status: domain.StatusSkipped, DueDate: "2024-03-11"}))

	ha.mu.Lock()
	defer ha.mu.Unlock()
	want := map[string]bool{"binary_sensor.choreshore_task_a": true, "switch.choreshore_task_switch_a": true}
	if len(ha.deleted) != len(want) {
		t.Fatalf("unexpected deletions: %v", ha.deleted)
	}
	for _, id := range ha.deleted {
		if !want[id] {
			t.Fatalf("unexpected deletion of %s", id)
		}
	}
	if _, ok := ha.states["sensor.choreshore_total_tasks"]; !ok {
		t.Fatalf("analytics sensors must stay published")
	}
}

func TestPublisherContinuesAfterFailure(t *testing.T) {
	ha, srv := newFakeHA(t)
	ha.fail["sensor.choreshore_total_tasks"] = true
	p, hook := newTestPublisher(t, srv.URL)

	p.SnapshotUpdated(context.Background(), snapshotWith())

	ha.mu.Lock()
	_, ok := ha.states["sensor.choreshore_pending_tasks"]
	ha.mu.Unlock()
	if !ok {
		t.Fatalf("remaining entities must still be published")
	}
	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["entity_id"] == "sensor.choreshore_total_tasks" {
			logged = true
		}
	}
	if !logged {
		t.Fatalf("expected failure to be logged with entity id")
	}
}

func TestNewPublisherValidates(t *testing.T) {
	if _, err := NewPublisher("not a url", "t", entities.Builder{}, 0, nil); err == nil {
		t.Fatalf("expected invalid url error")
	}
	if _, err := NewPublisher("http://ha.local:8123", "", entities.Builder{}, 0, nil); err == nil {
		t.Fatalf("expected missing token error")
	}
}
