package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"choreshore-bridge/domain"
)

var testScope = domain.Scope{HouseholdID: "h1", UserID: "u1"}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		HouseholdID: "h1",
		UserID:      "u1",
		Instances:   []domain.ChoreInstance{{ID: "i1", Status: domain.StatusPending, DueDate: "2024-03-09"}},
		Members:     []domain.Profile{{ID: "u1", FirstName: "Ada"}},
		Analytics:   domain.Analytics{TotalTasks: 1, PendingTasks: 1, OverdueTasks: 1},
		Degraded:    []string{domain.ResourceChores},
		Source:      domain.SourceREST,
		LastUpdated: time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC),
	}
}

func TestSnapshotCacheStoreAndLoad(t *testing.T) {
	mr, client := newTestRedis(t)
	logger, _ := test.NewNullLogger()
	cache := NewSnapshotCache(client, testScope, time.Minute, "", logger)
	ctx := context.Background()

	if _, ok := cache.Load(ctx); ok {
		t.Fatalf("expected cache miss before store")
	}

	cache.SnapshotUpdated(ctx, testSnapshot())

	if ttl := mr.TTL(snapshotKey(testScope)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
	got, ok := cache.Load(ctx)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.HouseholdID != "h1" || len(got.Instances) != 1 || got.Analytics.OverdueTasks != 1 {
		t.Fatalf("unexpected snapshot: %#v", got)
	}
	if !got.LastUpdated.Equal(testSnapshot().LastUpdated) {
		t.Fatalf("unexpected last updated: %v", got.LastUpdated)
	}
}

func TestSnapshotCacheKeyIsScoped(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	NewSnapshotCache(client, testScope, 0, "", nil).SnapshotUpdated(ctx, testSnapshot())

	other := NewSnapshotCache(client, domain.Scope{HouseholdID: "h1"}, 0, "", nil)
	if _, ok := other.Load(ctx); ok {
		t.Fatalf("household scope must not read the user scope entry")
	}
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewSnapshotCache(client, testScope, time.Minute, "", nil)
	ctx := context.Background()

	cache.SnapshotUpdated(ctx, testSnapshot())
	cache.SnapshotInvalidated(ctx)

	if mr.Exists(snapshotKey(testScope)) {
		t.Fatalf("expected cache entry to be evicted")
	}
}

func TestSnapshotCacheEvictsCorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewSnapshotCache(client, testScope, time.Minute, "", nil)
	if err := mr.Set(snapshotKey(testScope), "not-json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, ok := cache.Load(context.Background()); ok {
		t.Fatalf("expected corrupt entry to miss")
	}
	if mr.Exists(snapshotKey(testScope)) {
		t.Fatalf("expected corrupt entry to be evicted")
	}
}

func TestSnapshotCacheNilClient(t *testing.T) {
	cache := NewSnapshotCache(nil, testScope, 0, "", nil)
	ctx := context.Background()
	cache.SnapshotUpdated(ctx, testSnapshot())
	cache.SnapshotInvalidated(ctx)
	if _, ok := cache.Load(ctx); ok {
		t.Fatalf("nil client must never hit")
	}
}

func TestSubscribeBroadcastsPublishedSnapshots(t *testing.T) {
	mr, client := newTestRedis(t)
	logger, _ := test.NewNullLogger()
	cache := NewSnapshotCache(client, testScope, time.Minute, "test:snapshots", logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type delivery struct {
		scope string
		snap  *domain.Snapshot
	}
	got := make(chan delivery, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Subscribe(ctx, logger, client, cache.Channel(), func(scope string, snap *domain.Snapshot) {
			got <- delivery{scope: scope, snap: snap}
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumSub(cache.Channel())[cache.Channel()] == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not established")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cache.SnapshotUpdated(context.Background(), testSnapshot())

	select {
	case d := <-got:
		if d.scope != testScope.Key() {
			t.Fatalf("unexpected scope: %s", d.scope)
		}
		if len(d.snap.Instances) != 1 {
			t.Fatalf("unexpected snapshot: %#v", d.snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected broadcast")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("subscribe did not return after cancel")
	}
}
