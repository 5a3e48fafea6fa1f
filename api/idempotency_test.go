package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisDeduperAddRemove(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})

	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "user", "k1")
	if err != nil || !added {
		t.Fatalf("expected key to be added, got %v %v", added, err)
	}
	if ttl := m.TTL("idem:user:k1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
	if added, err := deduper.Add(ctx, "user", "k1"); err != nil || added {
		t.Fatalf("expected duplicate, got %v %v", added, err)
	}
	if added, err := deduper.Add(ctx, "other", "k1"); err != nil || !added {
		t.Fatalf("keys must be namespaced per user, got %v %v", added, err)
	}

	if err := deduper.Remove(ctx, "user", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if added, err := deduper.Add(ctx, "user", "k1"); err != nil || !added {
		t.Fatalf("expected key to be re-added after remove, got %v %v", added, err)
	}
}

func TestRedisDeduperDefaultTTL(t *testing.T) {
	if d := NewRedisDeduper(nil, 0); d.ttl != DefaultDedupeTTL {
		t.Fatalf("unexpected default ttl: %v", d.ttl)
	}
}
