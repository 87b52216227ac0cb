package storage

import (
	"context"
	"testing"
	"time"
)

func TestRedisDeduperAddRemove(t *testing.T) {
	mr, client := newRedis(t)
	deduper := NewRedisDeduper(client, "webhook", time.Minute)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "d1")
	if err != nil || !added {
		t.Fatalf("expected first add to succeed, got %v %v", added, err)
	}
	if ttl := mr.TTL("webhook:d1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
	added, err = deduper.Add(ctx, "d1")
	if err != nil || added {
		t.Fatalf("expected duplicate, got %v %v", added, err)
	}
	if err := deduper.Remove(ctx, "d1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if added, _ := deduper.Add(ctx, "d1"); !added {
		t.Fatal("expected key to be new again after remove")
	}
}

func TestRedisDeduperNamespacing(t *testing.T) {
	_, client := newRedis(t)
	a := NewRedisDeduper(client, "webhook", time.Minute)
	b := NewRedisDeduper(client, "event", time.Minute)
	ctx := context.Background()
	if added, _ := a.Add(ctx, "k"); !added {
		t.Fatal("expected add")
	}
	if added, _ := b.Add(ctx, "k"); !added {
		t.Fatal("prefixes must not collide")
	}
}

func TestNilDeduper(t *testing.T) {
	var d *RedisDeduper
	if added, err := d.Add(context.Background(), "k"); err != nil || !added {
		t.Fatal("nil deduper treats every key as new")
	}
}
