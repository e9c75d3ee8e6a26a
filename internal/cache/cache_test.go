package cache

import (
	"context"
	"path/filepath"
	"testing"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	val, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || val != "v2" {
		t.Fatalf("expected v2, got %q ok=%v err=%v", val, ok, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be deleted")
	}
	if err := s.Delete(ctx, "never-set"); err != nil {
		t.Fatalf("delete missing key: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	exerciseStore(t, s)

	if err := s.Set(context.Background(), KeySyncQueue, `[{"id":"q1"}]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen bolt: %v", err)
	}
	defer reopened.Close()

	val, ok, err := reopened.Get(context.Background(), KeySyncQueue)
	if err != nil || !ok || val != `[{"id":"q1"}]` {
		t.Fatalf("expected persisted queue, got %q ok=%v err=%v", val, ok, err)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	type row struct {
		ID    string `json:"id"`
		Stock int    `json:"stock"`
	}
	key := OwnerKey(KeyProducts, "user-1")
	if key != "pos_products/user-1" {
		t.Fatalf("unexpected owner key %s", key)
	}

	var empty []row
	if ok, err := GetJSON(ctx, s, key, &empty); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := SetJSON(ctx, s, key, []row{{ID: "a", Stock: 3}}); err != nil {
		t.Fatalf("set json: %v", err)
	}
	var got []row
	ok, err := GetJSON(ctx, s, key, &got)
	if err != nil || !ok {
		t.Fatalf("get json: ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].ID != "a" || got[0].Stock != 3 {
		t.Fatalf("unexpected rows %+v", got)
	}

	_ = s.Set(ctx, "broken", "{not json")
	if _, err := GetJSON(ctx, s, "broken", &got); err == nil {
		t.Fatalf("expected decode error")
	}
}
