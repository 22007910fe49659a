package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/docloom/docloom/internal/errs"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSetGetDel(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) {
		t.Fatalf("expected not_found for missing key, got %v", err)
	}

	if err := store.Set(ctx, "session:a", `{"x":1}`, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "session:a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != `{"x":1}` {
		t.Fatalf("got %q", got)
	}

	if err := store.Set(ctx, "session:a", `{"x":2}`, 0); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = store.Get(ctx, "session:a")
	if got != `{"x":2}` {
		t.Fatalf("overwrite not visible, got %q", got)
	}

	if err := store.Del(ctx, "session:a"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := store.Get(ctx, "session:a"); err == nil {
		t.Fatalf("expected miss after delete")
	}
}

func TestTTLExpiry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "ephemeral", "v", time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := store.Get(ctx, "ephemeral"); !errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) {
		t.Fatalf("expected expired key to be invisible, got %v", err)
	}

	// Refreshing the TTL keeps the key alive.
	if err := store.Set(ctx, "refreshed", "v", time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "refreshed", "v", time.Hour); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := store.Get(ctx, "refreshed"); err != nil {
		t.Fatalf("refreshed key should survive: %v", err)
	}
}

func TestScanKeys(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"session:b", "session:a", "approvals:a", "chat:a"} {
		if err := store.Set(ctx, key, "v", 0); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	keys, err := store.ScanKeys(ctx, "session:*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 2 || keys[0] != "session:a" || keys[1] != "session:b" {
		t.Fatalf("unexpected scan result: %v", keys)
	}

	keys, err = store.ScanKeys(ctx, "*:a")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys ending in :a, got %v", keys)
	}
}

func TestScanKeysEscapesLikeMetacharacters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "literal_percent:100%", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "literal-percent:100x", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	keys, err := store.ScanKeys(ctx, "literal_percent:100%")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 1 || keys[0] != "literal_percent:100%" {
		t.Fatalf("percent must match literally: %v", keys)
	}
}

func TestSortedSetOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.ZAdd(ctx, "sessions:index", 10, "old"); err != nil {
		t.Fatalf("zadd: %v", err)
	}
	if err := store.ZAdd(ctx, "sessions:index", 30, "newest"); err != nil {
		t.Fatalf("zadd: %v", err)
	}
	if err := store.ZAdd(ctx, "sessions:index", 20, "middle"); err != nil {
		t.Fatalf("zadd: %v", err)
	}

	members, err := store.ZRevRangeByScore(ctx, "sessions:index", 0)
	if err != nil {
		t.Fatalf("zrange: %v", err)
	}
	want := []string{"newest", "middle", "old"}
	if len(members) != len(want) {
		t.Fatalf("got %v", members)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, members[i], want[i])
		}
	}

	// Updating a member's score reorders instead of duplicating.
	if err := store.ZAdd(ctx, "sessions:index", 40, "old"); err != nil {
		t.Fatalf("zadd update: %v", err)
	}
	members, _ = store.ZRevRangeByScore(ctx, "sessions:index", 2)
	if len(members) != 2 || members[0] != "old" {
		t.Fatalf("expected old promoted to front, got %v", members)
	}

	if err := store.ZRem(ctx, "sessions:index", "middle"); err != nil {
		t.Fatalf("zrem: %v", err)
	}
	members, _ = store.ZRevRangeByScore(ctx, "sessions:index", 0)
	if len(members) != 2 {
		t.Fatalf("expected 2 members after removal, got %v", members)
	}
}
