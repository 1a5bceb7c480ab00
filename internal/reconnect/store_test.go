/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package reconnect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Seednode/fadetoe/internal/match"
)

// exerciseStore runs the same save, load and clear cycle against any store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "tab-1"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	snap := snapshotOf(midGame(t))
	snap.SavedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, "tab-1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Load(ctx, "tab-1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !got.State.Equal(snap.State) || got.MatchID != snap.MatchID || !got.SavedAt.Equal(snap.SavedAt) {
		t.Fatalf("loaded %+v, saved %+v", got, snap)
	}

	// Overwrite in place.
	snap.State = match.New()
	if err := store.Save(ctx, "tab-1", snap); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if got, _, _ := store.Load(ctx, "tab-1"); !got.State.Equal(match.New()) {
		t.Fatalf("save did not overwrite")
	}

	if err := store.Clear(ctx, "tab-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Load(ctx, "tab-1"); ok {
		t.Fatalf("snapshot survived clear")
	}
	if err := store.Clear(ctx, "tab-1"); err != nil {
		t.Fatalf("clearing twice: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state"), nil)
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, store)

	if err := store.Save(context.Background(), "../escape", snapshotOf(match.New())); err == nil {
		t.Fatalf("expected path-like key to be rejected")
	}
}

func TestFileStoreRejectsCorruptData(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "tab-1.json"), []byte(`{"state":{"board":["Z"]}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Load(context.Background(), "tab-1"); err == nil {
		t.Fatalf("expected corrupt snapshot to fail")
	}

	m := NewManager(store, "tab-1", Options{Window: window})
	if _, err := m.Check(context.Background()); err == nil {
		t.Fatalf("expected check to fail on corrupt data")
	}
	if _, err := os.Stat(filepath.Join(dir, "tab-1.json")); !os.IsNotExist(err) {
		t.Fatalf("corrupt snapshot not cleared")
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("FADETOE_TEST_REDIS")
	if url == "" {
		t.Skip("FADETOE_TEST_REDIS not set")
	}

	store, err := OpenRedis(context.Background(), url, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLStore(t *testing.T) {
	dsn := os.Getenv("FADETOE_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("FADETOE_TEST_POSTGRES not set")
	}

	db, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, NewSQLStore(db))
}

func TestNilSQLStoreIsInert(t *testing.T) {
	var store *SQLStore = NewSQLStore(nil)
	if store != nil {
		t.Fatalf("expected nil store for nil db")
	}

	ctx := context.Background()
	if err := store.Save(ctx, "tab-1", snapshotOf(match.New())); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := store.Load(ctx, "tab-1"); ok || err != nil {
		t.Fatalf("nil store loaded ok=%v err=%v", ok, err)
	}
}

func TestHumanReadableSize(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		999:     "999 B",
		1000:    "1.0 kB",
		1500000: "1.5 MB",
	}
	for in, want := range tests {
		if got := humanReadableSize(in); got != want {
			t.Fatalf("humanReadableSize(%d) = %q, want %q", in, got, want)
		}
	}
}
