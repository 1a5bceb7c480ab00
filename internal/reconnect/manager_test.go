/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package reconnect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Seednode/fadetoe/internal/match"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const window = 60 * time.Second

func newTestManager(t *testing.T, store Store) (*Manager, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(store, "tab-1", Options{Window: window, Now: c.Now}), c
}

func midGame(t *testing.T) match.State {
	t.Helper()
	st := match.New()
	for _, mv := range []struct {
		m    match.Mark
		cell int
	}{{match.X, 0}, {match.O, 4}, {match.X, 1}} {
		if _, err := st.Submit(match.RolePlayer, mv.m, mv.cell); err != nil {
			t.Fatalf("setup move: %v", err)
		}
	}
	return st
}

func snapshotOf(st match.State) Snapshot {
	return Snapshot{
		MatchID: "abcd1234",
		Role:    match.RolePlayer,
		Mark:    match.O,
		PeerURL: "http://host:8080/match/abcd1234",
		State:   st,
	}
}

func TestWindowBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"immediately", 0, nil},
		{"halfway", window / 2, nil},
		{"exactly at the window", window, nil},
		{"just past the window", window + time.Nanosecond, ErrWindowExpired},
		{"long gone", time.Hour, ErrWindowExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			m, c := newTestManager(t, store)
			ctx := context.Background()

			if err := m.Unload(ctx, snapshotOf(midGame(t))); err != nil {
				t.Fatalf("unload: %v", err)
			}
			c.Advance(tt.elapsed)

			fresh := NewManager(store, "tab-1", Options{Window: window, Now: c.Now})
			snap, err := fresh.Check(ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("check: got %v, want %v", err, tt.wantErr)
			}

			if tt.wantErr != nil {
				if fresh.State() != Cleared {
					t.Fatalf("state = %s, want cleared", fresh.State())
				}
				if _, ok, _ := store.Load(ctx, "tab-1"); ok {
					t.Fatalf("expired snapshot left behind")
				}
				return
			}

			if fresh.State() != PersistedPending {
				t.Fatalf("state = %s, want persisted-pending", fresh.State())
			}
			if !snap.State.Equal(midGame(t)) || snap.MatchID != "abcd1234" {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
		})
	}
}

func TestCheckWithoutSnapshot(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	if _, err := m.Check(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	if m.State() != Cleared {
		t.Fatalf("state = %s, want cleared", m.State())
	}
}

func TestAttemptAdoptsPeerState(t *testing.T) {
	store := NewMemoryStore()
	m, c := newTestManager(t, store)
	ctx := context.Background()

	if err := m.Unload(ctx, snapshotOf(midGame(t))); err != nil {
		t.Fatal(err)
	}
	c.Advance(10 * time.Second)
	if _, err := m.Check(ctx); err != nil {
		t.Fatal(err)
	}

	// The peer moved while we were away.
	authoritative := midGame(t)
	if _, err := authoritative.Submit(match.RolePlayer, match.O, 8); err != nil {
		t.Fatal(err)
	}

	var got Snapshot
	st, err := m.Attempt(ctx, RejoinFunc(func(_ context.Context, snap Snapshot) (match.State, error) {
		got = snap
		return authoritative, nil
	}))
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}

	if got.PeerURL == "" || got.MatchID != "abcd1234" || got.Role != match.RolePlayer {
		t.Fatalf("rejoiner got incomplete snapshot %+v", got)
	}
	if !st.Equal(authoritative) {
		t.Fatalf("attempt returned the stale state")
	}
	if m.State() != Active {
		t.Fatalf("state = %s, want active", m.State())
	}

	saved, ok, err := store.Load(ctx, "tab-1")
	if err != nil || !ok || !saved.State.Equal(authoritative) {
		t.Fatalf("authoritative state not persisted: %v %v", ok, err)
	}
}

func TestFailedAttemptClears(t *testing.T) {
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)
	ctx := context.Background()

	if err := m.Unload(ctx, snapshotOf(midGame(t))); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Check(ctx); err != nil {
		t.Fatal(err)
	}

	calls := 0
	_, err := m.Attempt(ctx, RejoinFunc(func(context.Context, Snapshot) (match.State, error) {
		calls++
		return match.State{}, errors.New("dial refused")
	}))
	if !errors.Is(err, ErrReconnectFailed) {
		t.Fatalf("expected ErrReconnectFailed, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("rejoiner called %d times, want 1", calls)
	}
	if m.State() != Cleared {
		t.Fatalf("state = %s, want cleared", m.State())
	}
	if _, ok, _ := store.Load(ctx, "tab-1"); ok {
		t.Fatalf("snapshot survived a failed attempt")
	}

	if _, err := m.Attempt(ctx, RejoinFunc(func(context.Context, Snapshot) (match.State, error) {
		return match.New(), nil
	})); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending on retry, got %v", err)
	}
}

func TestAttemptExpiresWhilePrompting(t *testing.T) {
	m, c := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	if err := m.Unload(ctx, snapshotOf(midGame(t))); err != nil {
		t.Fatal(err)
	}
	c.Advance(window - time.Second)
	if _, err := m.Check(ctx); err != nil {
		t.Fatal(err)
	}
	c.Advance(2 * time.Second)

	_, err := m.Attempt(ctx, RejoinFunc(func(context.Context, Snapshot) (match.State, error) {
		t.Fatalf("rejoiner called after the window closed")
		return match.State{}, nil
	}))
	if !errors.Is(err, ErrWindowExpired) {
		t.Fatalf("expected ErrWindowExpired, got %v", err)
	}
}

func TestAbandonCancelsAttempt(t *testing.T) {
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)
	ctx := context.Background()

	if err := m.Unload(ctx, snapshotOf(midGame(t))); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Check(ctx); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		_, err := m.Attempt(ctx, RejoinFunc(func(ctx context.Context, _ Snapshot) (match.State, error) {
			close(started)
			<-ctx.Done()
			return match.State{}, ctx.Err()
		}))
		result <- err
	}()

	<-started
	if m.State() != Rejoining {
		t.Fatalf("state = %s, want rejoining", m.State())
	}
	if err := m.Abandon(ctx); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	select {
	case err := <-result:
		if !errors.Is(err, ErrReconnectFailed) || !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected attempt error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("attempt not cancelled by abandon")
	}

	if m.State() != Cleared {
		t.Fatalf("state = %s, want cleared", m.State())
	}
	if _, ok, _ := store.Load(ctx, "tab-1"); ok {
		t.Fatalf("abandon left persisted data")
	}

	// A late persist from the dying session must not resurrect the snapshot.
	if err := m.Persist(ctx, snapshotOf(midGame(t))); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Load(ctx, "tab-1"); ok {
		t.Fatalf("persist after abandon wrote a snapshot")
	}
}

func TestBeginClearsStaleSnapshot(t *testing.T) {
	store := NewMemoryStore()
	m, _ := newTestManager(t, store)
	ctx := context.Background()

	if err := m.Unload(ctx, snapshotOf(midGame(t))); err != nil {
		t.Fatal(err)
	}
	if err := m.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Load(ctx, "tab-1"); ok {
		t.Fatalf("begin left the stale snapshot")
	}
	if m.State() != Active {
		t.Fatalf("state = %s, want active", m.State())
	}

	if err := m.Persist(ctx, snapshotOf(match.New())); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Load(ctx, "tab-1"); !ok {
		t.Fatalf("persist while active wrote nothing")
	}
}
