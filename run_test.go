/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/fadetoe/internal/match"
	"github.com/Seednode/fadetoe/internal/reconnect"
	"github.com/Seednode/fadetoe/internal/session"
)

// newTestPlayer returns a player whose HTTP server is treated as already
// running, so hosting only registers the match.
func newTestPlayer(t *testing.T) (*player, *reconnect.MemoryStore) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := reconnect.NewMemoryStore()
	p := &player{
		ctx:     ctx,
		cfg:     testConfig(),
		con:     newConsole(strings.NewReader(""), io.Discard),
		mgr:     reconnect.NewManager(store, "tab", reconnect.Options{Window: time.Minute}),
		matches: newMatchManager(),
		serving: true,
	}
	if err := p.mgr.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}

	return p, store
}

func TestInterruptSavesLastPersistedState(t *testing.T) {
	p, store := newTestPlayer(t)

	base := reconnect.Snapshot{MatchID: "abcd1234", Role: match.RolePlayer, Mark: match.X, Acceptor: true}
	persist := p.persister(base)

	seen := played(t, 4)
	persisted := played(t, 4, 0)
	persist(persisted)

	// The console view only caught up to the first move.
	p.interrupt(base, seen)

	snap, ok, err := store.Load(context.Background(), "tab")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !snap.State.Equal(persisted) {
		t.Fatalf("unloaded turn %d, want turn %d", snap.State.Turn, persisted.Turn)
	}
	if p.mgr.State() != reconnect.PersistedPending {
		t.Fatalf("manager in %s after interrupt", p.mgr.State())
	}
}

func TestInterruptBeforeAnyPersistUsesView(t *testing.T) {
	p, store := newTestPlayer(t)

	base := reconnect.Snapshot{MatchID: "abcd1234", Role: match.RolePlayer, Mark: match.X, Acceptor: true}
	p.persister(base)

	seen := played(t, 4)
	p.interrupt(base, seen)

	snap, ok, err := store.Load(context.Background(), "tab")
	if err != nil || !ok || !snap.State.Equal(seen) {
		t.Fatalf("expected the viewed state to be unloaded, got ok=%v err=%v", ok, err)
	}
}

func TestFailedReconnectStartsNewMatch(t *testing.T) {
	p, store := newTestPlayer(t)

	gone := httptest.NewServer(http.NotFoundHandler())
	deadURL := gone.URL + "/match/abcd1234"
	gone.Close()

	old := session.New(session.Options{MatchID: "abcd1234", Role: match.RolePlayer})
	go old.Run(p.ctx)

	base := reconnect.Snapshot{MatchID: "abcd1234", Role: match.RolePlayer, Mark: match.O, PeerURL: deadURL}
	sess, next, err := p.reconnectOrRestart(old, base, played(t, 4))
	if err != nil {
		t.Fatalf("expected a new match, got %v", err)
	}
	t.Cleanup(func() {
		sess.Leave()
		<-sess.Done()
	})

	if !next.Acceptor || next.MatchID == "abcd1234" {
		t.Fatalf("expected to host a new match, got %+v", next)
	}
	if _, ok := p.matches.get(next.MatchID); !ok {
		t.Fatalf("new match %s not registered", next.MatchID)
	}
	if p.mgr.State() != reconnect.Active {
		t.Fatalf("manager in %s, want active", p.mgr.State())
	}
	if _, ok, _ := store.Load(context.Background(), "tab"); ok {
		t.Fatalf("stale snapshot left behind")
	}

	select {
	case <-old.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("old session still running")
	}
}
