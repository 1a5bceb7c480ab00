/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package reconnect persists an interrupted session and lets the same tab
// rejoin its match within a bounded window.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Seednode/fadetoe/internal/match"
)

var (
	ErrNoSnapshot      = errors.New("no persisted session")
	ErrWindowExpired   = errors.New("reconnection window expired")
	ErrReconnectFailed = errors.New("reconnection failed")
	ErrNotPending      = errors.New("no reconnection pending")
)

type State int

const (
	Active State = iota
	PersistedPending
	Rejoining
	Cleared
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case PersistedPending:
		return "persisted-pending"
	case Rejoining:
		return "rejoining"
	case Cleared:
		return "cleared"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Rejoiner re-establishes the link described by a snapshot and returns the
// authoritative state reported by the peer.
type Rejoiner interface {
	Rejoin(ctx context.Context, snap Snapshot) (match.State, error)
}

type RejoinFunc func(ctx context.Context, snap Snapshot) (match.State, error)

func (f RejoinFunc) Rejoin(ctx context.Context, snap Snapshot) (match.State, error) {
	return f(ctx, snap)
}

type Options struct {
	// Window is how long a persisted snapshot stays eligible for rejoin.
	Window time.Duration

	Now  func() time.Time
	Logf func(format string, args ...any)
}

type Manager struct {
	store Store
	key   string
	opts  Options

	mu      sync.Mutex
	state   State
	pending *Snapshot
	cancel  context.CancelFunc
	attempt uint64
}

// NewManager returns a manager for the snapshot stored under key, in the
// Active state.
func NewManager(store Store, key string, opts Options) *Manager {
	if opts.Window <= 0 {
		opts.Window = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	return &Manager{store: store, key: key, opts: opts}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Window() time.Duration { return m.opts.Window }

// Begin marks the start of a fresh match and drops any stale snapshot.
func (m *Manager) Begin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopAttemptLocked()
	m.pending = nil
	m.state = Active

	return m.store.Clear(ctx, m.key)
}

// Persist records snap after an accepted move. It does nothing unless a match
// is live.
func (m *Manager) Persist(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Active && m.state != Rejoining {
		return nil
	}

	snap.SavedAt = m.opts.Now()
	return m.store.Save(ctx, m.key, snap)
}

// Unload writes snap on the way out and leaves it pending for the next start.
func (m *Manager) Unload(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Active && m.state != Rejoining {
		return nil
	}

	m.stopAttemptLocked()

	snap.SavedAt = m.opts.Now()
	if err := m.store.Save(ctx, m.key, snap); err != nil {
		return err
	}
	m.state = PersistedPending

	m.opts.Logf("STORE: persisted match %s for rejoin within %s", snap.MatchID, m.opts.Window)

	return nil
}

// Check reads the persisted snapshot once. A snapshot older than the window
// is cleared and reported as ErrWindowExpired.
func (m *Manager) Check(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok, err := m.store.Load(ctx, m.key)
	if err != nil {
		// Unreadable data cannot be resumed.
		m.clearLocked(ctx)
		return Snapshot{}, err
	}
	if !ok {
		m.pending = nil
		m.state = Cleared
		return Snapshot{}, ErrNoSnapshot
	}

	if err := m.withinWindowLocked(ctx, snap); err != nil {
		return Snapshot{}, err
	}

	m.pending = &snap
	m.state = PersistedPending

	return snap, nil
}

func (m *Manager) withinWindowLocked(ctx context.Context, snap Snapshot) error {
	elapsed := m.opts.Now().Sub(snap.SavedAt)
	if elapsed <= m.opts.Window {
		return nil
	}

	m.opts.Logf("STORE: session for match %s expired %s ago", snap.MatchID, (elapsed - m.opts.Window).Round(time.Millisecond))
	if err := m.clearLocked(ctx); err != nil {
		return errors.Join(ErrWindowExpired, err)
	}
	return ErrWindowExpired
}

// Attempt runs a single rejoin through r. On success the peer's state is
// returned and persisted, and the manager is Active again. Any failure
// clears the snapshot; there is no retry.
func (m *Manager) Attempt(ctx context.Context, r Rejoiner) (match.State, error) {
	m.mu.Lock()

	if m.state != PersistedPending || m.pending == nil {
		m.mu.Unlock()
		return match.State{}, ErrNotPending
	}

	snap := *m.pending
	if err := m.withinWindowLocked(ctx, snap); err != nil {
		m.mu.Unlock()
		return match.State{}, err
	}

	actx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.attempt++
	attempt := m.attempt
	m.state = Rejoining

	m.mu.Unlock()

	m.opts.Logf("STORE: rejoining match %s", snap.MatchID)
	st, err := r.Rejoin(actx, snap)

	m.mu.Lock()
	defer m.mu.Unlock()

	if attempt != m.attempt || m.state != Rejoining {
		// Abandoned or superseded while in flight.
		cancel()
		return match.State{}, fmt.Errorf("%w: %w", ErrReconnectFailed, context.Canceled)
	}
	m.stopAttemptLocked()

	if err == nil {
		err = match.Validate(st)
	}
	if err != nil {
		m.opts.Logf("STORE: rejoining match %s failed: %v", snap.MatchID, err)
		m.clearLocked(ctx)
		return match.State{}, fmt.Errorf("%w: %w", ErrReconnectFailed, err)
	}

	m.pending = nil
	m.state = Active

	snap.State = st.Clone()
	snap.SavedAt = m.opts.Now()
	if err := m.store.Save(ctx, m.key, snap); err != nil {
		m.opts.Logf("STORE: saving rejoined match %s failed: %v", snap.MatchID, err)
	}

	return st, nil
}

// Abandon cancels any attempt in flight and clears the snapshot. Safe to
// call in any state.
func (m *Manager) Abandon(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopAttemptLocked()
	m.attempt++

	return m.clearLocked(ctx)
}

func (m *Manager) stopAttemptLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Manager) clearLocked(ctx context.Context) error {
	m.pending = nil
	m.state = Cleared
	return m.store.Clear(ctx, m.key)
}
