/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package reconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Seednode/fadetoe/internal/match"
)

// Snapshot is what survives an interrupted session.
type Snapshot struct {
	MatchID  string      `json:"matchId"`
	Role     match.Role  `json:"localRole"`
	Mark     match.Mark  `json:"symbol,omitempty"`
	Acceptor bool        `json:"acceptor"`
	PeerURL  string      `json:"peerUrl,omitempty"`
	State    match.State `json:"state"`
	SavedAt  time.Time   `json:"savedAt"`
}

func (s Snapshot) marshal() ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if err := match.Validate(s.State); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return s, nil
}

// Store keeps at most one snapshot per key. Load reports false when there is
// none.
type Store interface {
	Save(ctx context.Context, key string, snap Snapshot) error
	Load(ctx context.Context, key string) (Snapshot, bool, error)
	Clear(ctx context.Context, key string) error
}

type MemoryStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (m *MemoryStore) Save(_ context.Context, key string, snap Snapshot) error {
	data, err := snap.marshal()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = data

	return nil
}

func (m *MemoryStore) Load(_ context.Context, key string) (Snapshot, bool, error) {
	m.mu.Lock()
	data, ok := m.items[key]
	m.mu.Unlock()

	if !ok {
		return Snapshot{}, false, nil
	}

	snap, err := unmarshalSnapshot(data)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
