/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"github.com/Seednode/fadetoe/internal/match"
	"github.com/Seednode/fadetoe/internal/protocol"
)

// BroadcastToSpectators pushes the current state to every identified
// spectator. Spectators that cannot take the frame are dropped. Must be
// called from the session goroutine.
func (s *Session) BroadcastToSpectators() {
	if !s.opts.Acceptor {
		return
	}

	data, err := protocol.Encode(protocol.GameState(s.state))
	if err != nil {
		s.opts.Logf("GAMES: encoding state for spectators failed: %v", err)
		return
	}

	for _, rec := range s.records {
		if rec.role != match.RoleSpectator {
			continue
		}

		if err := rec.ch.Send(data); err != nil {
			s.opts.Logf("GAMES: dropping spectator %s on match %s: %v", rec.id, s.opts.MatchID, err)
			s.drop(rec, err)
		}
	}
}

// UpdateSpectatorCount recounts spectators and reports a change.
func (s *Session) UpdateSpectatorCount() {
	n := 0
	for _, rec := range s.records {
		if rec.role == match.RoleSpectator {
			n++
		}
	}

	if n == s.spectators {
		return
	}
	s.spectators = n

	s.emit(Event{Kind: SpectatorCountChanged, Spectators: n})
}
