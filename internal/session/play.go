/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"errors"

	"github.com/Seednode/fadetoe/internal/match"
	"github.com/Seednode/fadetoe/internal/protocol"
)

func (s *Session) send(rec *record, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return rec.ch.Send(data)
}

// localMove applies a move made at this end and shares the new state.
func (s *Session) localMove(cell int) error {
	if s.opts.Role != match.RolePlayer {
		return match.ErrSpectator
	}

	opp := s.opponent()
	if opp == nil {
		return ErrNoOpponent
	}

	next := s.state.Clone()
	res, err := next.Submit(s.opts.Role, s.mark, cell)
	if err != nil {
		return err
	}
	s.state = next

	s.emit(Event{
		Kind:    StateChanged,
		State:   s.state.Clone(),
		Local:   true,
		Placed:  res.Cell,
		Evicted: res.Evicted,
	})

	if err := s.send(opp, protocol.GameState(s.state)); err != nil {
		s.opts.Logf("GAMES: sending move to %s failed: %v", opp.id, err)
		s.drop(opp, err)
	}
	s.BroadcastToSpectators()
	s.persist()

	return nil
}

// remoteState folds a state received from the opposing player into ours.
func (s *Session) remoteState(rec *record, st match.State) {
	next, outcome, err := match.Reconcile(s.state, st, s.mark.Other())
	if errors.Is(err, match.ErrIllegalMove) {
		s.opts.Logf("GAMES: rejected move from %s on match %s: %v", rec.id, s.opts.MatchID, err)
		s.emit(Event{Kind: IllegalMove, ConnID: rec.id, Err: err})

		// Push our state back so the sender rolls its board back to it.
		if err := s.send(rec, protocol.GameState(s.state)); err != nil {
			s.drop(rec, err)
		}
		return
	}
	if err != nil {
		s.violation(rec, err)
		return
	}

	if outcome == match.Duplicate {
		return
	}

	if outcome == match.Replaced {
		s.opts.Logf("GAMES: adopting state at turn %d from %s on match %s", next.Turn, rec.id, s.opts.MatchID)
	}

	s.state = next
	s.emit(Event{
		Kind:    StateChanged,
		State:   s.state.Clone(),
		Placed:  s.state.LastPlaced,
		Evicted: s.state.LastDisappeared,
	})

	s.BroadcastToSpectators()
	s.persist()
}

// mirror adopts a state pushed to a spectator.
func (s *Session) mirror(st match.State) {
	if s.state.Equal(st) {
		return
	}

	s.state = st.Clone()
	s.emit(Event{
		Kind:    StateChanged,
		State:   s.state.Clone(),
		Placed:  s.state.LastPlaced,
		Evicted: s.state.LastDisappeared,
	})
}

func (s *Session) startRematch() error {
	if !s.opts.Acceptor {
		return ErrNotAcceptor
	}
	if s.state.Status == match.InProgress {
		return ErrMatchInProgress
	}

	s.state = match.New()
	s.opts.Logf("GAMES: rematch started on match %s", s.opts.MatchID)

	s.emit(Event{
		Kind:    StateChanged,
		State:   s.state.Clone(),
		Local:   true,
		Placed:  match.NoCell,
		Evicted: match.NoCell,
	})

	if opp := s.opponent(); opp != nil {
		if err := s.send(opp, protocol.GameState(s.state)); err != nil {
			s.drop(opp, err)
		}
	}
	s.BroadcastToSpectators()
	s.persist()

	return nil
}
