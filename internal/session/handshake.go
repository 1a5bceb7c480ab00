/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"fmt"
	"time"

	"github.com/Seednode/fadetoe/internal/match"
	"github.com/Seednode/fadetoe/internal/protocol"
	"github.com/Seednode/fadetoe/internal/transport"
)

func (s *Session) handleOpen(ch transport.Channel) {
	rec := &record{
		id:       ch.ID(),
		role:     match.RoleUnidentified,
		ch:       ch,
		lastSeen: time.Now(),
	}
	s.records[rec.id] = rec

	id := rec.id
	rec.timer = time.AfterFunc(s.opts.HandshakeTimeout, func() {
		select {
		case s.expired <- id:
		case <-s.done:
		}
	})

	if !s.opts.Acceptor {
		s.opts.Logf("PEERS: connected to match %s, waiting for identify request", s.opts.MatchID)
		return
	}

	s.opts.Logf("PEERS: %s connected to match %s, requesting identity", id, s.opts.MatchID)

	if err := s.send(rec, protocol.IdentifyRequest()); err != nil {
		s.opts.Logf("PEERS: identify request to %s failed: %v", id, err)
		s.drop(rec, err)
	}
}

func (s *Session) handleExpired(id string) {
	rec, ok := s.records[id]
	if !ok || rec.role != match.RoleUnidentified {
		return
	}

	s.opts.Logf("PEERS: handshake with %s on match %s timed out", id, s.opts.MatchID)
	s.emit(Event{Kind: HandshakeTimedOut, ConnID: id, Err: ErrHandshakeTimeout})

	// Rejected, so forget does not report a second loss.
	rec.role = match.RoleRejected
	if !s.opts.Acceptor {
		s.markReady(ErrHandshakeTimeout)
	}
	s.drop(rec, ErrHandshakeTimeout)
}

func (s *Session) handleFrame(f frame) {
	rec, ok := s.records[f.ch.ID()]
	if !ok {
		return
	}
	rec.lastSeen = time.Now()

	msg, err := protocol.Decode(f.data)
	if err != nil {
		s.violation(rec, err)
		return
	}

	if s.opts.Acceptor {
		s.acceptorFrame(rec, msg)
	} else {
		s.joinerFrame(rec, msg)
	}
}

func (s *Session) violation(rec *record, err error) {
	s.opts.Logf("PEERS: closing %s on match %s: %v", rec.id, s.opts.MatchID, err)
	s.emit(Event{Kind: ProtocolViolation, ConnID: rec.id, Err: err})

	if !s.opts.Acceptor && rec.role == match.RoleUnidentified {
		s.markReady(err)
	}
	s.drop(rec, err)
}

func unexpected(msg protocol.Message, role match.Role) error {
	return fmt.Errorf("%w: unexpected %s from %s connection", protocol.ErrProtocolViolation, msg.Type, role)
}

func (s *Session) acceptorFrame(rec *record, msg protocol.Message) {
	switch rec.role {
	case match.RoleUnidentified:
		if msg.Type != protocol.TypeIdentify {
			s.violation(rec, unexpected(msg, rec.role))
			return
		}
		s.stopTimer(rec)
		s.identify(rec, msg.Role)

	case match.RolePlayer:
		if msg.Type != protocol.TypeGameState {
			s.violation(rec, unexpected(msg, rec.role))
			return
		}
		s.remoteState(rec, *msg.State)

	case match.RoleSpectator:
		if msg.Type != protocol.TypeGameState {
			s.violation(rec, unexpected(msg, rec.role))
			return
		}
		s.opts.Logf("GAMES: ignoring state from spectator %s on match %s", rec.id, s.opts.MatchID)
		s.emit(Event{Kind: IllegalMove, ConnID: rec.id, Err: match.ErrSpectator})
	}
}

// identify assigns a role to a connection that has just answered the
// identify request. The acceptor holds one of the two player slots.
func (s *Session) identify(rec *record, role match.Role) {
	if role == match.RolePlayer && s.players() >= 2 {
		s.opts.Logf("GAMES: match %s is full, turning away %s", s.opts.MatchID, rec.id)
		_ = s.send(rec, protocol.RoomFull())
		rec.role = match.RoleRejected
		s.drop(rec, ErrRoomFull)
		return
	}

	rec.role = role
	s.opts.Logf("GAMES: %s joined match %s as %s", rec.id, s.opts.MatchID, role)

	if err := s.send(rec, protocol.GameState(s.state)); err != nil {
		s.drop(rec, err)
		return
	}

	s.emit(Event{Kind: RoleConfirmed, Role: role, ConnID: rec.id, State: s.state.Clone()})
	s.emit(Event{Kind: PeerConnected, Role: role, ConnID: rec.id})

	switch role {
	case match.RolePlayer:
		s.peerLost = false
		s.markReady(nil)
	case match.RoleSpectator:
		s.UpdateSpectatorCount()
	}
}

func (s *Session) joinerFrame(rec *record, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeIdentifyRequest:
		if rec.asked || rec.role != match.RoleUnidentified {
			s.violation(rec, fmt.Errorf("%w: repeated identify request", protocol.ErrProtocolViolation))
			return
		}
		rec.asked = true
		if err := s.send(rec, protocol.Identify(s.opts.Role)); err != nil {
			s.drop(rec, err)
		}

	case protocol.TypeRoomFull:
		if rec.role != match.RoleUnidentified {
			s.violation(rec, unexpected(msg, rec.role))
			return
		}
		s.opts.Logf("GAMES: match %s is full", s.opts.MatchID)
		s.emit(Event{Kind: RoomFull, ConnID: rec.id, Err: ErrRoomFull})
		rec.role = match.RoleRejected
		s.markReady(ErrRoomFull)
		s.drop(rec, ErrRoomFull)

	case protocol.TypeGameState:
		if !rec.asked {
			s.violation(rec, unexpected(msg, rec.role))
			return
		}
		if rec.role == match.RoleUnidentified {
			s.confirm(rec, *msg.State)
			return
		}
		if s.opts.Role == match.RoleSpectator {
			s.mirror(*msg.State)
			return
		}
		s.remoteState(rec, *msg.State)

	default:
		s.violation(rec, unexpected(msg, rec.role))
	}
}

// confirm completes the joiner side of the handshake. The acceptor's state
// is authoritative and replaces whatever was resumed locally.
func (s *Session) confirm(rec *record, st match.State) {
	s.stopTimer(rec)

	// The acceptor is always a player.
	rec.role = match.RolePlayer
	s.confirmed = true
	s.peerLost = false

	// A resumed player whose last move never reached the acceptor keeps it
	// and sends it on; otherwise the acceptor's state wins.
	ahead := false
	if s.opts.Initial != nil && s.opts.Role == match.RolePlayer {
		_, outcome, err := match.Reconcile(st, s.state, s.mark)
		ahead = err == nil && outcome == match.Applied
	}
	if !ahead {
		s.state = st.Clone()
	}

	s.opts.Logf("GAMES: joined match %s as %s", s.opts.MatchID, s.opts.Role)

	s.emit(Event{Kind: RoleConfirmed, Role: s.opts.Role, ConnID: rec.id, State: s.state.Clone()})
	s.emit(Event{Kind: PeerConnected, Role: match.RolePlayer, ConnID: rec.id})
	s.emit(Event{
		Kind:    StateChanged,
		State:   s.state.Clone(),
		Placed:  s.state.LastPlaced,
		Evicted: s.state.LastDisappeared,
	})

	s.persist()

	if ahead {
		s.opts.Logf("GAMES: resending move on %d to match %s", s.state.LastPlaced, s.opts.MatchID)
		if err := s.send(rec, protocol.GameState(s.state)); err != nil {
			s.drop(rec, err)
			s.markReady(ErrConnectionLost)
			return
		}
	}
	s.markReady(nil)
}
