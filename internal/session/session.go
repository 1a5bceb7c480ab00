/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package session runs one end of a match: it identifies incoming
// connections, keeps the authoritative match state, relays moves between the
// two players and mirrors the board to spectators.
//
// All state is owned by a single goroutine started with Run. Transport
// callbacks and local commands are posted to it over channels.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/Seednode/fadetoe/internal/match"
	"github.com/Seednode/fadetoe/internal/transport"
)

var (
	ErrStopped          = errors.New("session stopped")
	ErrNoOpponent       = errors.New("no opponent connected")
	ErrNotAcceptor      = errors.New("only the hosting player can start a rematch")
	ErrMatchInProgress  = errors.New("match still in progress")
	ErrRoomFull         = errors.New("room is full")
	ErrHandshakeTimeout = errors.New("handshake timed out")
	ErrConnectionLost   = errors.New("connection lost")
)

type Options struct {
	MatchID string

	// Acceptor marks the end that created the match. It always plays X.
	Acceptor bool

	// Role is what a joiner asks for. Ignored for the acceptor.
	Role match.Role

	// Initial resumes from a persisted state instead of an empty board.
	Initial *match.State

	HandshakeTimeout time.Duration
	EventBuffer      int

	// Persist is called from the session goroutine after every state change.
	Persist func(match.State)

	Logf func(format string, args ...any)
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.Logf == nil {
		o.Logf = func(string, ...any) {}
	}
	if o.Persist == nil {
		o.Persist = func(match.State) {}
	}
	if o.Acceptor || o.Role == match.RoleUnset {
		o.Role = match.RolePlayer
	}
	return o
}

// record tracks one open channel and what it has been identified as.
type record struct {
	id       string
	role     match.Role
	ch       transport.Channel
	lastSeen time.Time
	timer    *time.Timer
	asked    bool // joiner: identify already sent
}

// View is a point-in-time copy of the session for presentation.
type View struct {
	MatchID    string
	Acceptor   bool
	Role       match.Role
	Mark       match.Mark
	State      match.State
	Spectators int
	Confirmed  bool
	PeerLost   bool
}

type frame struct {
	ch   transport.Channel
	data []byte
}

type closeNote struct {
	ch  transport.Channel
	err error
}

type moveRequest struct {
	cell  int
	reply chan error
}

type Session struct {
	opts Options

	// Channels into the session goroutine.
	opened   chan transport.Channel
	inbound  chan frame
	closed   chan closeNote
	expired  chan string
	moves    chan moveRequest
	rematch  chan chan error
	queries  chan chan View
	leave    chan struct{}
	events   chan Event
	done     chan struct{}
	ready    chan struct{}
	readyErr error

	// Owned by the session goroutine.
	records    map[string]*record
	state      match.State
	mark       match.Mark
	confirmed  bool
	peerLost   bool
	spectators int
}

func New(opts Options) *Session {
	opts = opts.withDefaults()

	s := &Session{
		opts:    opts,
		opened:  make(chan transport.Channel),
		inbound: make(chan frame),
		closed:  make(chan closeNote),
		expired: make(chan string),
		moves:   make(chan moveRequest),
		rematch: make(chan chan error),
		queries: make(chan chan View),
		leave:   make(chan struct{}),
		events:  make(chan Event, opts.EventBuffer),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
		records: make(map[string]*record),
		state:   match.New(),
	}

	if opts.Initial != nil {
		s.state = opts.Initial.Clone()
	}

	switch {
	case opts.Acceptor:
		s.mark = match.X
		s.confirmed = true
	case opts.Role == match.RolePlayer:
		s.mark = match.O
	}

	return s
}

func (s *Session) MatchID() string { return s.opts.MatchID }

// Events delivers session notifications. It is closed when Run returns.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run owns the session until ctx is cancelled or Leave is called. All open
// channels are closed on the way out.
func (s *Session) Run(ctx context.Context) {
	defer func() {
		for _, rec := range s.records {
			s.stopTimer(rec)
			_ = rec.ch.Close()
		}
		s.records = map[string]*record{}
		s.markReady(ErrStopped)
		close(s.done)
		close(s.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.leave:
			s.opts.Logf("GAMES: leaving match %s", s.opts.MatchID)
			return

		case ch := <-s.opened:
			s.handleOpen(ch)

		case f := <-s.inbound:
			s.handleFrame(f)

		case n := <-s.closed:
			if rec, ok := s.records[n.ch.ID()]; ok {
				s.forget(rec, n.err)
			}

		case id := <-s.expired:
			s.handleExpired(id)

		case req := <-s.moves:
			req.reply <- s.localMove(req.cell)

		case reply := <-s.rematch:
			reply <- s.startRematch()

		case reply := <-s.queries:
			reply <- s.view()
		}
	}
}

// OnOpen implements transport.Handler.
func (s *Session) OnOpen(c transport.Channel) {
	select {
	case s.opened <- c:
	case <-s.done:
		_ = c.Close()
	}
}

// OnMessage implements transport.Handler.
func (s *Session) OnMessage(c transport.Channel, data []byte) {
	select {
	case s.inbound <- frame{ch: c, data: data}:
	case <-s.done:
	}
}

// OnClose implements transport.Handler.
func (s *Session) OnClose(c transport.Channel, err error) {
	select {
	case s.closed <- closeNote{ch: c, err: err}:
	case <-s.done:
	}
}

// SubmitMove places the local player's mark on cell (0-8).
func (s *Session) SubmitMove(ctx context.Context, cell int) error {
	req := moveRequest{cell: cell, reply: make(chan error, 1)}

	select {
	case s.moves <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rematch resets a finished match. Only the acceptor may start one.
func (s *Session) Rematch(ctx context.Context) error {
	reply := make(chan error, 1)

	select {
	case s.rematch <- reply:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)

	select {
	case s.queries <- reply:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.done:
		return View{}, ErrStopped
	}

	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Leave ends the session and closes every channel. It does not wait for Run
// to return.
func (s *Session) Leave() {
	select {
	case s.leave <- struct{}{}:
	case <-s.done:
	}
}

// Ready waits until the local role is settled: for a joiner, until the
// acceptor confirms it or turns it away; for the acceptor, until a second
// player has identified.
func (s *Session) Ready(ctx context.Context) (View, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return View{}, ctx.Err()
	}

	if s.readyErr != nil {
		return View{}, s.readyErr
	}

	return s.Snapshot(ctx)
}

func (s *Session) markReady(err error) {
	select {
	case <-s.ready:
		return
	default:
	}
	s.readyErr = err
	close(s.ready)
}

func (s *Session) view() View {
	return View{
		MatchID:    s.opts.MatchID,
		Acceptor:   s.opts.Acceptor,
		Role:       s.opts.Role,
		Mark:       s.mark,
		State:      s.state.Clone(),
		Spectators: s.spectators,
		Confirmed:  s.confirmed,
		PeerLost:   s.peerLost,
	}
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.opts.Logf("GAMES: dropping %s event for match %s, consumer too slow", e.Kind, s.opts.MatchID)
	}
}

func (s *Session) persist() {
	s.opts.Persist(s.state.Clone())
}

// drop closes a channel and forgets it at once, so nothing more is sent to it.
func (s *Session) drop(rec *record, reason error) {
	_ = rec.ch.Close()
	s.forget(rec, reason)
}

// forget removes a record and reports what its departure means.
func (s *Session) forget(rec *record, err error) {
	if _, ok := s.records[rec.id]; !ok {
		return
	}
	delete(s.records, rec.id)
	s.stopTimer(rec)

	switch rec.role {
	case match.RolePlayer:
		s.opts.Logf("GAMES: player %s left match %s", rec.id, s.opts.MatchID)
		s.emit(Event{Kind: PeerDisconnected, Role: rec.role, ConnID: rec.id})

		if !s.opts.Acceptor || s.state.Status == match.InProgress {
			s.peerLost = true
			s.emit(Event{Kind: ConnectionLost, ConnID: rec.id, Err: connectionLost(err)})
		}

	case match.RoleSpectator:
		s.opts.Logf("GAMES: spectator %s left match %s", rec.id, s.opts.MatchID)
		s.emit(Event{Kind: PeerDisconnected, Role: rec.role, ConnID: rec.id})
		s.UpdateSpectatorCount()

	case match.RoleUnidentified:
		if !s.opts.Acceptor {
			s.emit(Event{Kind: ConnectionLost, ConnID: rec.id, Err: connectionLost(err)})
			s.markReady(connectionLost(err))
		}
	}
}

func connectionLost(err error) error {
	if err == nil {
		return ErrConnectionLost
	}
	return errors.Join(ErrConnectionLost, err)
}

func (s *Session) stopTimer(rec *record) {
	if rec.timer != nil {
		rec.timer.Stop()
		rec.timer = nil
	}
}

// opponent returns the connected player on the other side, if any.
func (s *Session) opponent() *record {
	for _, rec := range s.records {
		if rec.role == match.RolePlayer {
			return rec
		}
	}
	return nil
}

// players counts player slots in use, the acceptor included.
func (s *Session) players() int {
	n := 1
	for _, rec := range s.records {
		if rec.role == match.RolePlayer {
			n++
		}
	}
	return n
}
