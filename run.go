/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Seednode/fadetoe/internal/match"
	"github.com/Seednode/fadetoe/internal/reconnect"
	"github.com/Seednode/fadetoe/internal/session"
	"github.com/Seednode/fadetoe/internal/transport"
)

// player drives one local participant through hosting or joining, rejoin
// and play.
type player struct {
	ctx     context.Context
	cfg     *Config
	con     *Console
	mgr     *reconnect.Manager
	matches *MatchManager
	serving bool

	// saved is the last state handed to the store by the current session.
	// The console view is rebuilt from events, which may be dropped.
	mu    sync.Mutex
	saved *match.State
}

func run(ctx context.Context, cfg *Config, joinURL string) error {
	if cfg.session == "" {
		cfg.session = uuid.NewString()
	}

	logf(cfg, "START: fadetoe v%s, session %s", releaseVersion, cfg.session)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	p := &player{
		ctx: ctx,
		cfg: cfg,
		con: newConsole(os.Stdin, os.Stdout),
		mgr: reconnect.NewManager(store, cfg.session, reconnect.Options{
			Window: cfg.reconnectTimeout,
			Logf:   logger(cfg),
		}),
		matches: newMatchManager(),
	}

	sess, base := p.resume(ctx)
	if sess == nil {
		sess, base, err = p.fresh(ctx, joinURL)
		if err != nil {
			return err
		}
	}

	return p.play(sess, base)
}

// fresh clears any stale snapshot and starts a new match, joining joinURL
// when one is given.
func (p *player) fresh(ctx context.Context, joinURL string) (*session.Session, reconnect.Snapshot, error) {
	if err := p.mgr.Begin(ctx); err != nil {
		logError(err)
	}

	if joinURL == "" {
		return p.host(p.matches.newMatchID(), nil)
	}
	return p.join(ctx, joinURL)
}

func (p *player) persister(base reconnect.Snapshot) func(match.State) {
	ctx := context.WithoutCancel(p.ctx)

	p.mu.Lock()
	p.saved = nil
	p.mu.Unlock()

	return func(st match.State) {
		p.mu.Lock()
		saved := st.Clone()
		p.saved = &saved
		p.mu.Unlock()

		snap := base
		snap.State = st
		if err := p.mgr.Persist(ctx, snap); err != nil {
			logf(p.cfg, "STORE: saving match %s failed: %v", base.MatchID, err)
		}
	}
}

// latest returns the last persisted state, or seen if nothing has been
// persisted yet.
func (p *player) latest(seen match.State) match.State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.saved == nil {
		return seen
	}
	return p.saved.Clone()
}

// host starts serving a match as its acceptor. initial resumes a persisted
// board.
func (p *player) host(matchID string, initial *match.State) (*session.Session, reconnect.Snapshot, error) {
	if !p.serving {
		if err := ServePage(p.ctx, p.cfg, p.matches); err != nil {
			return nil, reconnect.Snapshot{}, err
		}
		p.serving = true
	}

	link := shareURL(p.cfg, matchID)
	base := reconnect.Snapshot{
		MatchID:  matchID,
		Role:     match.RolePlayer,
		Mark:     match.X,
		Acceptor: true,
		PeerURL:  link,
	}

	sess := session.New(session.Options{
		MatchID:          matchID,
		Acceptor:         true,
		Initial:          initial,
		HandshakeTimeout: p.cfg.handshakeTimeout,
		Persist:          p.persister(base),
		Logf:             logger(p.cfg),
	})
	p.matches.add(p.cfg, sess)
	go sess.Run(p.ctx)

	p.con.ShareLink(link)

	return sess, base, nil
}

func wantsSpectate(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Has("spectate")
}

func matchIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	p := strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws")
	id := path.Base(p)
	if id == "" || id == "." || id == "/" || id == "match" {
		return "", fmt.Errorf("no match id in %q", rawURL)
	}
	return id, nil
}

// join connects to a shared match, falling back to spectating when the
// match is full and that is allowed.
func (p *player) join(ctx context.Context, rawURL string) (*session.Session, reconnect.Snapshot, error) {
	role := match.RolePlayer
	if p.cfg.spectate || wantsSpectate(rawURL) {
		role = match.RoleSpectator
	}

	sess, base, err := p.dial(ctx, rawURL, role, nil)
	if errors.Is(err, session.ErrRoomFull) && role == match.RolePlayer {
		p.con.Notice("That match already has two players.")
		if !p.cfg.spectateOnFull {
			return nil, base, err
		}
		p.con.Notice("Watching instead.")
		sess, base, err = p.dial(ctx, rawURL, match.RoleSpectator, nil)
	}

	return sess, base, err
}

// dial runs a joiner session and waits until the acceptor has confirmed it.
func (p *player) dial(ctx context.Context, rawURL string, role match.Role, initial *match.State) (*session.Session, reconnect.Snapshot, error) {
	matchID, err := matchIDFromURL(rawURL)
	if err != nil {
		return nil, reconnect.Snapshot{}, err
	}

	base := reconnect.Snapshot{
		MatchID: matchID,
		Role:    role,
		PeerURL: rawURL,
	}
	if role == match.RolePlayer {
		base.Mark = match.O
	}

	sess := session.New(session.Options{
		MatchID:          matchID,
		Role:             role,
		Initial:          initial,
		HandshakeTimeout: p.cfg.handshakeTimeout,
		Persist:          p.persister(base),
		Logf:             logger(p.cfg),
	})
	go sess.Run(p.ctx)

	_, err = transport.Dial(ctx, rawURL, p.cfg.relays, sess, transport.Options{
		ConnectTimeout: p.cfg.connectTimeout,
		Logf:           logger(p.cfg),
	})
	if err != nil {
		sess.Leave()
		return nil, base, err
	}

	wctx, cancel := context.WithTimeout(ctx, p.cfg.handshakeTimeout+p.cfg.connectTimeout)
	defer cancel()

	if _, err := sess.Ready(wctx); err != nil {
		sess.Leave()
		return nil, base, err
	}

	return sess, base, nil
}

func (p *player) wantsRejoin(ctx context.Context, snap reconnect.Snapshot) bool {
	switch p.cfg.rejoin {
	case rejoinAlways:
		return true
	case rejoinNever:
		return false
	}

	left := p.mgr.Window() - time.Since(snap.SavedAt)
	return p.con.Confirm(ctx, fmt.Sprintf("Rejoin match %s (turn %d, %s left)?",
		snap.MatchID, snap.State.Turn, left.Round(time.Second)))
}

// resume looks for an interrupted session and, if the user wants it back,
// rejoins it. A nil session means a fresh match should start.
func (p *player) resume(ctx context.Context) (*session.Session, reconnect.Snapshot) {
	snap, err := p.mgr.Check(ctx)
	switch {
	case errors.Is(err, reconnect.ErrNoSnapshot):
		return nil, reconnect.Snapshot{}
	case errors.Is(err, reconnect.ErrWindowExpired):
		p.con.Notice("The interrupted match can no longer be rejoined.")
		return nil, reconnect.Snapshot{}
	case err != nil:
		logError(err)
		return nil, reconnect.Snapshot{}
	}

	if !p.wantsRejoin(ctx, snap) {
		if err := p.mgr.Abandon(ctx); err != nil {
			logError(err)
		}
		p.con.Notice("Starting a new match instead.")
		return nil, reconnect.Snapshot{}
	}

	return p.rejoin(ctx)
}

// rejoin makes the single reconnection attempt for a pending snapshot.
func (p *player) rejoin(ctx context.Context) (*session.Session, reconnect.Snapshot) {
	var (
		sess *session.Session
		base reconnect.Snapshot
	)

	_, err := p.mgr.Attempt(ctx, reconnect.RejoinFunc(func(actx context.Context, snap reconnect.Snapshot) (match.State, error) {
		var err error

		if snap.Acceptor {
			p.con.Notice("Waiting up to %s for the opponent to return to match %s.", p.cfg.connectTimeout, snap.MatchID)
			sess, base, err = p.host(snap.MatchID, &snap.State)
			if err != nil {
				return match.State{}, err
			}

			wctx, cancel := context.WithTimeout(actx, p.cfg.connectTimeout)
			defer cancel()

			v, err := sess.Ready(wctx)
			if err != nil {
				sess.Leave()
				sess = nil
				return match.State{}, err
			}
			return v.State, nil
		}

		sess, base, err = p.dial(actx, snap.PeerURL, snap.Role, &snap.State)
		if err != nil {
			return match.State{}, err
		}

		v, err := sess.Snapshot(actx)
		if err != nil {
			sess.Leave()
			sess = nil
			return match.State{}, err
		}
		return v.State, nil
	}))
	if err != nil {
		if sess != nil {
			sess.Leave()
		}
		p.con.Notice("Could not rejoin: %v", err)
		return nil, reconnect.Snapshot{}
	}

	p.con.Notice("Rejoined match %s.", base.MatchID)

	return sess, base
}

// interrupt keeps the current match open for rejoin.
func (p *player) interrupt(base reconnect.Snapshot, seen match.State) {
	snap := base
	snap.State = p.latest(seen)

	if err := p.mgr.Unload(context.WithoutCancel(p.ctx), snap); err != nil {
		logError(err)
		return
	}

	p.con.Notice("Match %s kept for %s. Rejoin with: fadetoe --session %s%s",
		base.MatchID, p.mgr.Window(), p.cfg.session, rejoinCommand(base))
}

func rejoinCommand(base reconnect.Snapshot) string {
	if base.Acceptor {
		return ""
	}
	return " join " + strconv.Quote(base.PeerURL)
}

func apply(v session.View, e session.Event) session.View {
	switch e.Kind {
	case session.StateChanged:
		v.State = e.State
	case session.RoleConfirmed:
		if !v.Acceptor {
			v.Confirmed = true
			v.State = e.State
		}
	case session.SpectatorCountChanged:
		v.Spectators = e.Spectators
	case session.PeerConnected:
		if e.Role == match.RolePlayer {
			v.PeerLost = false
		}
	case session.ConnectionLost:
		v.PeerLost = true
	}
	return v
}

// play runs the console until the user leaves or the process is
// interrupted.
func (p *player) play(sess *session.Session, base reconnect.Snapshot) error {
	ctx := p.ctx

	v, err := sess.Snapshot(ctx)
	if err != nil {
		return err
	}
	p.con.Render(v)
	p.con.Help()

	lines := p.con.Lines()
	events := sess.Events()

	for {
		select {
		case <-ctx.Done():
			p.interrupt(base, v.State)
			return nil

		case e, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					events = nil
					continue
				}
				return nil
			}
			v = apply(v, e)
			p.con.Event(v, e)

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}

			switch line {
			case "":
				p.con.Render(v)
			case "?", "h", "help":
				p.con.Help()
			case "q", "quit":
				if err := p.mgr.Abandon(ctx); err != nil {
					logError(err)
				}
				sess.Leave()
				p.con.Notice("Left match %s.", base.MatchID)
				return nil
			case "r":
				if err := sess.Rematch(ctx); err != nil {
					p.con.Notice("%v", err)
				}
			case "c":
				if v.Acceptor || !v.PeerLost {
					p.con.Notice("Nothing to reconnect.")
					continue
				}
				next, nextBase, err := p.reconnectOrRestart(sess, base, v.State)
				if err != nil {
					return err
				}
				sess, base, events = next, nextBase, next.Events()
				if v, err = sess.Snapshot(ctx); err != nil {
					return err
				}
				p.con.Render(v)
			default:
				n, err := strconv.Atoi(line)
				if err != nil {
					p.con.Help()
					continue
				}
				if err := sess.SubmitMove(ctx, n-1); err != nil {
					p.con.Notice("%s", moveProblem(err))
				}
			}
		}
	}
}

// reconnect redials a lost acceptor through the same windowed procedure
// used after a restart.
func (p *player) reconnect(old *session.Session, base reconnect.Snapshot, seen match.State) (*session.Session, reconnect.Snapshot, bool) {
	old.Leave()

	snap := base
	snap.State = p.latest(seen)
	if err := p.mgr.Unload(p.ctx, snap); err != nil {
		logError(err)
		return nil, base, false
	}
	if _, err := p.mgr.Check(p.ctx); err != nil {
		p.con.Notice("Could not rejoin: %v", err)
		return nil, base, false
	}

	sess, next := p.rejoin(p.ctx)
	if sess == nil {
		return nil, base, false
	}
	return sess, next, true
}

// reconnectOrRestart reconnects to a lost acceptor. When that fails it
// starts over the way a failed rejoin at startup does: a new join of the
// same link, or a newly hosted match if the link is gone.
func (p *player) reconnectOrRestart(old *session.Session, base reconnect.Snapshot, seen match.State) (*session.Session, reconnect.Snapshot, error) {
	if sess, next, ok := p.reconnect(old, base, seen); ok {
		return sess, next, nil
	}

	p.con.Notice("Starting a new match instead.")

	sess, next, err := p.fresh(p.ctx, base.PeerURL)
	if err == nil {
		return sess, next, nil
	}

	p.con.Notice("Could not join %s: %v", base.PeerURL, err)
	return p.fresh(p.ctx, "")
}
