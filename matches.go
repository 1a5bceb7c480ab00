/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"sync"

	"github.com/Seednode/fadetoe/internal/session"
	"github.com/Seednode/fadetoe/internal/transport"
)

type hostedMatch struct {
	session  *session.Session
	listener *transport.Listener
}

// MatchManager holds the matches this process hosts, keyed by match ID, so
// each /match/:matchid routes to its own session.
type MatchManager struct {
	mu      sync.Mutex
	matches map[string]*hostedMatch
	current string
}

func newMatchManager() *MatchManager {
	return &MatchManager{
		matches: make(map[string]*hostedMatch),
	}
}

// add registers s and makes it the live match. It is dropped again once the
// session stops.
func (mm *MatchManager) add(cfg *Config, s *session.Session) {
	hm := &hostedMatch{
		session: s,
		listener: transport.NewListener(s, transport.Options{
			Logf: logger(cfg),
		}),
	}

	mm.mu.Lock()
	mm.matches[s.MatchID()] = hm
	mm.current = s.MatchID()
	mm.mu.Unlock()

	go func() {
		<-s.Done()

		mm.mu.Lock()
		defer mm.mu.Unlock()

		if mm.matches[s.MatchID()] == hm {
			delete(mm.matches, s.MatchID())
		}
		if mm.current == s.MatchID() {
			mm.current = ""
		}

		logf(cfg, "GAMES: match %s closed", s.MatchID())
	}()
}

func (mm *MatchManager) get(matchID string) (*hostedMatch, bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	hm, ok := mm.matches[matchID]
	return hm, ok
}

// live returns the ID of the match most recently started.
func (mm *MatchManager) live() (string, bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	return mm.current, mm.current != ""
}

func (mm *MatchManager) newMatchID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		mm.mu.Lock()
		_, exists := mm.matches[id]
		mm.mu.Unlock()

		if !exists {
			return id
		}
	}
}
