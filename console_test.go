/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/fadetoe/internal/match"
	"github.com/Seednode/fadetoe/internal/session"
)

func played(t *testing.T, cells ...int) match.State {
	t.Helper()
	st := match.New()
	for _, c := range cells {
		if _, err := st.Submit(match.RolePlayer, st.CurrentTurn, c); err != nil {
			t.Fatalf("move %d: %v", c, err)
		}
	}
	return st
}

func TestRenderMarksFadingPiece(t *testing.T) {
	var out bytes.Buffer
	con := newConsole(strings.NewReader(""), &out)

	// X holds 0, 2 and 5, so 0 goes next.
	st := played(t, 0, 4, 2, 1, 5)
	con.Render(session.View{Role: match.RolePlayer, Mark: match.O, Confirmed: true, State: st})

	got := out.String()
	if !strings.Contains(got, " x | O | X ") {
		t.Fatalf("top row not rendered as expected:\n%s", got)
	}
	if !strings.Contains(got, "You are O. Your move.") {
		t.Fatalf("status line missing:\n%s", got)
	}
}

func TestStatusLine(t *testing.T) {
	won := played(t, 0, 4, 1, 5, 2)

	tests := []struct {
		name string
		view session.View
		want string
	}{
		{"winner", session.View{Role: match.RolePlayer, Mark: match.X, Acceptor: true, Confirmed: true, State: won}, "You win (1-2-3)!"},
		{"loser", session.View{Role: match.RolePlayer, Mark: match.O, Confirmed: true, State: won}, "You lose (1-2-3)."},
		{"spectator", session.View{Role: match.RoleSpectator, Confirmed: true, State: won}, "X wins (1-2-3)."},
		{"waiting", session.View{Role: match.RolePlayer, Mark: match.O, State: match.New()}, "Waiting for the host to let you in."},
		{"lost", session.View{Role: match.RolePlayer, Mark: match.X, Acceptor: true, Confirmed: true, PeerLost: true, State: match.New()}, "Connection lost."},
		{"watching", session.View{Role: match.RoleSpectator, Confirmed: true, State: match.New()}, "Watching. X to move."},
		{"their turn", session.View{Role: match.RolePlayer, Mark: match.O, Confirmed: true, State: match.New()}, "You are O. Waiting for X."},
	}

	for _, tt := range tests {
		if got := statusLine(tt.view); got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	con := newConsole(strings.NewReader("yes\nnope\n"), &out)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if !con.Confirm(ctx, "Rejoin?") {
		t.Fatalf("yes not accepted")
	}
	if con.Confirm(ctx, "Rejoin?") {
		t.Fatalf("nope accepted")
	}
	if con.Confirm(ctx, "Rejoin?") {
		t.Fatalf("end of input accepted")
	}
	if !strings.Contains(out.String(), "Rejoin? [y/N]") {
		t.Fatalf("prompt not printed: %q", out.String())
	}
}

func TestMatchIDFromURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"http://host:8080/match/abcd1234", "abcd1234", false},
		{"https://host/prefix/match/abcd1234/?spectate", "abcd1234", false},
		{"ws://host/match/abcd1234/ws", "abcd1234", false},
		{"http://host/match", "", true},
		{"http://host/", "", true},
	}

	for _, tt := range tests {
		got, err := matchIDFromURL(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("%s: got %q, %v", tt.in, got, err)
		}
	}

	if !wantsSpectate("http://host/match/abcd1234?spectate") || wantsSpectate("http://host/match/abcd1234") {
		t.Fatalf("spectate intent misread")
	}
}

func TestApplyEvents(t *testing.T) {
	v := session.View{Role: match.RolePlayer, Mark: match.O, State: match.New()}

	st := played(t, 4)
	v = apply(v, session.Event{Kind: session.RoleConfirmed, Role: match.RolePlayer, State: st})
	if !v.Confirmed || !v.State.Equal(st) {
		t.Fatalf("confirmation not applied: %+v", v)
	}

	v = apply(v, session.Event{Kind: session.ConnectionLost})
	if !v.PeerLost {
		t.Fatalf("loss not applied")
	}
	v = apply(v, session.Event{Kind: session.PeerConnected, Role: match.RolePlayer})
	if v.PeerLost {
		t.Fatalf("reconnection not applied")
	}

	v = apply(v, session.Event{Kind: session.SpectatorCountChanged, Spectators: 3})
	if v.Spectators != 3 {
		t.Fatalf("spectator count not applied")
	}
}

func TestMoveProblem(t *testing.T) {
	if got := moveProblem(match.ErrCellTaken); got != "That cell is taken." {
		t.Fatalf("got %q", got)
	}
	if got := moveProblem(session.ErrNoOpponent); got != "Waiting for an opponent." {
		t.Fatalf("got %q", got)
	}
}
