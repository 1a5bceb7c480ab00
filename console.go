/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/skip2/go-qrcode"

	"github.com/Seednode/fadetoe/internal/match"
	"github.com/Seednode/fadetoe/internal/session"
)

// Console is the terminal front end: it draws the board and turns typed
// lines into commands.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	lines chan string
}

func newConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{
		out:   out,
		lines: make(chan string),
	}

	go func() {
		defer close(c.lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			c.lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	return c
}

// Lines is closed when input ends.
func (c *Console) Lines() <-chan string { return c.lines }

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) Notice(format string, args ...any) {
	c.printf("* "+format+"\n", args...)
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (c *Console) Confirm(ctx context.Context, question string) bool {
	c.printf("%s [y/N] ", question)

	select {
	case line, ok := <-c.lines:
		if !ok {
			return false
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true
		}
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Console) ShareLink(link string) {
	c.Notice("Opponent joins with: fadetoe join %s", link)
	c.Notice("Spectators can watch at %s", link)

	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return
	}
	c.printf("%s", qr.ToSmallString(false))
}

func (c *Console) Help() {
	c.printf("Commands: 1-9 place a piece, r rematch, c reconnect, q leave, ? help\n")
}

// fading returns the cell whose piece vanishes on m's next placement, or
// NoCell.
func fading(st match.State, m match.Mark) int {
	if st.Count(m) < match.MaxPieces {
		return match.NoCell
	}
	for _, p := range st.Placements {
		if p.Mark == m {
			return p.Cell
		}
	}
	return match.NoCell
}

func cellLabel(st match.State, i int, fadeX, fadeO int) string {
	switch {
	case st.Board[i] == match.Empty:
		return fmt.Sprintf("%d", i+1)
	case i == fadeX || i == fadeO:
		return strings.ToLower(string(st.Board[i]))
	}
	return string(st.Board[i])
}

// Render draws the board. Pieces about to vanish are shown in lower case.
func (c *Console) Render(v session.View) {
	st := v.State
	fadeX, fadeO := fading(st, match.X), fading(st, match.O)

	var b strings.Builder
	b.WriteString("\n")
	for row := range 3 {
		b.WriteString(" ")
		for col := range 3 {
			i := row*3 + col
			b.WriteString(" " + cellLabel(st, i, fadeX, fadeO) + " ")
			if col < 2 {
				b.WriteString("|")
			}
		}
		b.WriteString("\n")
		if row < 2 {
			b.WriteString("  ---+---+---\n")
		}
	}
	b.WriteString("\n")
	b.WriteString("  " + statusLine(v) + "\n")
	if v.Spectators > 0 {
		b.WriteString(fmt.Sprintf("  %d watching\n", v.Spectators))
	}

	c.printf("%s", b.String())
}

func statusLine(v session.View) string {
	st := v.State

	switch {
	case v.PeerLost && st.Status == match.InProgress:
		return "Connection lost."
	case v.Role == match.RolePlayer && !v.Confirmed:
		return "Waiting for the host to let you in."
	}

	switch st.Status {
	case match.Won:
		combo := ""
		if st.WinningCombo != nil {
			combo = fmt.Sprintf(" (%d-%d-%d)", st.WinningCombo[0]+1, st.WinningCombo[1]+1, st.WinningCombo[2]+1)
		}
		switch {
		case v.Role != match.RolePlayer:
			return fmt.Sprintf("%s wins%s.", st.Winner, combo)
		case st.Winner == v.Mark:
			return fmt.Sprintf("You win%s!", combo)
		default:
			return fmt.Sprintf("You lose%s.", combo)
		}
	case match.Draw:
		return "Draw."
	}

	switch {
	case v.Role != match.RolePlayer:
		return fmt.Sprintf("Watching. %s to move.", st.CurrentTurn)
	case st.CurrentTurn == v.Mark:
		return fmt.Sprintf("You are %s. Your move.", v.Mark)
	default:
		return fmt.Sprintf("You are %s. Waiting for %s.", v.Mark, st.CurrentTurn)
	}
}

// Event prints the cues that accompany an event, after v has been updated
// with it.
func (c *Console) Event(v session.View, e session.Event) {
	switch e.Kind {
	case session.StateChanged:
		if e.Evicted != match.NoCell {
			c.Notice("The piece on %d faded away.", e.Evicted+1)
		}
		c.Render(v)
	case session.RoleConfirmed:
		if !v.Acceptor {
			c.Notice("Joined match %s as %s.", v.MatchID, v.Role)
		}
	case session.PeerConnected:
		if e.Role == match.RolePlayer {
			c.Notice("Opponent connected.")
			c.Render(v)
		}
	case session.PeerDisconnected:
		if e.Role == match.RolePlayer {
			c.Notice("Opponent disconnected.")
		}
	case session.SpectatorCountChanged:
		c.Notice("%d watching.", e.Spectators)
	case session.ConnectionLost:
		if v.Acceptor {
			c.Notice("Connection lost. Waiting for the opponent to rejoin.")
		} else {
			c.Notice("Connection lost. Type c to reconnect.")
		}
	case session.RoomFull:
		c.Notice("That match already has two players.")
	}
}

// moveProblem turns a rejected move into a short notice.
func moveProblem(err error) string {
	switch {
	case errors.Is(err, session.ErrNoOpponent):
		return "Waiting for an opponent."
	case errors.Is(err, match.ErrSpectator):
		return "Spectators cannot move."
	case errors.Is(err, match.ErrNotYourTurn):
		return "Not your turn."
	case errors.Is(err, match.ErrCellTaken):
		return "That cell is taken."
	case errors.Is(err, match.ErrMatchOver):
		return "The match is over."
	case errors.Is(err, match.ErrBadCell):
		return "Pick a cell from 1 to 9."
	}
	return err.Error()
}
