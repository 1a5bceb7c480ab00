/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package match holds the disappearing tic-tac-toe rules: a 3x3 board where
// each side keeps at most three pieces, the oldest one vanishing when a
// fourth is placed.
package match

import (
	"errors"
	"fmt"
)

// Mark is the content of a board cell.
type Mark string

const (
	Empty Mark = ""
	X     Mark = "X"
	O     Mark = "O"
)

// Other returns the opposing mark. Empty has no opponent.
func (m Mark) Other() Mark {
	switch m {
	case X:
		return O
	case O:
		return X
	}
	return Empty
}

// Role is what a connection (or the local end) is allowed to do in a match.
type Role string

const (
	RoleUnset        Role = ""
	RoleUnidentified Role = "unidentified"
	RolePlayer       Role = "player"
	RoleSpectator    Role = "spectator"
	RoleRejected     Role = "rejected"
)

type Status string

const (
	InProgress Status = "in-progress"
	Won        Status = "won"
	Draw       Status = "draw"
)

const (
	// Cells on the board.
	Cells = 9

	// MaxPieces is how many pieces a mark keeps before its oldest disappears.
	MaxPieces = 3

	// NoCell marks an unset cell index.
	NoCell = -1
)

// Lines are the eight winning combinations.
var Lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrSpectator   = fmt.Errorf("%w: spectators cannot move", ErrIllegalMove)
	ErrNotPlayer   = fmt.Errorf("%w: only players can move", ErrIllegalMove)
	ErrMatchOver   = fmt.Errorf("%w: match is over", ErrIllegalMove)
	ErrNotYourTurn = fmt.Errorf("%w: not your turn", ErrIllegalMove)
	ErrBadCell     = fmt.Errorf("%w: cell out of range", ErrIllegalMove)
	ErrCellTaken   = fmt.Errorf("%w: cell already taken", ErrIllegalMove)

	ErrInvalidState = errors.New("invalid match state")
)

// Placement is a live piece on the board, in the order it was placed.
type Placement struct {
	Mark Mark `json:"player"`
	Cell int  `json:"cell"`
	Turn int  `json:"turn"`
}

// State is the complete, serializable state of one match.
type State struct {
	Board        [Cells]Mark `json:"board"`
	CurrentTurn  Mark        `json:"currentTurn"`
	Placements   []Placement `json:"placements"`
	Turn         int         `json:"turn"`
	WinningCombo *[3]int     `json:"winningCombo"`
	Status       Status      `json:"status"`
	Winner       Mark        `json:"winner,omitempty"`

	LastPlaced      int `json:"lastPlaced"`
	LastDisappeared int `json:"lastDisappeared"`
}

// New returns an empty board with X to move.
func New() State {
	return State{
		CurrentTurn:     X,
		Placements:      []Placement{},
		Status:          InProgress,
		LastPlaced:      NoCell,
		LastDisappeared: NoCell,
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Placements = make([]Placement, len(s.Placements))
	copy(out.Placements, s.Placements)
	if s.WinningCombo != nil {
		combo := *s.WinningCombo
		out.WinningCombo = &combo
	}
	return out
}

// Count returns how many cells m currently occupies.
func (s *State) Count(m Mark) int {
	n := 0
	for _, c := range s.Board {
		if c == m {
			n++
		}
	}
	return n
}

func (s *State) hasEmpty() bool {
	for _, c := range s.Board {
		if c == Empty {
			return true
		}
	}
	return false
}

// Equal reports whether two states describe the same match position.
func (s State) Equal(o State) bool {
	if s.Board != o.Board || s.CurrentTurn != o.CurrentTurn || s.Turn != o.Turn ||
		s.Status != o.Status || s.Winner != o.Winner ||
		s.LastPlaced != o.LastPlaced || s.LastDisappeared != o.LastDisappeared {
		return false
	}
	if (s.WinningCombo == nil) != (o.WinningCombo == nil) {
		return false
	}
	if s.WinningCombo != nil && *s.WinningCombo != *o.WinningCombo {
		return false
	}
	if len(s.Placements) != len(o.Placements) {
		return false
	}
	for i := range s.Placements {
		if s.Placements[i] != o.Placements[i] {
			return false
		}
	}
	return true
}
