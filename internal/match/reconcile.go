/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package match

import "fmt"

// Outcome says how a received state was folded into the local one.
type Outcome int

const (
	Duplicate Outcome = iota // received equals local
	Applied                  // received is local plus one replayed remote move
	Replaced                 // states diverged; received snapshot adopted
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Applied:
		return "applied"
	case Replaced:
		return "replaced"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Validate checks the structural invariants of a state received from a peer.
func Validate(s State) error {
	switch s.Status {
	case InProgress, Won, Draw:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, s.Status)
	}
	if s.CurrentTurn != X && s.CurrentTurn != O {
		return fmt.Errorf("%w: bad current turn %q", ErrInvalidState, s.CurrentTurn)
	}
	if s.Turn < 0 {
		return fmt.Errorf("%w: negative turn", ErrInvalidState)
	}

	occupied := 0
	for i, c := range s.Board {
		switch c {
		case Empty:
		case X, O:
			occupied++
		default:
			return fmt.Errorf("%w: bad mark %q at cell %d", ErrInvalidState, c, i)
		}
	}
	if s.Status == Draw && occupied != Cells {
		return fmt.Errorf("%w: draw with empty cells", ErrInvalidState)
	}
	if occupied != len(s.Placements) {
		return fmt.Errorf("%w: %d occupied cells but %d placements", ErrInvalidState, occupied, len(s.Placements))
	}

	prev := 0
	seen := make(map[int]bool, len(s.Placements))
	for _, p := range s.Placements {
		if p.Cell < 0 || p.Cell >= Cells || seen[p.Cell] {
			return fmt.Errorf("%w: bad placement cell %d", ErrInvalidState, p.Cell)
		}
		seen[p.Cell] = true
		if s.Board[p.Cell] != p.Mark {
			return fmt.Errorf("%w: placement at %d disagrees with board", ErrInvalidState, p.Cell)
		}
		if p.Turn <= prev || p.Turn > s.Turn {
			return fmt.Errorf("%w: placement turns out of order", ErrInvalidState)
		}
		// X always opens, so odd turns belong to X.
		if (p.Turn%2 == 1) != (p.Mark == X) {
			return fmt.Errorf("%w: %s placed on turn %d", ErrInvalidState, p.Mark, p.Turn)
		}
		prev = p.Turn
	}

	if s.Status == InProgress {
		if s.Count(X) > MaxPieces || s.Count(O) > MaxPieces {
			return fmt.Errorf("%w: too many pieces", ErrInvalidState)
		}
		if (s.Turn%2 == 0) != (s.CurrentTurn == X) {
			return fmt.Errorf("%w: %s to move on turn %d", ErrInvalidState, s.CurrentTurn, s.Turn)
		}
	}

	if !validCell(s.LastPlaced) || !validCell(s.LastDisappeared) {
		return fmt.Errorf("%w: bad last cell", ErrInvalidState)
	}

	line, complete := completedLine(s.Board)
	switch {
	case s.Status == Won:
		if s.WinningCombo == nil || !complete || *s.WinningCombo != line {
			return fmt.Errorf("%w: won without a completed line", ErrInvalidState)
		}
		if s.Winner != s.Board[line[0]] {
			return fmt.Errorf("%w: winner does not own the line", ErrInvalidState)
		}
	case s.WinningCombo != nil || s.Winner != Empty:
		return fmt.Errorf("%w: winning combo without a win", ErrInvalidState)
	case complete:
		return fmt.Errorf("%w: completed line while %s", ErrInvalidState, s.Status)
	}

	return nil
}

func validCell(i int) bool {
	return i == NoCell || (i >= 0 && i < Cells)
}

// Reconcile folds a state received from the remote player, who plays
// remote, into local. A state one remote placement ahead of a match in
// progress must replay through Submit to exactly the received state, or it
// is rejected with an error wrapping ErrIllegalMove. Anything else that
// differs is adopted whole, so both ends converge on the latest snapshot
// after a lost message or a rematch.
func Reconcile(local, received State, remote Mark) (State, Outcome, error) {
	if err := Validate(received); err != nil {
		return local, Duplicate, err
	}

	if local.Equal(received) {
		return local, Duplicate, nil
	}

	if local.Status == InProgress && received.Turn == local.Turn+1 && len(received.Placements) > 0 {
		last := received.Placements[len(received.Placements)-1]
		if last.Turn == received.Turn && last.Mark == remote {
			next := local.Clone()
			if _, err := next.Submit(RolePlayer, last.Mark, last.Cell); err != nil {
				return local, Duplicate, err
			}
			if !next.Equal(received) {
				return local, Duplicate, fmt.Errorf("%w: %s on %d does not lead to the received state", ErrIllegalMove, last.Mark, last.Cell)
			}
			return next, Applied, nil
		}
	}

	return received.Clone(), Replaced, nil
}
