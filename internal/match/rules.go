/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package match

// Result describes an accepted placement.
type Result struct {
	Mark    Mark
	Cell    int
	Evicted int // NoCell unless the mark's oldest piece disappeared
	Status  Status
}

// Submit validates and applies a placement of m on cell by a caller holding
// role. A rejected move leaves s untouched.
func (s *State) Submit(role Role, m Mark, cell int) (Result, error) {
	switch {
	case role == RoleSpectator:
		return Result{}, ErrSpectator
	case role != RolePlayer:
		return Result{}, ErrNotPlayer
	case s.Status != InProgress:
		return Result{}, ErrMatchOver
	case m != s.CurrentTurn:
		return Result{}, ErrNotYourTurn
	case cell < 0 || cell >= Cells:
		return Result{}, ErrBadCell
	case s.Board[cell] != Empty:
		return Result{}, ErrCellTaken
	}

	s.Turn++
	s.Board[cell] = m
	s.Placements = append(s.Placements, Placement{Mark: m, Cell: cell, Turn: s.Turn})
	s.LastPlaced = cell
	s.LastDisappeared = NoCell

	res := Result{Mark: m, Cell: cell, Evicted: NoCell}

	if s.Count(m) > MaxPieces {
		res.Evicted = s.evictOldest(m)
		s.LastDisappeared = res.Evicted
	}

	if line, ok := completedLine(s.Board); ok {
		combo := line
		s.Status = Won
		s.WinningCombo = &combo
		s.Winner = s.Board[line[0]]
	} else if !s.hasEmpty() {
		s.Status = Draw
	} else {
		s.CurrentTurn = m.Other()
	}

	res.Status = s.Status

	return res, nil
}

// evictOldest removes the earliest live placement of m and returns its cell.
func (s *State) evictOldest(m Mark) int {
	for i, p := range s.Placements {
		if p.Mark != m {
			continue
		}
		s.Board[p.Cell] = Empty
		s.Placements = append(s.Placements[:i], s.Placements[i+1:]...)
		return p.Cell
	}
	return NoCell
}

func completedLine(board [Cells]Mark) ([3]int, bool) {
	for _, line := range Lines {
		a := board[line[0]]
		if a != Empty && a == board[line[1]] && a == board[line[2]] {
			return line, true
		}
	}
	return [3]int{}, false
}
