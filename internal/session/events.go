/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"fmt"

	"github.com/Seednode/fadetoe/internal/match"
)

type EventKind int

const (
	StateChanged EventKind = iota
	RoleConfirmed
	SpectatorCountChanged
	PeerConnected
	PeerDisconnected
	ConnectionLost
	RoomFull
	HandshakeTimedOut
	ProtocolViolation
	IllegalMove
)

func (k EventKind) String() string {
	switch k {
	case StateChanged:
		return "state-changed"
	case RoleConfirmed:
		return "role-confirmed"
	case SpectatorCountChanged:
		return "spectator-count-changed"
	case PeerConnected:
		return "peer-connected"
	case PeerDisconnected:
		return "peer-disconnected"
	case ConnectionLost:
		return "connection-lost"
	case RoomFull:
		return "room-full"
	case HandshakeTimedOut:
		return "handshake-timed-out"
	case ProtocolViolation:
		return "protocol-violation"
	case IllegalMove:
		return "illegal-move"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is what the session tells the presentation layer. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind EventKind

	// StateChanged, RoleConfirmed
	State   match.State
	Local   bool // the local player made the move
	Placed  int
	Evicted int

	// RoleConfirmed, PeerConnected, PeerDisconnected
	Role   match.Role
	ConnID string

	// SpectatorCountChanged
	Spectators int

	// ConnectionLost, HandshakeTimedOut, ProtocolViolation, IllegalMove
	Err error
}
