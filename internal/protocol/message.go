/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package protocol defines the messages exchanged between two ends of a
// match channel.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Seednode/fadetoe/internal/match"
)

type Type string

const (
	TypeIdentifyRequest Type = "identify-request" // acceptor -> joiner
	TypeIdentify        Type = "identify"         // joiner -> acceptor
	TypeRoomFull        Type = "room-full"        // acceptor -> joiner
	TypeGameState       Type = "game-state"       // either way
)

// ErrProtocolViolation is wrapped by every decode and validation failure.
var ErrProtocolViolation = errors.New("protocol violation")

// Message is the single envelope for every kind; which fields are set
// depends on Type.
type Message struct {
	Type  Type         `json:"type"`
	Role  match.Role   `json:"role,omitempty"`
	State *match.State `json:"state,omitempty"`
}

func IdentifyRequest() Message { return Message{Type: TypeIdentifyRequest} }

func Identify(role match.Role) Message { return Message{Type: TypeIdentify, Role: role} }

func RoomFull() Message { return Message{Type: TypeRoomFull} }

func GameState(s match.State) Message {
	st := s.Clone()
	return Message{Type: TypeGameState, State: &st}
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

// Validate enforces the required and forbidden fields of each kind.
func (m Message) Validate() error {
	switch m.Type {
	case TypeIdentifyRequest, TypeRoomFull:
		if m.Role != match.RoleUnset || m.State != nil {
			return violation("%s carries no payload", m.Type)
		}
	case TypeIdentify:
		if m.State != nil {
			return violation("identify carries no state")
		}
		if m.Role != match.RolePlayer && m.Role != match.RoleSpectator {
			return violation("identify with role %q", m.Role)
		}
	case TypeGameState:
		if m.Role != match.RoleUnset {
			return violation("game-state carries no role")
		}
		if m.State == nil {
			return violation("game-state without state")
		}
		if err := match.Validate(*m.State); err != nil {
			return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
		}
	default:
		return violation("unknown message type %q", m.Type)
	}
	return nil
}

// Encode validates m and renders it as a JSON text frame.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Decode parses and validates a frame received from a peer.
func Decode(data []byte) (Message, error) {
	var m Message

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	if dec.More() {
		return Message{}, violation("trailing data after message")
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
