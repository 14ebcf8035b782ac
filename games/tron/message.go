/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tron

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	MsgDirection MessageType = "direction"
	MsgState     MessageType = "state"
)

// Message is the only thing that travels over the data channel.
type Message struct {
	Type      MessageType `json:"type"`
	Player    PlayerKey   `json:"player,omitempty"`
	Direction Direction   `json:"direction,omitempty"`
	State     *GameState  `json:"state,omitempty"`
}

func DirectionMessage(player PlayerKey, dir Direction) Message {
	return Message{Type: MsgDirection, Player: player, Direction: dir}
}

func StateMessage(s GameState) Message {
	return Message{Type: MsgState, State: &s}
}

func (m Message) Encode() ([]byte, error) {
	switch m.Type {
	case MsgDirection:
		return json.Marshal(struct {
			Type      MessageType `json:"type"`
			Player    PlayerKey   `json:"player"`
			Direction Direction   `json:"direction"`
		}{m.Type, m.Player, m.Direction})
	case MsgState:
		if m.State == nil {
			return nil, fmt.Errorf("state message without state")
		}
		return json.Marshal(struct {
			Type  MessageType `json:"type"`
			State GameState   `json:"state"`
		}{m.Type, *m.State})
	}
	return nil, fmt.Errorf("unknown message type %q", m.Type)
}

// DecodeMessage parses one payload off the channel. Every failure wraps
// ErrTransportParse.
func DecodeMessage(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, fmt.Errorf("%w: empty payload", ErrTransportParse)
	}

	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrTransportParse, err)
	}

	switch m.Type {
	case MsgDirection:
		if !m.Player.Valid() {
			return Message{}, fmt.Errorf("%w: unknown player %q", ErrTransportParse, m.Player)
		}
		if !m.Direction.Valid() {
			return Message{}, fmt.Errorf("%w: unknown direction %q", ErrTransportParse, m.Direction)
		}
		m.State = nil
	case MsgState:
		if m.State == nil {
			return Message{}, fmt.Errorf("%w: state message without state", ErrTransportParse)
		}
		if err := m.State.Validate(); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrTransportParse, err)
		}
		m.Player, m.Direction = "", ""
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrTransportParse, m.Type)
	}

	return m, nil
}
