/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tron

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	GridWidth  = 36
	GridHeight = 24

	TickRate time.Duration = 120 * time.Millisecond

	// ChannelLabel must match on both peers.
	ChannelLabel = "tron-game"
)

type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coordinate) Add(o Coordinate) Coordinate {
	return Coordinate{X: c.X + o.X, Y: c.Y + o.Y}
}

// InBounds reports whether c lies within [0,GridWidth) x [0,GridHeight).
func (c Coordinate) InBounds() bool {
	return c.X >= 0 && c.X < GridWidth && c.Y >= 0 && c.Y < GridHeight
}

type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

func (d Direction) Valid() bool {
	switch d {
	case Up, Down, Left, Right:
		return true
	}
	return false
}

func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return d
}

func (d Direction) Vector() Coordinate {
	switch d {
	case Up:
		return Coordinate{X: 0, Y: -1}
	case Down:
		return Coordinate{X: 0, Y: 1}
	case Left:
		return Coordinate{X: -1, Y: 0}
	case Right:
		return Coordinate{X: 1, Y: 0}
	}
	return Coordinate{}
}

var keyDirections = map[string]Direction{
	"arrowup":    Up,
	"w":          Up,
	"arrowdown":  Down,
	"s":          Down,
	"arrowleft":  Left,
	"a":          Left,
	"arrowright": Right,
	"d":          Right,
}

// KeyDirection maps a browser KeyboardEvent.key value to a direction.
func KeyDirection(key string) (Direction, bool) {
	d, ok := keyDirections[strings.ToLower(key)]
	return d, ok
}

type PlayerKey string

const (
	P1 PlayerKey = "p1"
	P2 PlayerKey = "p2"
)

func (p PlayerKey) Valid() bool {
	return p == P1 || p == P2
}

func (p PlayerKey) Other() PlayerKey {
	if p == P1 {
		return P2
	}
	return P1
}

type Role string

const (
	NoRole Role = ""
	Host   Role = "host"
	Guest  Role = "guest"
)

func (r Role) Valid() bool {
	return r == Host || r == Guest
}

// Player returns the key the role steers. The host always drives p1.
func (r Role) Player() PlayerKey {
	switch r {
	case Host:
		return P1
	case Guest:
		return P2
	}
	return ""
}

func (r Role) Opponent() PlayerKey {
	switch r {
	case Host:
		return P2
	case Guest:
		return P1
	}
	return ""
}

type Status string

const (
	Idle    Status = "idle"
	Running Status = "running"
	Ended   Status = "ended"
)

func (s Status) Valid() bool {
	return s == Idle || s == Running || s == Ended
}

// Winner is a player key or Draw. The zero value means no winner yet.
type Winner string

const (
	NoWinner Winner = ""
	Draw     Winner = "draw"
)

func (w Winner) Valid() bool {
	switch w {
	case NoWinner, Draw, Winner(P1), Winner(P2):
		return true
	}
	return false
}

type PlayerState struct {
	Position  Coordinate
	Direction Direction
	Trail     []Coordinate
	Alive     bool
}

// playerWire flattens the position into x/y, which is what peers put on the wire.
type playerWire struct {
	X         int          `json:"x"`
	Y         int          `json:"y"`
	Direction Direction    `json:"direction"`
	Trail     []Coordinate `json:"trail"`
	Alive     bool         `json:"alive"`
}

func (p PlayerState) MarshalJSON() ([]byte, error) {
	trail := p.Trail
	if trail == nil {
		trail = []Coordinate{}
	}
	return json.Marshal(playerWire{
		X:         p.Position.X,
		Y:         p.Position.Y,
		Direction: p.Direction,
		Trail:     trail,
		Alive:     p.Alive,
	})
}

func (p *PlayerState) UnmarshalJSON(b []byte) error {
	var w playerWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if !w.Direction.Valid() {
		return fmt.Errorf("unknown direction %q", w.Direction)
	}
	*p = PlayerState{
		Position:  Coordinate{X: w.X, Y: w.Y},
		Direction: w.Direction,
		Trail:     w.Trail,
		Alive:     w.Alive,
	}
	return nil
}

type Players struct {
	P1 PlayerState `json:"p1"`
	P2 PlayerState `json:"p2"`
}

func (p Players) Get(key PlayerKey) PlayerState {
	if key == P2 {
		return p.P2
	}
	return p.P1
}

// With returns a copy of p with key replaced by ps.
func (p Players) With(key PlayerKey, ps PlayerState) Players {
	if key == P2 {
		p.P2 = ps
	} else {
		p.P1 = ps
	}
	return p
}

// GameState is treated as immutable: every transition returns a new value and
// trails are never appended to in place.
type GameState struct {
	Status  Status  `json:"status"`
	Tick    int     `json:"tick"`
	Players Players `json:"players"`
	Winner  Winner  `json:"winner,omitempty"`
}

func startingPlayer(key PlayerKey) PlayerState {
	x := GridWidth / 4
	dir := Right
	if key == P2 {
		x = GridWidth * 3 / 4
		dir = Left
	}
	return PlayerState{
		Position:  Coordinate{X: x, Y: GridHeight / 2},
		Direction: dir,
		Trail:     []Coordinate{},
		Alive:     true,
	}
}

// NewGameState returns a fresh board with both cycles at their starting cells.
func NewGameState(status Status) GameState {
	return GameState{
		Status: status,
		Tick:   0,
		Players: Players{
			P1: startingPlayer(P1),
			P2: startingPlayer(P2),
		},
		Winner: NoWinner,
	}
}

// Validate checks a snapshot received from a peer.
func (s GameState) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("unknown status %q", s.Status)
	}
	if !s.Winner.Valid() {
		return fmt.Errorf("unknown winner %q", s.Winner)
	}
	if (s.Winner != NoWinner) != (s.Status == Ended) {
		return fmt.Errorf("winner %q inconsistent with status %q", s.Winner, s.Status)
	}
	if s.Tick < 0 {
		return fmt.Errorf("negative tick %d", s.Tick)
	}
	for _, k := range [2]PlayerKey{P1, P2} {
		if d := s.Players.Get(k).Direction; !d.Valid() {
			return fmt.Errorf("player %s has unknown direction %q", k, d)
		}
	}
	return nil
}
