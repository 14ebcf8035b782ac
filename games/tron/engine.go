/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tron

// Event is an input to Reduce.
type Event interface {
	event()
}

// Tick advances the simulation by one step.
type Tick struct{}

// Steer asks for a direction change on one player.
type Steer struct {
	Player    PlayerKey
	Direction Direction
}

// Reset discards the board and starts over with the given status.
type Reset struct {
	Status Status
}

func (Tick) event()  {}
func (Steer) event() {}
func (Reset) event() {}

func Reduce(s GameState, e Event) GameState {
	switch ev := e.(type) {
	case Tick:
		return Advance(s)
	case Steer:
		next, _ := ChangeDirection(s, ev.Player, ev.Direction)
		return next
	case Reset:
		return NewGameState(ev.Status)
	}
	return s
}

// CanSteer reports whether dir would be accepted for player.
func CanSteer(s GameState, player PlayerKey, dir Direction) bool {
	if s.Status != Running || !player.Valid() || !dir.Valid() {
		return false
	}
	p := s.Players.Get(player)
	return p.Alive && p.Direction != dir && p.Direction.Opposite() != dir
}

// ChangeDirection returns s with the player's heading replaced. Reversals,
// repeats and changes for dead players are dropped and reported as false.
func ChangeDirection(s GameState, player PlayerKey, dir Direction) (GameState, bool) {
	if !CanSteer(s, player, dir) {
		return s, false
	}
	p := s.Players.Get(player)
	p.Direction = dir
	s.Players = s.Players.With(player, p)
	return s, true
}

func grow(trail []Coordinate, c Coordinate) []Coordinate {
	out := make([]Coordinate, len(trail), len(trail)+1)
	copy(out, trail)
	return append(out, c)
}

// Advance runs one simulation step. States that are not running come back
// unchanged.
func Advance(s GameState) GameState {
	if s.Status != Running {
		return s
	}

	keys := [2]PlayerKey{P1, P2}

	var prev, next [2]PlayerState
	var candidate [2]Coordinate
	for i, k := range keys {
		prev[i] = s.Players.Get(k)
		candidate[i] = prev[i].Position
		if prev[i].Alive {
			candidate[i] = prev[i].Position.Add(prev[i].Direction.Vector())
		}
	}

	occupied := make(map[Coordinate]struct{}, len(prev[0].Trail)+len(prev[1].Trail)+2)
	for _, p := range prev {
		for _, c := range p.Trail {
			occupied[c] = struct{}{}
		}
		occupied[p.Position] = struct{}{}
	}

	var alive [2]bool
	for i, p := range prev {
		if !p.Alive {
			continue
		}
		_, hit := occupied[candidate[i]]
		alive[i] = candidate[i].InBounds() && !hit
	}

	// Head-on: nobody wins on priority.
	if alive[0] && alive[1] && candidate[0] == candidate[1] {
		alive[0], alive[1] = false, false
	}

	for i, p := range prev {
		next[i] = p
		if !p.Alive {
			continue
		}
		next[i].Alive = alive[i]
		if alive[i] {
			next[i].Trail = grow(p.Trail, p.Position)
			next[i].Position = candidate[i]
		}
	}

	out := GameState{
		Status:  s.Status,
		Tick:    s.Tick + 1,
		Players: Players{P1: next[0], P2: next[1]},
		Winner:  s.Winner,
	}

	switch {
	case !next[0].Alive && !next[1].Alive:
		out.Status, out.Winner = Ended, Draw
	case !next[0].Alive:
		out.Status, out.Winner = Ended, Winner(P2)
	case !next[1].Alive:
		out.Status, out.Winner = Ended, Winner(P1)
	}

	return out
}
