/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tron

import (
	"math/rand"
	"reflect"
	"testing"
)

func running() GameState {
	return NewGameState(Running)
}

func TestNewGameStateStartingPositions(t *testing.T) {
	s := NewGameState(Idle)

	if s.Status != Idle || s.Tick != 0 || s.Winner != NoWinner {
		t.Fatalf("got status=%s tick=%d winner=%q, want idle/0/none", s.Status, s.Tick, s.Winner)
	}

	p1, p2 := s.Players.P1, s.Players.P2
	if p1.Position != (Coordinate{9, 12}) || p1.Direction != Right {
		t.Fatalf("p1 = %+v, want (9,12) heading right", p1)
	}
	if p2.Position != (Coordinate{27, 12}) || p2.Direction != Left {
		t.Fatalf("p2 = %+v, want (27,12) heading left", p2)
	}
	if !p1.Alive || !p2.Alive || len(p1.Trail) != 0 || len(p2.Trail) != 0 {
		t.Fatalf("players should start alive with empty trails: %+v %+v", p1, p2)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	a := NewGameState(Idle)
	b := NewGameState(Idle)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("two idle resets differ:\n%+v\n%+v", a, b)
	}

	c := Reduce(Advance(running()), Reset{Status: Idle})
	if !reflect.DeepEqual(a, c) {
		t.Fatalf("reset after play differs from fresh state:\n%+v\n%+v", a, c)
	}
}

func TestAdvanceOneTick(t *testing.T) {
	next := Advance(running())

	if next.Status != Running {
		t.Fatalf("status = %s, want running", next.Status)
	}
	if next.Tick != 1 {
		t.Fatalf("tick = %d, want 1", next.Tick)
	}
	if got := next.Players.P1.Position; got != (Coordinate{10, 12}) {
		t.Fatalf("p1 at %v, want (10,12)", got)
	}
	if got := next.Players.P2.Position; got != (Coordinate{26, 12}) {
		t.Fatalf("p2 at %v, want (26,12)", got)
	}
	if !next.Players.P1.Alive || !next.Players.P2.Alive {
		t.Fatalf("both players should survive the first tick")
	}
	if got := next.Players.P1.Trail; len(got) != 1 || got[0] != (Coordinate{9, 12}) {
		t.Fatalf("p1 trail = %v, want [(9,12)]", got)
	}
}

func TestAdvanceIgnoresStatesThatAreNotRunning(t *testing.T) {
	for _, status := range []Status{Idle, Ended} {
		s := NewGameState(status)
		if status == Ended {
			s.Winner = Draw
		}
		if got := Advance(s); !reflect.DeepEqual(got, s) {
			t.Fatalf("Advance changed a %s state", status)
		}
	}
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	s := Advance(running())
	trail := append([]Coordinate(nil), s.Players.P1.Trail...)

	_ = Advance(s)

	if !reflect.DeepEqual(trail, s.Players.P1.Trail) {
		t.Fatalf("input trail changed: got %v, want %v", s.Players.P1.Trail, trail)
	}
}

func TestOwnTrailKillsPlayer(t *testing.T) {
	s := running()
	p1 := s.Players.P1
	p1.Position = Coordinate{5, 5}
	p1.Direction = Up
	p1.Trail = []Coordinate{{5, 6}, {6, 6}, {6, 5}, {6, 4}, {5, 4}}
	s.Players = s.Players.With(P1, p1)

	next := Advance(s)

	if next.Players.P1.Alive {
		t.Fatalf("p1 should die on its own trail")
	}
	if next.Status != Ended || next.Winner != Winner(P2) {
		t.Fatalf("got status=%s winner=%q, want ended/p2", next.Status, next.Winner)
	}
	if next.Players.P1.Position != (Coordinate{5, 5}) {
		t.Fatalf("dead player moved to %v", next.Players.P1.Position)
	}
	if len(next.Players.P1.Trail) != len(p1.Trail) {
		t.Fatalf("dead player's trail grew to %d", len(next.Players.P1.Trail))
	}
}

func TestOpponentTrailAndPositionKill(t *testing.T) {
	s := running()
	p1 := s.Players.P1
	p2 := s.Players.P2

	p1.Position, p1.Direction = Coordinate{10, 10}, Right
	p2.Position, p2.Direction = Coordinate{11, 10}, Down

	s.Players = Players{P1: p1, P2: p2}

	next := Advance(s)
	if next.Players.P1.Alive {
		t.Fatalf("p1 moved into p2's pre-move cell and should die")
	}
	if !next.Players.P2.Alive {
		t.Fatalf("p2 should survive")
	}
	if next.Winner != Winner(P2) {
		t.Fatalf("winner = %q, want p2", next.Winner)
	}

	s = running()
	p1 = s.Players.P1
	p2 = s.Players.P2
	p1.Position, p1.Direction = Coordinate{10, 10}, Right
	p2.Position, p2.Direction = Coordinate{20, 20}, Left
	p2.Trail = []Coordinate{{11, 10}}
	s.Players = Players{P1: p1, P2: p2}

	next = Advance(s)
	if next.Players.P1.Alive {
		t.Fatalf("p1 moved into p2's trail and should die")
	}
}

func TestWallsKill(t *testing.T) {
	tests := []struct {
		name string
		pos  Coordinate
		dir  Direction
	}{
		{"left", Coordinate{0, 5}, Left},
		{"right", Coordinate{GridWidth - 1, 5}, Right},
		{"top", Coordinate{5, 0}, Up},
		{"bottom", Coordinate{5, GridHeight - 1}, Down},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := running()
			p2 := s.Players.P2
			p2.Position, p2.Direction = tc.pos, tc.dir
			s.Players = s.Players.With(P2, p2)

			next := Advance(s)
			if next.Players.P2.Alive {
				t.Fatalf("p2 should die leaving the grid at %v heading %s", tc.pos, tc.dir)
			}
			if next.Winner != Winner(P1) {
				t.Fatalf("winner = %q, want p1", next.Winner)
			}
		})
	}
}

func TestHeadOnCollisionIsDraw(t *testing.T) {
	s := running()
	p1 := s.Players.P1
	p2 := s.Players.P2
	p1.Position, p1.Direction = Coordinate{10, 10}, Right
	p2.Position, p2.Direction = Coordinate{12, 10}, Left
	s.Players = Players{P1: p1, P2: p2}

	next := Advance(s)

	if next.Players.P1.Alive || next.Players.P2.Alive {
		t.Fatalf("both players should die on a head-on collision")
	}
	if next.Status != Ended || next.Winner != Draw {
		t.Fatalf("got status=%s winner=%q, want ended/draw", next.Status, next.Winner)
	}
}

func TestBothCrashIsDraw(t *testing.T) {
	s := running()
	p1 := s.Players.P1
	p2 := s.Players.P2
	p1.Position, p1.Direction = Coordinate{0, 3}, Left
	p2.Position, p2.Direction = Coordinate{GridWidth - 1, 3}, Right
	s.Players = Players{P1: p1, P2: p2}

	if got := Advance(s).Winner; got != Draw {
		t.Fatalf("winner = %q, want draw", got)
	}
}

func TestChangeDirection(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		alive  bool
		dir    Direction
		want   Direction
		ok     bool
	}{
		{"turn", Running, true, Up, Up, true},
		{"same", Running, true, Right, Right, false},
		{"reverse", Running, true, Left, Right, false},
		{"dead", Running, false, Up, Right, false},
		{"idle", Idle, true, Up, Right, false},
		{"invalid", Running, true, Direction("sideways"), Right, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewGameState(tc.status)
			p1 := s.Players.P1
			p1.Alive = tc.alive
			s.Players = s.Players.With(P1, p1)

			next, ok := ChangeDirection(s, P1, tc.dir)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if got := next.Players.P1.Direction; got != tc.want {
				t.Fatalf("direction = %s, want %s", got, tc.want)
			}
			if s.Players.P1.Direction != Right {
				t.Fatalf("input state was mutated")
			}
		})
	}
}

func TestReduceSteer(t *testing.T) {
	s := Reduce(running(), Steer{Player: P2, Direction: Down})
	if s.Players.P2.Direction != Down {
		t.Fatalf("p2 direction = %s, want down", s.Players.P2.Direction)
	}
	s = Reduce(s, Tick{})
	if s.Players.P2.Position != (Coordinate{27, 13}) {
		t.Fatalf("p2 at %v, want (27,13)", s.Players.P2.Position)
	}
}

// TestRandomGames drives many random games and checks the invariants that
// must hold for every reachable state.
func TestRandomGames(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	dirs := []Direction{Up, Down, Left, Right}

	for game := 0; game < 200; game++ {
		s := running()

		for step := 0; step < GridWidth*GridHeight && s.Status == Running; step++ {
			for _, k := range []PlayerKey{P1, P2} {
				if rng.Intn(3) == 0 {
					d := dirs[rng.Intn(len(dirs))]
					before := s.Players.Get(k).Direction
					s = Reduce(s, Steer{Player: k, Direction: d})
					if (d == before || d == before.Opposite()) && s.Players.Get(k).Direction != before {
						t.Fatalf("illegal steer %s accepted over %s", d, before)
					}
				}
			}

			prev := s
			s = Advance(s)

			if (s.Winner != NoWinner) != (s.Status == Ended) {
				t.Fatalf("winner %q with status %s", s.Winner, s.Status)
			}
			if s.Tick != prev.Tick+1 {
				t.Fatalf("tick went from %d to %d", prev.Tick, s.Tick)
			}

			for _, k := range []PlayerKey{P1, P2} {
				before, after := prev.Players.Get(k), s.Players.Get(k)
				if len(after.Trail) < len(before.Trail) {
					t.Fatalf("%s trail shrank from %d to %d", k, len(before.Trail), len(after.Trail))
				}
				if !before.Alive && (len(after.Trail) != len(before.Trail) || after.Position != before.Position) {
					t.Fatalf("dead %s changed", k)
				}
				if after.Alive && !after.Position.InBounds() {
					t.Fatalf("%s alive out of bounds at %v", k, after.Position)
				}
			}
		}
	}
}

func TestKeyDirection(t *testing.T) {
	tests := map[string]Direction{
		"ArrowUp":    Up,
		"w":          Up,
		"W":          Up,
		"ArrowDown":  Down,
		"s":          Down,
		"ArrowLeft":  Left,
		"a":          Left,
		"ArrowRight": Right,
		"D":          Right,
	}

	for key, want := range tests {
		got, ok := KeyDirection(key)
		if !ok || got != want {
			t.Fatalf("KeyDirection(%q) = %s, %v; want %s", key, got, ok, want)
		}
	}

	if _, ok := KeyDirection("Enter"); ok {
		t.Fatalf("Enter should not map to a direction")
	}
}
