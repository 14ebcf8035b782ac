/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tron

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type ConnectionStatus string

const (
	Disconnected ConnectionStatus = "idle"
	Connecting   ConnectionStatus = "connecting"
	Connected    ConnectionStatus = "connected"
)

// View is everything a front end needs to draw one session.
type View struct {
	Role        Role             `json:"role"`
	Connection  ConnectionStatus `json:"connection"`
	Message     string           `json:"message"`
	Local       string           `json:"local"`
	Remote      string           `json:"remote"`
	Negotiating bool             `json:"negotiating"`
	Player      PlayerKey        `json:"player,omitempty"`
	CanStart    bool             `json:"can_start"`
	CanReset    bool             `json:"can_reset"`
	Result      string           `json:"result,omitempty"`
	Game        GameState        `json:"game"`
}

type Options struct {
	Dialer        Dialer
	GatherTimeout time.Duration
	TickRate      time.Duration

	// Logf receives diagnostics such as dropped peer payloads.
	Logf func(format string, args ...any)

	// OnChange is called from the session goroutine after every change and
	// must not block.
	OnChange func(View)
}

const (
	msgPickRole        = "Pick a role to get started."
	msgConnectionReset = "Connection reset. Pick a role to try again."
)

type handshake struct {
	local  string // our offer (host) or answer (guest)
	remote string // their sanitized answer (host) or offer (guest)
}

type negotiationStep int

const (
	stepOffer negotiationStep = iota
	stepAnswer
	stepApplyAnswer
)

type (
	selectRole  struct{ role Role }
	createOffer struct{}
	applyAnswer struct{ text string }
	applyOffer  struct{ text string }
	startGame   struct{}
	resetGame   struct{}
	resetAll    struct{}
	steer       struct{ dir Direction }

	peerEvent struct {
		gen int
		ev  PeerEvent
	}

	negotiated struct {
		gen  int
		step negotiationStep
		text string
		err  error
	}
)

// Session owns one attempt at a peer link: the connection, its data channel,
// the tick timer and the local copy of the game. Everything it owns is
// touched only by its own goroutine; callers and peer callbacks talk to it
// through a mailbox.
type Session struct {
	opts Options

	box       *mailbox
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	last      atomic.Pointer[View]

	role        Role
	conn        ConnectionStatus
	message     string
	hs          handshake
	negotiating bool
	cancel      context.CancelFunc
	game        GameState

	peer Peer
	gen  int

	ticker *time.Ticker
	tickC  <-chan time.Time
}

func newSession(opts Options) *Session {
	if opts.TickRate <= 0 {
		opts.TickRate = TickRate
	}
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = 10 * time.Second
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	s := &Session{
		opts:    opts,
		box:     newMailbox(),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		conn:    Disconnected,
		message: msgPickRole,
		game:    NewGameState(Idle),
	}

	v := s.view()
	s.last.Store(&v)

	return s
}

// Open starts a session with no role selected.
func Open(opts Options) *Session {
	s := newSession(opts)
	go s.run()
	return s
}

// Close tears the session down and waits for its goroutine to exit. It may
// be called more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
}

// Snapshot returns the most recently published view.
func (s *Session) Snapshot() View {
	return *s.last.Load()
}

func (s *Session) SelectRole(r Role) { s.box.push(selectRole{role: r}) }
func (s *Session) CreateOffer() { s.box.push(createOffer{}) }
func (s *Session) ApplyAnswer(text string) { s.box.push(applyAnswer{text: text}) }
func (s *Session) ApplyOffer(text string) { s.box.push(applyOffer{text: text}) }
func (s *Session) StartGame() { s.box.push(startGame{}) }
func (s *Session) ResetGame() { s.box.push(resetGame{}) }
func (s *Session) ResetAll() { s.box.push(resetAll{}) }
func (s *Session) Steer(dir Direction) { s.box.push(steer{dir: dir}) }

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.quit:
			s.teardown(msgConnectionReset)
			return
		case <-s.box.ready:
			for _, item := range s.box.drain() {
				s.handle(item)
			}
		case <-s.tickC:
			s.tick()
		}
		s.publish()
	}
}

func (s *Session) publish() {
	v := s.view()
	s.last.Store(&v)
	if s.opts.OnChange != nil {
		s.opts.OnChange(v)
	}
}

func (s *Session) view() View {
	v := View{
		Role:        s.role,
		Connection:  s.conn,
		Message:     s.message,
		Local:       s.hs.local,
		Remote:      s.hs.remote,
		Negotiating: s.negotiating,
		Player:      s.role.Player(),
		CanStart:    s.role == Host && s.conn == Connected && s.game.Status != Running,
		CanReset:    s.role == Host && s.conn == Connected,
		Game:        s.game,
	}

	if s.game.Status == Ended {
		switch s.game.Winner {
		case NoWinner:
		case Draw:
			v.Result = "Draw! You both crashed."
		case Winner(s.role.Player()):
			v.Result = "You win!"
		case Winner(s.role.Opponent()):
			v.Result = "Your friend wins this round."
		default:
			v.Result = "Game over."
		}
	}

	return v
}

func (s *Session) handle(item any) {
	switch c := item.(type) {
	case selectRole:
		s.selectRole(c.role)
	case createOffer:
		s.createOffer()
	case applyAnswer:
		s.applyAnswer(c.text)
	case applyOffer:
		s.applyOffer(c.text)
	case startGame:
		s.startGame()
	case resetGame:
		if s.role != Host || s.conn != Connected {
			return
		}
		s.resetGame(Idle)
	case resetAll:
		s.teardown(msgPickRole)
		s.role = NoRole
		s.resetGame(Idle)
	case steer:
		s.steer(c.dir)
	case peerEvent:
		if c.gen != s.gen {
			return
		}
		s.handlePeerEvent(c.ev)
	case negotiated:
		if c.gen != s.gen {
			return
		}
		s.finishNegotiation(c)
	}
}

func (s *Session) stopLoop() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.tickC = nil
}

func (s *Session) releasePeer() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			s.opts.Logf("PEERS: Error closing peer: %v", err)
		}
		s.peer = nil
	}
	// Anything still in flight from the old peer is now stale.
	s.gen++
}

// teardown stops the timer, closes the channel and connection, and clears
// the handshake text, in that order.
func (s *Session) teardown(message string) {
	s.stopLoop()
	s.releasePeer()
	s.hs = handshake{}
	s.negotiating = false
	s.conn = Disconnected
	s.message = message
}

func (s *Session) selectRole(r Role) {
	if !r.Valid() || r == s.role {
		return
	}

	s.teardown(msgConnectionReset)
	s.role = r
	s.resetGame(Idle)

	if r == Host {
		s.message = `Click "Generate Offer" and send it to your friend.`
	} else {
		s.message = "Paste the host offer to generate an answer."
	}
}

func (s *Session) dial(role Role) (Peer, error) {
	s.stopLoop()
	s.releasePeer()

	gen := s.gen
	peer, err := s.opts.Dialer.Dial(role, func(ev PeerEvent) {
		s.box.push(peerEvent{gen: gen, ev: ev})
	})
	if err != nil {
		return nil, err
	}

	s.peer = peer
	return peer, nil
}

// negotiate runs a blocking handshake step off the session goroutine and
// posts the outcome back through the mailbox.
func (s *Session) negotiate(step negotiationStep, fn func(ctx context.Context) (string, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.GatherTimeout)
	s.cancel = cancel
	s.negotiating = true

	gen := s.gen
	go func() {
		defer cancel()
		text, err := fn(ctx)
		s.box.push(negotiated{gen: gen, step: step, text: text, err: err})
	}()
}

func (s *Session) negotiationFailed(message string, err error) {
	s.opts.Logf("PEERS: %v", err)
	s.conn = Disconnected
	s.message = message
}

func (s *Session) createOffer() {
	if s.role != Host || s.negotiating {
		return
	}

	s.hs = handshake{}

	peer, err := s.dial(Host)
	if err != nil {
		s.negotiationFailed("Failed to create offer. Reset and try again.", err)
		return
	}

	s.message = "Creating offer..."
	s.negotiate(stepOffer, peer.CreateOffer)
}

func (s *Session) applyAnswer(text string) {
	if s.role != Host || s.negotiating {
		return
	}

	sanitized, err := SanitizeDescription(text)
	if err != nil {
		s.opts.Logf("PEERS: Rejected answer: %v", err)
		s.message = `The answer text looks incomplete. Make sure you paste the entire blob that starts with "v=0".`
		return
	}

	if s.peer == nil || s.hs.local == "" {
		s.message = "Create an offer before applying an answer."
		return
	}

	s.hs.remote = sanitized

	peer := s.peer
	s.negotiate(stepApplyAnswer, func(context.Context) (string, error) {
		return "", peer.AcceptAnswer(sanitized)
	})
}

func (s *Session) applyOffer(text string) {
	if s.role != Guest || s.negotiating {
		return
	}

	sanitized, err := SanitizeDescription(text)
	if err != nil {
		s.opts.Logf("PEERS: Rejected offer: %v", err)
		s.message = `The offer text looks incomplete. Make sure it starts with "v=0" and includes the entire blob the host sent.`
		return
	}

	peer, err := s.dial(Guest)
	if err != nil {
		s.negotiationFailed("Could not process the offer. Reset and try again.", err)
		return
	}

	s.hs = handshake{remote: sanitized}
	s.message = "Applying offer..."
	s.negotiate(stepAnswer, func(ctx context.Context) (string, error) {
		return peer.AcceptOffer(ctx, sanitized)
	})
}

func (s *Session) finishNegotiation(n negotiated) {
	s.negotiating = false
	s.cancel = nil

	switch n.step {
	case stepOffer:
		if n.err != nil {
			s.releasePeer()
			s.negotiationFailed("Failed to create offer. Reset and try again.", n.err)
			return
		}
		s.hs.local = n.text
		s.hs.remote = ""
		s.message = "Offer ready! Send it to your friend and paste their answer below."

	case stepAnswer:
		if n.err != nil {
			s.releasePeer()
			s.negotiationFailed("Could not process the offer. Reset and try again.", n.err)
			return
		}
		s.hs.local = n.text
		s.message = "Answer ready! Send it back to the host."

	case stepApplyAnswer:
		if n.err != nil {
			// The offer is still good; let the host paste a corrected answer.
			s.negotiationFailed("Could not apply the answer. Double-check the text and try again.", n.err)
			return
		}
		s.message = "Answer applied. Waiting for the connection to open..."
	}
}

func (s *Session) handlePeerEvent(ev PeerEvent) {
	switch e := ev.(type) {
	case ChannelAttached:
		s.conn = Connecting
		s.message = "Data channel negotiating... a connection should appear shortly."

	case ChannelOpened:
		s.conn = Connected
		if s.role == Host {
			s.message = `Connected! Click "Start Game" when you are ready.`
		} else {
			s.message = "Connected! Tell the host you are ready."
		}

	case ChannelClosed:
		s.stopLoop()
		s.conn = Disconnected
		s.message = "Data channel closed. You can start a fresh session."

	case ChannelFailed:
		s.opts.Logf("PEERS: Data channel error: %v", e.Err)
		s.stopLoop()
		s.message = "Data channel error. Try resetting the connection."

	case PeerConnecting:
		s.conn = Connecting

	case PeerConnected:
		s.conn = Connected

	case PeerLost:
		s.opts.Logf("PEERS: %v", fmt.Errorf("%w: %s", ErrConnectionLost, e.Reason))
		s.teardown("Peer disconnected. You can renegotiate or reset the session.")

	case PayloadReceived:
		s.receive(e.Data)
	}
}

// receive applies one inbound payload. Malformed input is expected on an
// untrusted channel and is dropped after logging.
func (s *Session) receive(data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		s.opts.Logf("PEERS: Dropped payload: %v", err)
		return
	}

	switch msg.Type {
	case MsgDirection:
		// Each side only takes steering for the player the other side drives.
		if msg.Player != s.role.Opponent() {
			return
		}
		s.game, _ = ChangeDirection(s.game, msg.Player, msg.Direction)

	case MsgState:
		if s.role != Guest {
			return
		}
		s.game = *msg.State
	}
}

func (s *Session) send(m Message) {
	if s.peer == nil {
		return
	}

	b, err := m.Encode()
	if err != nil {
		s.opts.Logf("PEERS: Error encoding %s message: %v", m.Type, err)
		return
	}

	s.peer.Send(b)
}

func (s *Session) steer(dir Direction) {
	me := s.role.Player()
	if !CanSteer(s.game, me, dir) {
		return
	}

	// The guest waits for the host's next snapshot instead of predicting.
	if s.role == Host {
		s.game, _ = ChangeDirection(s.game, me, dir)
	}

	s.send(DirectionMessage(me, dir))
}

func (s *Session) resetGame(status Status) {
	s.game = NewGameState(status)
	s.stopLoop()
	if s.role == Host {
		s.send(StateMessage(s.game))
	}
}

func (s *Session) startGame() {
	if s.role != Host || s.conn != Connected || s.game.Status == Running {
		return
	}

	s.opts.Logf("GAMES: Started round")

	s.game = NewGameState(Running)
	s.send(StateMessage(s.game))

	s.stopLoop()
	s.ticker = time.NewTicker(s.opts.TickRate)
	s.tickC = s.ticker.C
}

func (s *Session) tick() {
	if s.role != Host {
		s.stopLoop()
		return
	}

	s.game = Advance(s.game)
	s.send(StateMessage(s.game))

	if s.game.Status == Ended {
		s.stopLoop()
	}
}
