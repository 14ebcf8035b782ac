// Lightcycles
//
// Each session id gets its own hub, which owns one tron.Session: the local
// half of a two player duel whose peer connection is negotiated by copying
// offers and answers between browsers.
//
// Features:
// - WebSockets per session ID: /path/:sessionid and /path/:sessionid/ws
// - First cookie to connect controls the session, later ones spectate
// - Every session change is pushed to all connected browsers as a view
// - Keyboard and touch pad steering, with key repeats ignored
// - QR code of the current offer or answer, for moving it between devices
// - Sessions auto-reaped after configurable idle timeout
// - Random 8-char session IDs via crypto/rand, with server-side collision check

package main

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/lightcycles/games/tron"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from browsers
type ClientMessage struct {
	Type      string         `json:"type"`                // see Hub.handleCommand
	Role      tron.Role      `json:"role,omitempty"`      // select_role
	Text      string         `json:"text,omitempty"`      // apply_answer / apply_offer
	Direction tron.Direction `json:"direction,omitempty"` // steer
	Key       string         `json:"key,omitempty"`       // key
	Repeat    bool           `json:"repeat,omitempty"`    // key
}

// ViewMessage carries a full session view.
type ViewMessage struct {
	Type string `json:"type"` // "view"
	tron.View
}

// SessionInfoMessage is sent immediately on connect so the browser knows
// whether it controls the session and how to size the board.
type SessionInfoMessage struct {
	Type       string `json:"type"` // "session_info"
	Controller bool   `json:"controller"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	TickMs     int64  `json:"tick_ms"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type command struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	session *tron.Session
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	commands chan command
	views    chan tron.View

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex

	createdAt    time.Time
	lastActive   time.Time
	controllerID string
}

func newHub(cfg *Config, sessionID string, dialer tron.Dialer) *Hub {
	now := time.Now()

	h := &Hub{
		id:         sessionID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		views:      make(chan tron.View, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}

	h.session = tron.Open(tron.Options{
		Dialer:        dialer,
		GatherTimeout: cfg.gatherTimeout,
		Logf: func(format string, args ...any) {
			logf(cfg, "%s (session %s)", fmt.Sprintf(format, args...), sessionID)
		},
		OnChange: h.notify,
	})

	return h
}

// notify keeps only the newest view. It runs on the session goroutine, the
// only sender on h.views, so it never blocks.
func (h *Hub) notify(v tron.View) {
	select {
	case h.views <- v:
		return
	default:
	}

	select {
	case <-h.views:
	default:
	}

	select {
	case h.views <- v:
	default:
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

func (h *Hub) run(cfg *Config) {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			h.session.Close()

			for c := range h.clients {
				close(c.send)
				_ = c.conn.Close()
				delete(h.clients, c)
			}

			return

		case c := <-h.register:
			h.touch()

			// First connection becomes controller
			if h.controllerID == "" {
				h.controllerID = c.playerID
			}

			h.clients[c] = true

			h.trySend(c, SessionInfoMessage{
				Type:       "session_info",
				Controller: c.playerID == h.controllerID,
				Width:      tron.GridWidth,
				Height:     tron.GridHeight,
				TickMs:     tron.TickRate.Milliseconds(),
			})
			h.trySend(c, ViewMessage{Type: "view", View: h.session.Snapshot()})

		case c := <-h.unreg:
			h.touch()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case v := <-h.views:
			if v.Game.Status == tron.Running {
				h.touch()
			}

			msg := ViewMessage{Type: "view", View: v}
			for c := range h.clients {
				h.trySend(c, msg)
			}

		case cmd := <-h.commands:
			h.handleCommand(cfg, cmd)
		}
	}
}

// trySend drops clients that can't keep up.
func (h *Hub) trySend(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) handleCommand(cfg *Config, cmd command) {
	h.touch()

	// Only the controller may drive the session
	if cmd.client.playerID != h.controllerID {
		return
	}

	msg := cmd.msg

	switch msg.Type {
	case "select_role":
		if !msg.Role.Valid() {
			return
		}
		logf(cfg, "GAMES: [%s] Selected role %s", h.id, msg.Role)
		h.session.SelectRole(msg.Role)
	case "create_offer":
		h.session.CreateOffer()
	case "apply_answer":
		h.session.ApplyAnswer(msg.Text)
	case "apply_offer":
		h.session.ApplyOffer(msg.Text)
	case "start_game":
		h.session.StartGame()
	case "reset_game":
		h.session.ResetGame()
	case "reset_all":
		h.session.ResetAll()
	case "steer":
		if msg.Direction.Valid() {
			h.session.Steer(msg.Direction)
		}
	case "key":
		if msg.Repeat {
			return
		}
		if dir, ok := tron.KeyDirection(msg.Key); ok {
			h.session.Steer(dir)
		}
	default:
		// ignore unknown types
	}
}

// stop ends the session and disconnects every browser. Safe to call more
// than once.
func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
	<-h.done
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "lightcycles_id"

func getOrSetPlayerID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     cfg.prefix + "/",
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by session ID, so each
// $path/$sessionid is its own isolated duel.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	dialer      tron.Dialer
	idleTimeout time.Duration

	stopReaper chan struct{}
	stopOnce   sync.Once
}

func newGameManager(dialer tron.Dialer, idleTimeout time.Duration) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		dialer:      dialer,
		idleTimeout: idleTimeout,
		stopReaper:  make(chan struct{}),
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(cfg *Config, sessionID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[sessionID]; ok {
		return hub
	}

	hub := newHub(cfg, sessionID, gm.dialer)
	gm.hubs[sessionID] = hub
	go hub.run(cfg)

	logf(cfg, "GAMES: [%s] Opened session", sessionID)

	return hub
}

func (gm *GameManager) lookup(sessionID string) (*Hub, bool) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	hub, ok := gm.hubs[sessionID]
	return hub, ok
}

// newSessionID generates a crypto-random session ID and ensures it doesn't
// collide with existing sessions.
func (gm *GameManager) newSessionID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := gm.lookup(id); !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-gm.stopReaper:
			return
		case <-ticker.C:
			gm.reap(time.Now().Add(-gm.idleTimeout))
		}
	}
}

func (gm *GameManager) reap(cutoff time.Time) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			go hub.stop()
		}
	}
}

// shutdown stops the reaper and every hub, waiting for their sessions to
// release their peer connections.
func (gm *GameManager) shutdown() {
	gm.stopOnce.Do(func() {
		close(gm.stopReaper)
	})

	gm.mu.Lock()
	hubs := make([]*Hub, 0, len(gm.hubs))
	for id, hub := range gm.hubs {
		hubs = append(hubs, hub)
		delete(gm.hubs, id)
	}
	gm.mu.Unlock()

	for _, hub := range hubs {
		hub.stop()
	}
}

// WebSocket handler that picks the hub based on :sessionid
func serveWSForManager(cfg *Config, gm *GameManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")
		if sessionID == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(cfg, w, r)

		hub := gm.getHub(cfg, sessionID)

		conn, err := upgrader.Upgrade(w, r, w.Header())
		if err != nil {
			errs <- err
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.quit:
			_ = conn.Close()
			return
		}

		logf(cfg, "SERVE: [%s] Websocket connected from %s", sessionID, realIP(r))

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.quit:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 << 10)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case h.commands <- command{client: c, msg: msg}:
		case <-h.quit:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: renders the session's current offer or answer as a PNG, so a
// phone can pick it up without a clipboard.
func qrHandler(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		hub, ok := gm.lookup(ps.ByName("sessionid"))
		if !ok {
			http.NotFound(w, r)
			return
		}

		local := hub.session.Snapshot().Local
		if local == "" {
			http.NotFound(w, r)
			return
		}

		const qrSize = 512
		png, err := qrcode.Encode(local, qrcode.Low, qrSize)
		if err != nil {
			http.Error(w, "description too large for a qr code", http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}

func serveTronIndex(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		data, err := assets.ReadFile("tron/index.html")
		if err != nil {
			errs <- err
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		// Private: the page can carry a fresh player cookie.
		w.Header().Set("Cache-Control", "private, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(cfg, w, r)

		written, err := w.Write(data)
		if err != nil {
			errs <- err
			return
		}

		logf(cfg, "SERVE: Duel page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// redirectNewGame handles GET /path by generating a new random session ID
// (with server-side collision detection) and redirecting to /path/:sessionid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sessionID := gm.newSessionID()
		logf(cfg, "GAMES: Created session %s/%s", path, sessionID)
		http.Redirect(w, r, cfg.prefix+path+"/"+sessionID, http.StatusTemporaryRedirect)
	}
}

// registerTronGame sets up routes so that:
//   - $path                  → redirects to new random session (8-char ID)
//   - $path/:sessionid       → HTML client
//   - $path/:sessionid/ws    → WebSocket for that session
//   - $path/:sessionid/qr    → PNG QR code of the session's local description
func registerTronGame(cfg *Config, path string, mux *httprouter.Router, errs chan<- error) *GameManager {
	gm := newGameManager(cfg.dialer(), cfg.sessionTimeout)

	routeTronGame(cfg, path, mux, gm, errs)

	return gm
}

func routeTronGame(cfg *Config, path string, mux *httprouter.Router, gm *GameManager, errs chan<- error) {
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:sessionid", serveTronIndex(cfg, errs))

	mux.GET(cfg.prefix+path+"/:sessionid/ws", serveWSForManager(cfg, gm, errs))

	mux.GET(cfg.prefix+path+"/:sessionid/qr", qrHandler(cfg, gm))
}
