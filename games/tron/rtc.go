/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// RTCDialer opens WebRTC peer connections. Candidates are gathered in full
// before a description is handed out, since there is no signaling server to
// trickle them through.
type RTCDialer struct {
	ICEServers []string

	// IncludeLoopback advertises 127.0.0.1 candidates, which lets two peers
	// on the same machine find each other without a network.
	IncludeLoopback bool
}

func (d RTCDialer) Dial(role Role, notify func(PeerEvent)) (Peer, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: no role selected", ErrNegotiation)
	}

	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(d.IncludeLoopback)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	cfg := webrtc.Configuration{}
	if len(d.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: d.ICEServers}}
	}

	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	p := &rtcPeer{pc: pc, notify: notify}

	pc.OnConnectionStateChange(p.connectionStateChanged)
	pc.OnICEConnectionStateChange(p.iceStateChanged)

	if role == Host {
		ordered := true
		dc, err := pc.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("%w: %v", ErrNegotiation, err)
		}
		p.attach(dc)
	} else {
		pc.OnDataChannel(p.attach)
	}

	return p, nil
}

type rtcPeer struct {
	pc     *webrtc.PeerConnection
	notify func(PeerEvent)

	mu sync.Mutex
	dc *webrtc.DataChannel

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (p *rtcPeer) emit(ev PeerEvent) {
	if p.closed.Load() || p.notify == nil {
		return
	}
	p.notify(ev)
}

func (p *rtcPeer) attach(dc *webrtc.DataChannel) {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return
	}
	p.dc = dc
	p.mu.Unlock()

	p.emit(ChannelAttached{})

	dc.OnOpen(func() {
		p.emit(ChannelOpened{})
	})

	dc.OnClose(func() {
		p.emit(ChannelClosed{})
	})

	dc.OnError(func(err error) {
		p.emit(ChannelFailed{Err: err})
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.emit(PayloadReceived{Data: msg.Data})
	})
}

func (p *rtcPeer) connectionStateChanged(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnecting:
		p.emit(PeerConnecting{})
	case webrtc.PeerConnectionStateConnected:
		p.emit(PeerConnected{})
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		p.emit(PeerLost{Reason: "peer connection " + state.String()})
	}
}

func (p *rtcPeer) iceStateChanged(state webrtc.ICEConnectionState) {
	switch state {
	case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		p.emit(PeerLost{Reason: "ice connection " + state.String()})
	}
}

// finalize sets desc as the local description and waits for gathering to
// finish, returning the description with every candidate inlined.
func (p *rtcPeer) finalize(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	gathered := webrtc.GatheringCompletePromise(p.pc)

	if err := p.pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("%w: set local description: %v", ErrNegotiation, err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", fmt.Errorf("%w: candidate gathering: %v", ErrNegotiation, ctx.Err())
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("%w: no local description", ErrNegotiation)
	}

	sanitized, err := SanitizeDescription(local.SDP)
	if err != nil {
		return local.SDP, nil
	}

	return sanitized, nil
}

func (p *rtcPeer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: create offer: %v", ErrNegotiation, err)
	}

	return p.finalize(ctx, offer)
}

func (p *rtcPeer) AcceptOffer(ctx context.Context, offer string) (string, error) {
	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer,
	})
	if err != nil {
		return "", fmt.Errorf("%w: set remote offer: %v", ErrNegotiation, err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: create answer: %v", ErrNegotiation, err)
	}

	return p.finalize(ctx, answer)
}

func (p *rtcPeer) AcceptAnswer(answer string) error {
	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	})
	if err != nil {
		return fmt.Errorf("%w: set remote answer: %v", ErrNegotiation, err)
	}

	return nil
}

func (p *rtcPeer) Send(data []byte) bool {
	if p.closed.Load() {
		return false
	}

	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return false
	}

	return dc.SendText(string(data)) == nil
}

func (p *rtcPeer) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)

		p.mu.Lock()
		dc := p.dc
		p.dc = nil
		p.mu.Unlock()

		p.pc.OnConnectionStateChange(func(webrtc.PeerConnectionState) {})
		p.pc.OnICEConnectionStateChange(func(webrtc.ICEConnectionState) {})
		p.pc.OnDataChannel(func(*webrtc.DataChannel) {})

		var errs []error
		if dc != nil {
			detach(dc)
			errs = append(errs, dc.Close())
		}
		errs = append(errs, p.pc.Close())

		p.closeErr = errors.Join(errs...)
	})

	return p.closeErr
}

// detach swaps every data channel callback for a no-op. pion runs an open
// handler immediately when one is set on an open channel, so nil is never
// passed.
func detach(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {})
	dc.OnClose(func() {})
	dc.OnError(func(error) {})
	dc.OnMessage(func(webrtc.DataChannelMessage) {})
}
