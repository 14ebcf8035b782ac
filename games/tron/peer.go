/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tron

import (
	"context"
	"sync"
)

// Peer is one side of a direct connection carrying a single ordered data
// channel. Implementations report what happens to the connection through the
// notify function handed to Dialer.Dial.
type Peer interface {
	// CreateOffer produces the host's finalized offer once candidate
	// gathering is complete.
	CreateOffer(ctx context.Context) (string, error)

	// AcceptOffer applies the host's offer and produces the guest's
	// finalized answer.
	AcceptOffer(ctx context.Context, offer string) (string, error)

	// AcceptAnswer applies the guest's answer on the host.
	AcceptAnswer(answer string) error

	// Send reports false when the payload was dropped because the channel
	// is not open.
	Send(data []byte) bool

	// Close detaches and closes the channel, then the connection. Safe to
	// call more than once.
	Close() error
}

type Dialer interface {
	Dial(role Role, notify func(PeerEvent)) (Peer, error)
}

type PeerEvent interface {
	peerEvent()
}

// ChannelAttached fires when a data channel exists, whether created locally
// by the host or received from the host by the guest.
type ChannelAttached struct{}

type ChannelOpened struct{}

type ChannelClosed struct{}

type ChannelFailed struct {
	Err error
}

type PayloadReceived struct {
	Data []byte
}

type PeerConnecting struct{}

type PeerConnected struct{}

// PeerLost reports a failed or disconnected connection.
type PeerLost struct {
	Reason string
}

func (ChannelAttached) peerEvent() {}
func (ChannelOpened) peerEvent()   {}
func (ChannelClosed) peerEvent()   {}
func (ChannelFailed) peerEvent()   {}
func (PayloadReceived) peerEvent() {}
func (PeerConnecting) peerEvent()  {}
func (PeerConnected) peerEvent()   {}
func (PeerLost) peerEvent()        {}

// mailbox is an unbounded FIFO. Pushing never blocks, so peer callbacks may
// fire from any goroutine, including the session loop itself.
type mailbox struct {
	mu    sync.Mutex
	items []any
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) push(v any) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []any {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items
	m.items = nil
	return items
}
