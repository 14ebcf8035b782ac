/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tron

import "errors"

var (
	ErrMalformedDescription = errors.New("malformed session description")
	ErrNegotiation          = errors.New("negotiation failed")
	ErrTransportParse       = errors.New("malformed peer message")
	ErrConnectionLost       = errors.New("connection lost")
)
