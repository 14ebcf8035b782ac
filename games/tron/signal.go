/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tron

import (
	"fmt"
	"strings"
)

// SanitizeDescription checks pasted SDP text and normalizes it to CRLF line
// endings with a trailing line break. It catches truncated or mangled pastes
// before they reach the peer connection.
func SanitizeDescription(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrMalformedDescription)
	}

	normalized := strings.ReplaceAll(trimmed, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\n", "\r\n")

	if !strings.HasPrefix(normalized, "v=0") {
		return "", fmt.Errorf("%w: missing version line", ErrMalformedDescription)
	}

	if !strings.Contains(normalized, "\r\no=") {
		return "", fmt.Errorf("%w: missing origin line", ErrMalformedDescription)
	}

	if !strings.HasSuffix(normalized, "\r\n") {
		normalized += "\r\n"
	}

	return normalized, nil
}
