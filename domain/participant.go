// Package domain contains core concepts of the chat relay.
// This file defines Member entities and the display name policy.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"strings"
	"time"
)

const (
	DefaultDisplayName   = "Anonymous"
	MaxDisplayNameLength = 20
)

// Member is the presence of one display name inside a Session.
type Member struct {
	DisplayName string
	JoinedAt    time.Time
}

// NormalizeDisplayName trims the name, falls back to DefaultDisplayName
// when nothing is left and truncates to MaxDisplayNameLength runes.
// Every entry point accepting a name must go through it.
func NormalizeDisplayName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultDisplayName
	}
	return truncate(trimmed, MaxDisplayNameLength)
}
