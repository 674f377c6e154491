// Package domain contains core concepts of the chat relay.
// This file defines Message and the text rules applied before a message is stored.
// Messages are immutable once created.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat line of a session log.
type Message struct {
	ID        uuid.UUID
	Author    string
	Text      string
	CreatedAt time.Time
}

func NewMessage(author, text string) Message {
	return Message{
		ID:        uuid.New(),
		Author:    author,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// NormalizeText reports false when the text is blank.
// A positive maxLength truncates the text to that many runes.
func NormalizeText(text string, maxLength int) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return truncate(text, maxLength), true
}

func truncate(s string, maxLength int) string {
	if maxLength <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	return string(runes[:maxLength])
}
