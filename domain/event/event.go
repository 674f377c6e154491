// Package event defines what the relay sends back to connected peers.
package event

import (
	"chat-relay/domain"
)

type Type string

const (
	TypeSessionCreated Type = "sessionCreated"
	TypeHistory        Type = "history"
	TypeJoinError      Type = "joinError"
	TypeMessage        Type = "message"
)

// Event is a tagged union, switch on the concrete type.
type Event interface {
	Type() Type
}

// SessionCreated is sent to the joining connection only, when its join created the session.
type SessionCreated struct {
	SessionID domain.SessionID
}

func (SessionCreated) Type() Type { return TypeSessionCreated }

// History is the log snapshot replayed to a connection right after it joined.
type History struct {
	SessionID domain.SessionID
	Messages  []domain.Message
}

func (History) Type() Type { return TypeHistory }

type JoinError struct {
	Reason string
}

func (JoinError) Type() Type { return TypeJoinError }

// MessagePosted is broadcast to every member of the session, sender included.
type MessagePosted struct {
	SessionID domain.SessionID
	Message   domain.Message
}

func (MessagePosted) Type() Type { return TypeMessage }
