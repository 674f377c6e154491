package errors

import "fmt"

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrSessionNotFound     = fmt.Errorf("session not found")
	ErrIdentifierExhausted = fmt.Errorf("no free session identifier")
	ErrAlreadyJoined       = fmt.Errorf("connection already joined a session")
	ErrConnectionClosed    = fmt.Errorf("connection closed")
	ErrInvalidPayload      = fmt.Errorf("invalid payload")
	ErrInvalidCharacter    = fmt.Errorf("censor character must be a single rune")
	ErrSlowConsumer        = fmt.Errorf("connection buffer full")
	ErrEmptyWords          = fmt.Errorf("no censored words found")
)

// Reason codes sent to the peer inside a joinError event.
const (
	ReasonSessionNotFound = "SessionNotFound"
	ReasonAlreadyJoined   = "AlreadyJoined"
	ReasonUnavailable     = "Unavailable"
	ReasonInvalidPayload  = "InvalidPayload"
)

// Reason maps a join failure to the code delivered to the peer.
func Reason(err error) string {
	switch {
	case is(err, ErrSessionNotFound):
		return ReasonSessionNotFound
	case is(err, ErrAlreadyJoined):
		return ReasonAlreadyJoined
	case is(err, ErrInvalidPayload):
		return ReasonInvalidPayload
	default:
		return ReasonUnavailable
	}
}
