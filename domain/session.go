package domain

import (
	"sort"
	"time"
)

type SessionID string

// Session is one chat room: an append-only log, the members present and the
// number of live connections attached to it.
// A Session does not protect itself, the registry lock serializes every call.
type Session struct {
	ID       SessionID
	messages []Message
	members  map[string]Member
	live     int
}

func NewSession(id SessionID) *Session {
	return &Session{
		ID:      id,
		members: make(map[string]Member),
	}
}

// Join records the member and returns a copy of the log for replay.
// Joining twice under the same name replaces the member record.
func (s *Session) Join(displayName string) []Message {
	s.members[displayName] = Member{
		DisplayName: displayName,
		JoinedAt:    time.Now().UTC(),
	}
	s.live++
	return s.History()
}

// AppendMessage stamps the message with the server clock and appends it.
func (s *Session) AppendMessage(author, text string) Message {
	msg := NewMessage(author, text)
	s.messages = append(s.messages, msg)
	return msg
}

// Leave drops the member record for displayName and returns the remaining
// number of live connections.
// The record is removed even when another connection still uses the same name.
func (s *Session) Leave(displayName string) int {
	delete(s.members, displayName)
	if s.live > 0 {
		s.live--
	}
	return s.live
}

func (s *Session) History() []Message {
	history := make([]Message, len(s.messages))
	copy(history, s.messages)
	return history
}

func (s *Session) LiveConnections() int {
	return s.live
}

func (s *Session) MessageCount() int {
	return len(s.messages)
}

// Members returns the current members ordered by display name.
func (s *Session) Members() []Member {
	members := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].DisplayName < members[j].DisplayName
	})
	return members
}
