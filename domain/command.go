package domain

// Command is an intent coming from a connected peer.
type Command interface {
	Name() string
}

// JoinCommand asks to enter a session. A nil SessionID creates a new one.
type JoinCommand struct {
	SessionID   *SessionID
	DisplayName string
}

func (JoinCommand) Name() string { return "join" }

// SendCommand carries a chat line. The author always comes from the connection.
type SendCommand struct {
	Text string
}

func (SendCommand) Name() string { return "send" }
