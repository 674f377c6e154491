package domain

// JoinResult is what a connection learns when it is admitted into a session.
type JoinResult struct {
	SessionID SessionID
	Created   bool
	History   []Message
}

// RegistryStats is a point in time view of the registry.
type RegistryStats struct {
	Sessions        int
	LiveConnections int
	Messages        int
}
