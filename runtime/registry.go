package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"sync"
)

// Registry is the table of live sessions.
// Its single mutex serializes every session mutation: creation, join,
// append, leave and deletion. Callbacks given to Join, WithSession and Leave
// run while the lock is held so that subscription and fan-out happen in the
// same order as the log.
type Registry struct {
	mu        sync.Mutex
	log       *slog.Logger
	generator contract.IIdentifierGenerator
	sessions  map[domain.SessionID]*domain.Session
}

func NewRegistry(log *slog.Logger, generator contract.IIdentifierGenerator) *Registry {
	return &Registry{
		log:       log,
		generator: generator,
		sessions:  make(map[domain.SessionID]*domain.Session),
	}
}

// ResolveOrCreate looks up the requested session, or creates a fresh one when
// no id is requested. An unknown requested id is never created implicitly.
func (r *Registry) ResolveOrCreate(requested *domain.SessionID) (domain.SessionID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, created, err := r.resolveOrCreate(requested)
	if err != nil {
		return "", false, err
	}
	return session.ID, created, nil
}

// Join resolves or creates the session and registers displayName in it atomically.
// onJoined is called under the lock with the history snapshot.
func (r *Registry) Join(requested *domain.SessionID, displayName string,
	onJoined func(domain.JoinResult)) (domain.JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, created, err := r.resolveOrCreate(requested)
	if err != nil {
		return domain.JoinResult{}, err
	}

	result := domain.JoinResult{
		SessionID: session.ID,
		Created:   created,
		History:   session.Join(displayName),
	}
	if onJoined != nil {
		onJoined(result)
	}
	return result, nil
}

// WithSession runs fn against the session while holding the registry lock.
func (r *Registry) WithSession(id domain.SessionID, fn func(s *domain.Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, id)
	}
	return fn(session)
}

// Leave removes displayName from the session then releases it.
// It returns the number of live connections left.
func (r *Registry) Leave(id domain.SessionID, displayName string, onLeft func()) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errors.ErrSessionNotFound, id)
	}
	remaining := session.Leave(displayName)
	if onLeft != nil {
		onLeft()
	}
	r.release(id)
	return remaining, nil
}

// Release deletes the session once no connection is attached to it anymore.
// It reports whether the session was deleted.
func (r *Registry) Release(id domain.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.release(id)
}

func (r *Registry) Contains(id domain.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

func (r *Registry) Stats() domain.RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := domain.RegistryStats{Sessions: len(r.sessions)}
	for _, s := range r.sessions {
		stats.LiveConnections += s.LiveConnections()
		stats.Messages += s.MessageCount()
	}
	return stats
}

func (r *Registry) resolveOrCreate(requested *domain.SessionID) (*domain.Session, bool, error) {
	if requested != nil {
		session, ok := r.sessions[*requested]
		if !ok {
			return nil, false, fmt.Errorf("%w: %s", errors.ErrSessionNotFound, *requested)
		}
		return session, false, nil
	}

	id, err := r.generator.Generate(func(id domain.SessionID) bool {
		_, ok := r.sessions[id]
		return ok
	})
	if err != nil {
		return nil, false, err
	}
	session := domain.NewSession(id)
	r.sessions[id] = session
	r.log.Info("Session created", "session_id", id)
	return session, true, nil
}

func (r *Registry) release(id domain.SessionID) bool {
	session, ok := r.sessions[id]
	if !ok || session.LiveConnections() > 0 {
		return false
	}
	delete(r.sessions, id)
	r.log.Info("Session deleted", "session_id", id, "messages", session.MessageCount())
	return true
}
