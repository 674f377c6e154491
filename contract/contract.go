//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one connection.
// Consume must not block, it is called while the registry lock is held.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IBroadcaster fans events out to the connections subscribed to a session.
// Publish delivers with a context detached from the caller's cancellation.
type IBroadcaster interface {
	Subscribe(sessionID domain.SessionID, connectionID string, sink EventSink)
	Unsubscribe(sessionID domain.SessionID, connectionID string)
	Publish(ctx context.Context, sessionID domain.SessionID, e event.Event) int
}

type IIdentifierGenerator interface {
	Generate(exists func(domain.SessionID) bool) (domain.SessionID, error)
}

// IRegistry owns every session. Callbacks run inside the registry lock.
type IRegistry interface {
	ResolveOrCreate(requested *domain.SessionID) (domain.SessionID, bool, error)
	Join(requested *domain.SessionID, displayName string, onJoined func(domain.JoinResult)) (domain.JoinResult, error)
	WithSession(id domain.SessionID, fn func(s *domain.Session) error) error
	Leave(id domain.SessionID, displayName string, onLeft func()) (int, error)
	Release(id domain.SessionID) bool
	Stats() domain.RegistryStats
}

type ITextFilter interface {
	Filter(text string) string
}
