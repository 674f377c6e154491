package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// Broadcaster is the fan-out seam between sessions and connections.
// It only knows session ids and, per session, the sink of each subscribed connection.
type Broadcaster struct {
	mu       sync.RWMutex
	log      *slog.Logger
	audience map[domain.SessionID]map[string]contract.EventSink
}

func NewBroadcaster(log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		log:      log,
		audience: make(map[domain.SessionID]map[string]contract.EventSink),
	}
}

func (b *Broadcaster) Subscribe(sessionID domain.SessionID, connectionID string, sink contract.EventSink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sinks, ok := b.audience[sessionID]
	if !ok {
		sinks = make(map[string]contract.EventSink)
		b.audience[sessionID] = sinks
	}
	sinks[connectionID] = sink
}

// Unsubscribe forgets the connection, a session without subscribers is dropped.
func (b *Broadcaster) Unsubscribe(sessionID domain.SessionID, connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sinks := b.audience[sessionID]
	delete(sinks, connectionID)
	if len(sinks) == 0 {
		delete(b.audience, sessionID)
	}
}

// Subscribers counts the connections currently attached to the session.
func (b *Broadcaster) Subscribers(sessionID domain.SessionID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.audience[sessionID])
}

// Publish hands the event to every sink of the session at call time and
// returns how many accepted it. Cancellation of the publisher's ctx does not
// reach the recipients, each of them is only bounded by its own connection.
// A refused event is logged, the transport owning the sink drops the peer.
func (b *Broadcaster) Publish(ctx context.Context, sessionID domain.SessionID, e event.Event) int {
	b.mu.RLock()
	sinks := lo.Values(b.audience[sessionID])
	b.mu.RUnlock()

	deliveryCtx := context.WithoutCancel(ctx)
	delivered := 0
	for _, sink := range sinks {
		if err := sink.Consume(deliveryCtx, e); err != nil {
			b.log.Warn("Event not delivered",
				"session_id", sessionID,
				"event", e.Type(),
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}
