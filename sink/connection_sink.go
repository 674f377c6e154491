package sink

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"sync"
)

// ConnectionSink buffers the events addressed to one connection.
// The transport drains Events and drops the connection once Overflow is closed:
// a peer that cannot keep up is disconnected instead of silently missing messages.
type ConnectionSink struct {
	events   chan event.Event
	overflow chan struct{}
	once     sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		events:   make(chan event.Event, bufferSize),
		overflow: make(chan struct{}),
	}
}

// Consume is called by the broadcaster and the controller, never blocks.
func (s *ConnectionSink) Consume(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.events <- e:
		return nil
	default:
		s.once.Do(func() { close(s.overflow) })
		return errors.ErrSlowConsumer
	}
}

func (s *ConnectionSink) Events() <-chan event.Event {
	return s.events
}

func (s *ConnectionSink) Overflow() <-chan struct{} {
	return s.overflow
}
