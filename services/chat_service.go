package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/runtime"
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// IConnection is the transport's handle on one peer.
type IConnection interface {
	ID() string
	Handle(ctx context.Context, cmd domain.Command) error
	Close(ctx context.Context) error
}

type IChatService interface {
	Connect(sink contract.EventSink) IConnection
	Stats() domain.RegistryStats
}

// ChatService wires new connections to the shared registry and broadcaster.
type ChatService struct {
	log         *slog.Logger
	registry    contract.IRegistry
	broadcaster contract.IBroadcaster
	options     []runtime.ControllerOption
}

func NewChatService(log *slog.Logger, registry contract.IRegistry,
	broadcaster contract.IBroadcaster, options ...runtime.ControllerOption) *ChatService {
	return &ChatService{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		options:     options,
	}
}

// Connect creates an unjoined connection delivering its events to sink.
func (s *ChatService) Connect(sink contract.EventSink) IConnection {
	return runtime.NewController(s.log, uuid.NewString(), s.registry, s.broadcaster, sink, s.options...)
}

func (s *ChatService) Stats() domain.RegistryStats {
	return s.registry.Stats()
}
