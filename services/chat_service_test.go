package services

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_Connect(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	registry := runtime.NewRegistry(log, runtime.NewIdentifierGenerator())
	svc := NewChatService(log, registry, runtime.NewBroadcaster(log))
	sink := mocks.NewMockEventSink(ctrl)

	// Given the join replies are expected on the connection's sink
	gomock.InOrder(
		sink.EXPECT().Consume(gomock.Any(), gomock.AssignableToTypeOf(event.SessionCreated{})).Return(nil),
		sink.EXPECT().Consume(gomock.Any(), gomock.AssignableToTypeOf(event.History{})).Return(nil),
	)

	// When two connections are opened
	first := svc.Connect(sink)
	second := svc.Connect(mocks.NewMockEventSink(ctrl))

	// Then each one gets its own identity
	req.NotEqual(first.ID(), second.ID())

	// And the first can join
	req.NoError(first.Handle(ctx, domain.JoinCommand{DisplayName: "alice"}))
	req.Equal(domain.RegistryStats{Sessions: 1, LiveConnections: 1}, svc.Stats())

	req.NoError(first.Close(ctx))
	req.NoError(second.Close(ctx))
	req.Zero(svc.Stats().Sessions)
}
