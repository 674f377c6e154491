package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// RecordingSink keeps every event it is given.
type RecordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *RecordingSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *RecordingSink) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func (s *RecordingSink) Messages() []domain.Message {
	return lo.FilterMap(s.Events(), func(e event.Event, _ int) (domain.Message, bool) {
		posted, ok := e.(event.MessagePosted)
		return posted.Message, ok
	})
}

type relay struct {
	registry    *Registry
	broadcaster *Broadcaster
	log         *slog.Logger
	connections int
}

func newRelay(t *testing.T, ids ...domain.SessionID) *relay {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	var generator = NewIdentifierGenerator()
	if len(ids) > 0 {
		generator.random = func(int, []rune) string {
			next := ids[0]
			if len(ids) > 1 {
				ids = ids[1:]
			}
			return string(next)
		}
	}
	return &relay{
		registry:    NewRegistry(log, generator),
		broadcaster: NewBroadcaster(log),
		log:         log,
	}
}

func (r *relay) connect(opts ...ControllerOption) (*Controller, *RecordingSink) {
	r.connections++
	sink := &RecordingSink{}
	id := "conn-" + string(rune('a'+r.connections))
	return NewController(r.log, id, r.registry, r.broadcaster, sink, opts...), sink
}

func TestController_Scenario_TwoMembers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRelay(t, "ab12cd")

	// Given A joins without a session id
	a, sinkA := relay.connect()
	req.NoError(a.Join(ctx, domain.JoinCommand{DisplayName: "alice"}))
	req.Equal([]event.Event{
		event.SessionCreated{SessionID: "ab12cd"},
		event.History{SessionID: "ab12cd", Messages: []domain.Message{}},
	}, sinkA.Events())
	req.Equal(Joined, a.State())

	// And B joins the created session
	b, sinkB := relay.connect()
	req.NoError(b.Join(ctx, domain.JoinCommand{SessionID: lo.ToPtr(domain.SessionID("ab12cd")), DisplayName: "bob"}))
	req.Equal([]event.Event{
		event.History{SessionID: "ab12cd", Messages: []domain.Message{}},
	}, sinkB.Events())

	// When A sends "hi"
	req.NoError(a.Send(ctx, domain.SendCommand{Text: "hi"}))

	// Then both receive the very same message, sender included
	req.Len(sinkA.Messages(), 1)
	req.Equal(sinkA.Messages(), sinkB.Messages())
	msg := sinkB.Messages()[0]
	req.Equal("alice", msg.Author)
	req.Equal("hi", msg.Text)

	// When A closes
	req.NoError(a.Close(ctx))
	req.Equal(domain.RegistryStats{Sessions: 1, LiveConnections: 1, Messages: 1}, relay.registry.Stats())

	// When B closes, the session is deleted
	req.NoError(b.Close(ctx))
	req.False(relay.registry.Contains("ab12cd"))
	req.Zero(relay.broadcaster.Subscribers("ab12cd"))
}

func TestController_Join_UnknownSession(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRelay(t)

	c, sink := relay.connect()
	err := c.Join(ctx, domain.JoinCommand{SessionID: lo.ToPtr(domain.SessionID("zz9999")), DisplayName: "carl"})

	// Then C is told the session doesn't exist and stays unjoined
	req.ErrorIs(err, errors.ErrSessionNotFound)
	req.Equal([]event.Event{event.JoinError{Reason: errors.ReasonSessionNotFound}}, sink.Events())
	req.Equal(Unjoined, c.State())
	req.Zero(relay.registry.Stats().Sessions)

	// And a retry without id is accepted
	req.NoError(c.Join(ctx, domain.JoinCommand{DisplayName: "carl"}))
	req.Equal(Joined, c.State())
}

func TestController_Join_IdentifierExhausted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	generator := mocks.NewMockIIdentifierGenerator(ctrl)
	registry := NewRegistry(log, generator)
	sink := &RecordingSink{}

	gomock.InOrder(
		generator.EXPECT().Generate(gomock.Any()).
			Return(domain.SessionID(""), fmt.Errorf("%w after 10 attempts", errors.ErrIdentifierExhausted)),
		generator.EXPECT().Generate(gomock.Any()).Return(domain.SessionID("ab12cd"), nil),
	)

	c := NewController(log, "conn", registry, NewBroadcaster(log), sink)

	// When no identifier can be drawn
	err := c.Join(ctx, domain.JoinCommand{DisplayName: "alice"})

	// Then the peer is told to retry later and nothing was created
	req.ErrorIs(err, errors.ErrIdentifierExhausted)
	req.Equal([]event.Event{event.JoinError{Reason: errors.ReasonUnavailable}}, sink.Events())
	req.Equal(Unjoined, c.State())
	req.Zero(registry.Stats().Sessions)

	// And a later join goes through
	req.NoError(c.Join(ctx, domain.JoinCommand{DisplayName: "alice"}))
	req.Equal(Joined, c.State())
	req.Equal(event.SessionCreated{SessionID: "ab12cd"}, sink.Events()[1])
}

func TestController_Join_Twice_IsProtocolViolation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRelay(t, "ab12cd", "ef34gh")

	c, sink := relay.connect()
	req.NoError(c.Join(ctx, domain.JoinCommand{DisplayName: "alice"}))

	err := c.Join(ctx, domain.JoinCommand{DisplayName: "alice"})

	req.ErrorIs(err, errors.ErrAlreadyJoined)
	req.Equal(event.JoinError{Reason: errors.ReasonAlreadyJoined}, sink.Events()[len(sink.Events())-1])
	// Then nothing changed in the registry
	req.Equal(domain.RegistryStats{Sessions: 1, LiveConnections: 1}, relay.registry.Stats())
}

func TestController_Join_NormalizesName(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRelay(t, "ab12cd")

	long, sinkLong := relay.connect()
	req.NoError(long.Join(ctx, domain.JoinCommand{DisplayName: "  " + strings.Repeat("n", 30) + " "}))
	blank, _ := relay.connect()
	req.NoError(blank.Join(ctx, domain.JoinCommand{SessionID: lo.ToPtr(domain.SessionID("ab12cd")), DisplayName: "   "}))

	req.NoError(long.Send(ctx, domain.SendCommand{Text: "one"}))
	req.NoError(blank.Send(ctx, domain.SendCommand{Text: "two"}))

	messages := sinkLong.Messages()
	req.Len(messages, 2)
	req.Equal(strings.Repeat("n", domain.MaxDisplayNameLength), messages[0].Author)
	req.Equal(domain.DefaultDisplayName, messages[1].Author)
}

func TestController_Send_BlankIsIgnored(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log, NewIdentifierGenerator())
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	sink := &RecordingSink{}

	broadcaster.EXPECT().Subscribe(gomock.Any(), "conn", sink).Times(1)
	// Then nothing is ever published
	broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	c := NewController(log, "conn", registry, broadcaster, sink)
	req.NoError(c.Join(ctx, domain.JoinCommand{DisplayName: "alice"}))

	// When blank texts are sent
	req.NoError(c.Send(ctx, domain.SendCommand{Text: ""}))
	req.NoError(c.Send(ctx, domain.SendCommand{Text: " \t\n "}))

	// Then the log stays empty
	req.Zero(registry.Stats().Messages)
}

func TestController_Send_BeforeJoinIsIgnored(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRelay(t)

	c, sink := relay.connect()
	req.NoError(c.Handle(ctx, domain.SendCommand{Text: "hello?"}))

	req.Empty(sink.Events())
	req.Zero(relay.registry.Stats().Sessions)
	req.Equal(Unjoined, c.State())
}

func TestController_Send_AppliesFilterAndMaxLength(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	filter := mocks.NewMockITextFilter(ctrl)
	relay := newRelay(t)

	filter.EXPECT().Filter("bad wo").Return("*** wo").Times(1)

	c, sink := relay.connect(WithTextFilter(filter), WithMaxTextLength(6))
	req.NoError(c.Join(ctx, domain.JoinCommand{DisplayName: "alice"}))
	req.NoError(c.Send(ctx, domain.SendCommand{Text: "bad words"}))

	req.Equal("*** wo", sink.Messages()[0].Text)
}

func TestController_Close_IsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRelay(t, "ab12cd")

	host, _ := relay.connect()
	req.NoError(host.Join(ctx, domain.JoinCommand{DisplayName: "host"}))
	c, _ := relay.connect()
	req.NoError(c.Join(ctx, domain.JoinCommand{SessionID: lo.ToPtr(domain.SessionID("ab12cd")), DisplayName: "guest"}))

	req.NoError(c.Close(ctx))
	req.NoError(c.Close(ctx))
	req.Equal(Closed, c.State())

	// Then the second close did not decrement again
	req.Equal(1, relay.registry.Stats().LiveConnections)

	// And a closed connection ignores further events
	req.NoError(c.Send(ctx, domain.SendCommand{Text: "ghost"}))
	req.ErrorIs(c.Join(ctx, domain.JoinCommand{DisplayName: "guest"}), errors.ErrConnectionClosed)
	req.Zero(relay.registry.Stats().Messages)
}

func TestController_Close_UnsubscribesWhenSessionIsGone(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := mocks.NewMockIRegistry(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	sink := &RecordingSink{}

	registry.EXPECT().Join(gomock.Any(), "alice", gomock.Any()).
		DoAndReturn(func(_ *domain.SessionID, _ string, onJoined func(domain.JoinResult)) (domain.JoinResult, error) {
			res := domain.JoinResult{SessionID: "ab12cd", Created: true, History: []domain.Message{}}
			onJoined(res)
			return res, nil
		}).Times(1)
	broadcaster.EXPECT().Subscribe(domain.SessionID("ab12cd"), "conn", sink).Times(1)

	c := NewController(log, "conn", registry, broadcaster, sink)
	req.NoError(c.Join(ctx, domain.JoinCommand{DisplayName: "alice"}))

	// Given the session cannot be found anymore at close time
	registry.EXPECT().Leave(domain.SessionID("ab12cd"), "alice", gomock.Any()).
		Return(0, fmt.Errorf("%w: ab12cd", errors.ErrSessionNotFound)).Times(1)

	// Then the subscription is still removed
	broadcaster.EXPECT().Unsubscribe(domain.SessionID("ab12cd"), "conn").Times(1)

	err := c.Close(ctx)

	req.ErrorIs(err, errors.ErrSessionNotFound)
	req.Equal(Closed, c.State())
}

func TestController_Close_Unjoined(t *testing.T) {
	req := require.New(t)
	relay := newRelay(t)

	c, sink := relay.connect()
	req.NoError(c.Close(context.Background()))

	req.Equal(Closed, c.State())
	req.Empty(sink.Events())
}

func TestController_HistoryReplayedInOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRelay(t, "ab12cd")

	a, _ := relay.connect()
	req.NoError(a.Join(ctx, domain.JoinCommand{DisplayName: "alice"}))
	texts := []string{"one", "two", "three"}
	for _, text := range texts {
		req.NoError(a.Send(ctx, domain.SendCommand{Text: text}))
	}

	late, sink := relay.connect()
	req.NoError(late.Join(ctx, domain.JoinCommand{SessionID: lo.ToPtr(domain.SessionID("ab12cd")), DisplayName: "late"}))

	history, ok := sink.Events()[0].(event.History)
	req.True(ok)
	req.Equal(texts, lo.Map(history.Messages, func(m domain.Message, _ int) string { return m.Text }))
}

func TestController_ConcurrentSendersShareOneOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRelay(t, "ab12cd")

	const members = 4
	const perMember = 25
	controllers := make([]*Controller, members)
	sinks := make([]*RecordingSink, members)
	for i := range controllers {
		controllers[i], sinks[i] = relay.connect()
		cmd := domain.JoinCommand{DisplayName: "member"}
		if i > 0 {
			cmd.SessionID = lo.ToPtr(domain.SessionID("ab12cd"))
		}
		req.NoError(controllers[i].Join(ctx, cmd))
	}

	var wg sync.WaitGroup
	for _, c := range controllers {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			for j := 0; j < perMember; j++ {
				_ = c.Send(ctx, domain.SendCommand{Text: "msg"})
			}
		}(c)
	}
	wg.Wait()

	// Then every member observed the same sequence, equal to the log
	var history []domain.Message
	req.NoError(relay.registry.WithSession("ab12cd", func(s *domain.Session) error {
		history = s.History()
		return nil
	}))
	req.Len(history, members*perMember)
	for _, sink := range sinks {
		req.Equal(history, sink.Messages())
	}
}
