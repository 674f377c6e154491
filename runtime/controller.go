package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type State int

const (
	Unjoined State = iota
	Joined
	Closed
)

func (s State) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joined:
		return "joined"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// connectionState is what a connection must remember to clean up after itself.
type connectionState struct {
	state       State
	sessionID   domain.SessionID
	displayName string
}

// Controller drives one connection through Unjoined -> Joined -> Closed.
// Transitions of a single connection are serialized by its own mutex,
// session mutations by the registry lock.
type Controller struct {
	mu            sync.Mutex
	id            string
	log           *slog.Logger
	registry      contract.IRegistry
	broadcaster   contract.IBroadcaster
	sink          contract.EventSink
	filter        contract.ITextFilter
	maxTextLength int
	current       connectionState
}

type ControllerOption func(*Controller)

// WithTextFilter rewrites every accepted text before it is appended.
func WithTextFilter(filter contract.ITextFilter) ControllerOption {
	return func(c *Controller) { c.filter = filter }
}

// WithMaxTextLength truncates texts longer than n runes. Zero disables it.
func WithMaxTextLength(n int) ControllerOption {
	return func(c *Controller) { c.maxTextLength = n }
}

func NewController(log *slog.Logger, connectionID string, registry contract.IRegistry,
	broadcaster contract.IBroadcaster, sink contract.EventSink, opts ...ControllerOption) *Controller {
	c := &Controller{
		id:          connectionID,
		log:         log.With("connection_id", connectionID),
		registry:    registry,
		broadcaster: broadcaster,
		sink:        sink,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.state
}

// Handle routes a peer command to its transition.
func (c *Controller) Handle(ctx context.Context, cmd domain.Command) error {
	switch command := cmd.(type) {
	case domain.JoinCommand:
		return c.Join(ctx, command)
	case domain.SendCommand:
		return c.Send(ctx, command)
	default:
		c.log.Debug("Unknown command ignored", "command", cmd.Name())
		return nil
	}
}

// Join attaches the connection to a session.
// The history snapshot and, for a new session, its id are pushed to the
// connection's sink before it is subscribed, all under the registry lock,
// so no broadcast can overtake the replay.
// A failed join leaves the connection Unjoined and reports a joinError.
func (c *Controller) Join(ctx context.Context, cmd domain.JoinCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.current.state {
	case Closed:
		return errors.ErrConnectionClosed
	case Joined:
		c.log.Warn("Protocol violation: join on a joined connection",
			"session_id", c.current.sessionID)
		c.reject(ctx, errors.ErrAlreadyJoined)
		return errors.ErrAlreadyJoined
	}

	displayName := domain.NormalizeDisplayName(cmd.DisplayName)
	result, err := c.registry.Join(cmd.SessionID, displayName, func(res domain.JoinResult) {
		if res.Created {
			c.deliver(ctx, event.SessionCreated{SessionID: res.SessionID})
		}
		c.deliver(ctx, event.History{SessionID: res.SessionID, Messages: res.History})
		c.broadcaster.Subscribe(res.SessionID, c.id, c.sink)
	})
	if err != nil {
		c.log.Info("Join rejected", "display_name", displayName, "error", err)
		c.reject(ctx, err)
		return err
	}

	c.current = connectionState{
		state:       Joined,
		sessionID:   result.SessionID,
		displayName: displayName,
	}
	c.log.Info("Connection joined",
		"session_id", result.SessionID,
		"display_name", displayName,
		"created", result.Created,
		"history", len(result.History))
	return nil
}

// Send appends the text to the session log and broadcasts it to every member,
// sender included. Blank texts and texts sent before join are ignored.
func (c *Controller) Send(ctx context.Context, cmd domain.SendCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.state != Joined {
		c.log.Debug("Send ignored", "state", c.current.state)
		return nil
	}
	text, ok := domain.NormalizeText(cmd.Text, c.maxTextLength)
	if !ok {
		return nil
	}
	if c.filter != nil {
		text = c.filter.Filter(text)
	}

	sessionID, author := c.current.sessionID, c.current.displayName
	return c.registry.WithSession(sessionID, func(s *domain.Session) error {
		msg := s.AppendMessage(author, text)
		delivered := c.broadcaster.Publish(ctx, sessionID, event.MessagePosted{
			SessionID: sessionID,
			Message:   msg,
		})
		c.log.Debug("Message broadcast",
			"session_id", sessionID,
			"message_id", msg.ID,
			"delivered", delivered)
		return nil
	})
}

// Close releases whatever the connection holds. Calling it again is a no-op.
func (c *Controller) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.current
	c.current = connectionState{state: Closed}
	if previous.state != Joined {
		return nil
	}

	remaining, err := c.registry.Leave(previous.sessionID, previous.displayName, func() {
		c.broadcaster.Unsubscribe(previous.sessionID, c.id)
	})
	if err != nil {
		// The session is gone already, the subscription must not outlive it
		c.broadcaster.Unsubscribe(previous.sessionID, c.id)
		return fmt.Errorf("leave session %s: %w", previous.sessionID, err)
	}
	c.log.Info("Connection left",
		"session_id", previous.sessionID,
		"display_name", previous.displayName,
		"remaining", remaining)
	return nil
}

func (c *Controller) reject(ctx context.Context, err error) {
	c.deliver(ctx, event.JoinError{Reason: errors.Reason(err)})
}

func (c *Controller) deliver(ctx context.Context, e event.Event) {
	if err := c.sink.Consume(ctx, e); err != nil {
		c.log.Warn("Event not delivered", "event", e.Type(), "error", err)
	}
}
