package websocket

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

const (
	TypeJoin = "join"
	TypeSend = "send"
)

// Envelope is the frame exchanged in both directions: {"type": ..., "payload": {...}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload names are left unbounded here, the controller normalizes them.
// The frame read limit caps their size.
type JoinPayload struct {
	SessionID   *string `json:"sessionId" validate:"omitempty,max=64"`
	DisplayName string  `json:"displayName"`
}

// SendPayload texts are truncated by the controller to the configured length.
type SendPayload struct {
	Text string `json:"text"`
}

type SessionCreatedPayload struct {
	SessionID string `json:"sessionId"`
}

type HistoryPayload struct {
	Messages []MessagePayload `json:"messages"`
}

type JoinErrorPayload struct {
	Reason string `json:"reason"`
}

type MessagePayload struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DecodeCommand turns an inbound frame into a domain command.
// It returns the envelope type so the caller can answer a broken join,
// and a nil command for unknown types.
func DecodeCommand(data []byte) (domain.Command, string, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, "", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}

	switch envelope.Type {
	case TypeJoin:
		var payload JoinPayload
		if err := decodePayload(envelope.Payload, &payload); err != nil {
			return nil, envelope.Type, err
		}
		cmd := domain.JoinCommand{DisplayName: payload.DisplayName}
		if payload.SessionID != nil {
			cmd.SessionID = lo.ToPtr(domain.SessionID(*payload.SessionID))
		}
		return cmd, envelope.Type, nil
	case TypeSend:
		var payload SendPayload
		if err := decodePayload(envelope.Payload, &payload); err != nil {
			return nil, envelope.Type, err
		}
		return domain.SendCommand{Text: payload.Text}, envelope.Type, nil
	default:
		return nil, envelope.Type, nil
	}
}

func decodePayload(raw json.RawMessage, target any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

// EncodeEvent renders an outbound event as a text frame.
func EncodeEvent(e event.Event) ([]byte, error) {
	var payload any
	switch evt := e.(type) {
	case event.SessionCreated:
		payload = SessionCreatedPayload{SessionID: string(evt.SessionID)}
	case event.History:
		payload = HistoryPayload{Messages: lo.Map(evt.Messages, func(m domain.Message, _ int) MessagePayload {
			return toMessagePayload(m)
		})}
	case event.JoinError:
		payload = JoinErrorPayload{Reason: evt.Reason}
	case event.MessagePosted:
		payload = toMessagePayload(evt.Message)
	default:
		return nil, fmt.Errorf("unsupported event %T", e)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: string(e.Type()), Payload: raw})
}

func toMessagePayload(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:        m.ID.String(),
		Author:    m.Author,
		Text:      m.Text,
		Timestamp: m.CreatedAt,
	}
}

// EncodeCommand is the client side of DecodeCommand.
func EncodeCommand(cmd domain.Command) ([]byte, error) {
	var payload any
	switch c := cmd.(type) {
	case domain.JoinCommand:
		p := JoinPayload{DisplayName: c.DisplayName}
		if c.SessionID != nil {
			p.SessionID = lo.ToPtr(string(*c.SessionID))
		}
		payload = p
	case domain.SendCommand:
		payload = SendPayload{Text: c.Text}
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: cmd.Name(), Payload: raw})
}

// DecodeEvent is the client side of EncodeEvent.
func DecodeEvent(data []byte) (event.Event, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}

	switch event.Type(envelope.Type) {
	case event.TypeSessionCreated:
		var payload SessionCreatedPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		return event.SessionCreated{SessionID: domain.SessionID(payload.SessionID)}, nil
	case event.TypeHistory:
		var payload HistoryPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		return event.History{Messages: lo.Map(payload.Messages, func(m MessagePayload, _ int) domain.Message {
			return fromMessagePayload(m)
		})}, nil
	case event.TypeJoinError:
		var payload JoinErrorPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		return event.JoinError{Reason: payload.Reason}, nil
	case event.TypeMessage:
		var payload MessagePayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		return event.MessagePosted{Message: fromMessagePayload(payload)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", errors.ErrInvalidPayload, envelope.Type)
	}
}

func fromMessagePayload(m MessagePayload) domain.Message {
	id, _ := uuid.Parse(m.ID)
	return domain.Message{
		ID:        id,
		Author:    m.Author,
		Text:      m.Text,
		CreatedAt: m.Timestamp,
	}
}
