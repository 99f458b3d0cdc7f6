package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/bananaclick/internal/model"
)

// Envelope is the JSON frame exchanged with clients
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound message types
const (
	MessageIncrement = "increment"
)

// InboundMessage is a client request. Identity fields are accepted for
// compatibility but never trusted; the connection binding decides the user.
type InboundMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
}

// PresencePayload is the data of a presence event
type PresencePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsActive bool   `json:"isActive"`
}

// CounterPayload is the data of a counter event
type CounterPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Value    int64  `json:"value"`
}

// RankingEntryPayload is one row of a ranking event
type RankingEntryPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Value    int64  `json:"value"`
}

// UserPayload is the data of a user_updated event
type UserPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Counter  int64  `json:"counter"`
	Blocked  bool   `json:"blocked"`
	IsActive bool   `json:"isActive"`
}

// UserDeletedPayload is the data of a user_deleted event
type UserDeletedPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload is the data of an error event
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RankingPayload converts a snapshot to its wire form
func RankingPayload(snapshot model.RankingSnapshot) []RankingEntryPayload {
	entries := make([]RankingEntryPayload, len(snapshot))
	for i, e := range snapshot {
		entries[i] = RankingEntryPayload{UserID: string(e.UserID), Username: e.Username, Value: e.Counter}
	}
	return entries
}

// payload maps a domain event to its wire data
func payload(event model.Event) (any, error) {
	switch p := event.Payload.(type) {
	case model.PresenceEvent:
		return PresencePayload{UserID: string(p.UserID), Username: p.Username, IsActive: p.Active}, nil
	case model.CounterEvent:
		return CounterPayload{UserID: string(p.UserID), Username: p.Username, Value: p.Value}, nil
	case model.RankingEvent:
		return RankingPayload(p.Entries), nil
	case model.UserUpdatedEvent:
		return UserPayload{
			UserID:   string(p.UserID),
			Username: p.Username,
			Role:     string(p.Role),
			Counter:  p.Counter,
			Blocked:  p.Blocked,
			IsActive: p.Active,
		}, nil
	case model.UserDeletedEvent:
		return UserDeletedPayload{UserID: string(p.UserID)}, nil
	case model.ErrorEvent:
		return ErrorPayload{Code: p.Code, Message: p.Message}, nil
	default:
		return nil, fmt.Errorf("unsupported payload %T for event %q", event.Payload, event.Type)
	}
}

// EncodeData returns the JSON data of an event without the envelope
func EncodeData(event model.Event) ([]byte, error) {
	p, err := payload(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// Encode returns the full JSON envelope of an event
func Encode(event model.Event) ([]byte, error) {
	data, err := EncodeData(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: string(event.Type), Data: data})
}
