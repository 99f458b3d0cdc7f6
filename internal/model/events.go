package model

import "time"

// EventType identifies the type of event pushed to clients
type EventType string

const (
	EventPresence    EventType = "presence"
	EventCounter     EventType = "counter"
	EventRanking     EventType = "ranking"
	EventUserUpdated EventType = "user_updated"
	EventUserDeleted EventType = "user_deleted"
	EventError       EventType = "error"
)

// Event is the base structure for all outbound events
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any // Type-specific data
}

// PresenceEvent reports that a user gained its first or lost its last live connection
type PresenceEvent struct {
	UserID   UserID
	Username string
	Active   bool
}

// CounterEvent carries a user's new counter value
type CounterEvent struct {
	UserID   UserID
	Username string
	Value    int64
}

// RankingEvent carries a freshly computed leaderboard
type RankingEvent struct {
	Entries RankingSnapshot
}

// UserUpdatedEvent carries the public view of a created or modified user
type UserUpdatedEvent struct {
	UserID   UserID
	Username string
	Role     Role
	Counter  int64
	Blocked  bool
	Active   bool
}

// UserDeletedEvent reports that a user was removed
type UserDeletedEvent struct {
	UserID UserID
}

// ErrorEvent is sent to a single connection when one of its requests fails
type ErrorEvent struct {
	Code    string
	Message string
}

// UserUpdatedFromUser builds the public view of u
func UserUpdatedFromUser(u *User) UserUpdatedEvent {
	return UserUpdatedEvent{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		Counter:  u.Counter,
		Blocked:  u.Blocked,
		Active:   u.Active,
	}
}
