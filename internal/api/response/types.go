package response

import (
	"time"

	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/services/auth"
)

// User represents a user in API responses. The password hash never leaves the server.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Counter   int64     `json:"counter"`
	IsBlocked bool      `json:"isBlocked"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserFromModel converts a model.User to a response User
func UserFromModel(u *model.User) User {
	return User{
		ID:        string(u.ID),
		Username:  u.Username,
		Role:      string(u.Role),
		Counter:   u.Counter,
		IsBlocked: u.Blocked,
		IsActive:  u.Active,
		CreatedAt: u.CreatedAt,
	}
}

// UsersFromModel converts a list of users
func UsersFromModel(users []*model.User) []User {
	result := make([]User, len(users))
	for i, u := range users {
		result[i] = UserFromModel(u)
	}
	return result
}

// AuthResponse is the response for authentication endpoints
type AuthResponse struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *auth.Session) AuthResponse {
	return AuthResponse{
		User:      UserFromModel(&s.User),
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}

// RankingEntry is one row of the leaderboard
type RankingEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Counter  int64  `json:"counter"`
}

// RankingFromModel converts a snapshot, numbering entries from 1
func RankingFromModel(snapshot model.RankingSnapshot) []RankingEntry {
	result := make([]RankingEntry, len(snapshot))
	for i, e := range snapshot {
		result[i] = RankingEntry{
			Rank:     i + 1,
			UserID:   string(e.UserID),
			Username: e.Username,
			Counter:  e.Counter,
		}
	}
	return result
}

// Health is the response of the health check
type Health struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// Stats reports live connection counts
type Stats struct {
	Connections      int `json:"connections"`
	BoundConnections int `json:"boundConnections"`
	ActiveUsers      int `json:"activeUsers"`
}
