package model

import "time"

// ConnectionID identifies one live duplex channel to a client
type ConnectionID string

// ConnState is the lifecycle state of a connection
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnAuthenticated
	ConnDisconnected // terminal
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnAuthenticated:
		return "authenticated"
	case ConnDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Connection is the registry's view of a live connection
type Connection struct {
	ID          ConnectionID
	UserID      UserID
	Username    string
	State       ConnState
	ConnectedAt time.Time
}
