package redis

import (
	"fmt"

	"github.com/mcoot/bananaclick/internal/model"
)

// keys builds the Redis keys for each entity type under a common prefix
type keys struct {
	prefix string
}

// user returns the key holding a User as JSON
func (k keys) user(id model.UserID) string {
	return fmt.Sprintf("%s:user:%s", k.prefix, id)
}

// usernameIndex returns the key mapping a username to its user id
func (k keys) usernameIndex(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", k.prefix, username)
}

// usersIndex returns the ZSET of all user ids scored by creation sequence
func (k keys) usersIndex() string {
	return fmt.Sprintf("%s:idx:users", k.prefix)
}

// seq returns the counter used to assign creation sequence numbers
func (k keys) seq() string {
	return fmt.Sprintf("%s:seq:users", k.prefix)
}
