package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
	keys   keys
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.Unavailable(err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if cfg.MaxUpdateRetries <= 0 {
		cfg.MaxUpdateRetries = DefaultConfig().MaxUpdateRetries
	}
	return &Storage{
		client: client,
		cfg:    cfg,
		keys:   keys{prefix: cfg.KeyPrefix},
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return storage.Unavailable(s.client.Ping(ctx).Err())
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	// Claim the username first so concurrent registrations cannot both win
	claimed, err := s.client.SetNX(ctx, s.keys.usernameIndex(user.Username), string(user.ID), 0).Result()
	if err != nil {
		return storage.Unavailable(err)
	}
	if !claimed {
		return model.ErrUsernameExists
	}

	seq, err := s.client.Incr(ctx, s.keys.seq()).Result()
	if err != nil {
		_ = s.client.Del(ctx, s.keys.usernameIndex(user.Username)).Err()
		return storage.Unavailable(err)
	}
	user.Seq = seq

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	// Use pipeline for atomic save + index update
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keys.user(user.ID), data, 0)
	pipe.ZAdd(ctx, s.keys.usersIndex(), redis.Z{Score: float64(seq), Member: string(user.ID)})
	if _, err := pipe.Exec(ctx); err != nil {
		return storage.Unavailable(err)
	}
	return nil
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	data, err := s.client.Get(ctx, s.keys.user(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrUserNotFound
		}
		return nil, storage.Unavailable(err)
	}
	return decodeUser(data)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	// Look up user ID from username index
	id, err := s.client.Get(ctx, s.keys.usernameIndex(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrUserNotFound
		}
		return nil, storage.Unavailable(err)
	}
	return s.GetUser(ctx, model.UserID(id))
}

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	_, err := s.UpdateUser(ctx, user.ID, func(u *model.User) error {
		seq := u.Seq
		*u = *user
		u.Seq = seq
		return nil
	})
	return err
}

// UpdateUser runs fn inside a WATCH/MULTI transaction on the user key and
// retries when another writer modified the key in between.
func (s *Storage) UpdateUser(ctx context.Context, id model.UserID, fn storage.UpdateFunc) (*model.User, error) {
	key := s.keys.user(id)

	for attempt := 0; attempt < s.cfg.MaxUpdateRetries; attempt++ {
		var (
			result *model.User
			fnErr  error
		)

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return model.ErrUserNotFound
				}
				return err
			}
			user, err := decodeUser(data)
			if err != nil {
				return err
			}

			oldUsername := user.Username
			if err := fn(user); err != nil {
				fnErr = err
				return err
			}

			renamed := user.Username != oldUsername
			if renamed {
				// A concurrent create or rename claiming the same name fails the EXEC
				if err := tx.Watch(ctx, s.keys.usernameIndex(user.Username)).Err(); err != nil {
					return err
				}
				taken, err := tx.Exists(ctx, s.keys.usernameIndex(user.Username)).Result()
				if err != nil {
					return err
				}
				if taken > 0 {
					return model.ErrUsernameExists
				}
			}

			encoded, err := json.Marshal(user)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				if renamed {
					pipe.Del(ctx, s.keys.usernameIndex(oldUsername))
					pipe.Set(ctx, s.keys.usernameIndex(user.Username), string(id), 0)
				}
				return nil
			})
			if err == nil {
				result = user
			}
			return err
		}, key)

		switch {
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err != nil:
			return nil, storage.Unavailable(err)
		}
		return result, nil
	}

	return nil, storage.Unavailable(fmt.Errorf("update of user %s contended after %d attempts", id, s.cfg.MaxUpdateRetries))
}

func (s *Storage) DeleteUser(ctx context.Context, id model.UserID) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keys.user(id))
	pipe.Del(ctx, s.keys.usernameIndex(user.Username))
	pipe.ZRem(ctx, s.keys.usersIndex(), string(id))
	_, err = pipe.Exec(ctx)
	return storage.Unavailable(err)
}

func (s *Storage) ListUsers(ctx context.Context, opts storage.ListOptions) ([]*model.User, error) {
	users, err := s.allUsers(ctx)
	if err != nil {
		return nil, err
	}
	return storage.Apply(users, opts), nil
}

// allUsers loads every user listed in the creation-order index
func (s *Storage) allUsers(ctx context.Context) ([]*model.User, error) {
	ids, err := s.client.ZRange(ctx, s.keys.usersIndex(), 0, -1).Result()
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	if len(ids) == 0 {
		return []*model.User{}, nil
	}

	userKeys := make([]string, len(ids))
	for i, id := range ids {
		userKeys[i] = s.keys.user(model.UserID(id))
	}

	values, err := s.client.MGet(ctx, userKeys...).Result()
	if err != nil {
		return nil, storage.Unavailable(err)
	}

	users := make([]*model.User, 0, len(values))
	for _, val := range values {
		str, ok := val.(string)
		if !ok {
			continue // Deleted between ZRANGE and MGET
		}
		user, err := decodeUser([]byte(str))
		if err != nil {
			continue // Skip invalid data
		}
		users = append(users, user)
	}
	return users, nil
}

// Presence operations

func (s *Storage) SetPresence(ctx context.Context, id model.UserID, active bool) error {
	_, err := s.UpdateUser(ctx, id, func(u *model.User) error {
		u.Active = active
		return nil
	})
	return err
}

func (s *Storage) ResetPresence(ctx context.Context) error {
	users, err := s.allUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if !u.Active {
			continue
		}
		if err := s.SetPresence(ctx, u.ID, false); err != nil && !errors.Is(err, model.ErrUserNotFound) {
			return err
		}
	}
	return nil
}

func decodeUser(data []byte) (*model.User, error) {
	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
