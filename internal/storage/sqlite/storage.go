package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"

	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// Storage is a SQLite-backed implementation of the storage interface
type Storage struct {
	db *sql.DB
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// New opens the database at path and creates the schema. Call Close when done.
func New(ctx context.Context, path string) (*Storage, error) {
	if path == "" {
		path = "bananaclick.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	// A single connection serializes writers; UpdateUser transactions rely on it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Storage{db: db}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Unavailable(err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Unavailable(err)
	}
	return s, nil
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

func (s *Storage) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS users (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		counter INTEGER NOT NULL DEFAULT 0,
		blocked INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`)
	return err
}

// Close releases the underlying DB connection
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return storage.Unavailable(s.db.PingContext(ctx))
}

const userColumns = `seq, id, username, password_hash, role, counter, blocked, active, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                    model.User
		role                 string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.Seq, &u.ID, &u.Username, &u.PasswordHash, &role, &u.Counter, &u.Blocked, &u.Active, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, err
	}
	u.Role = model.Role(role)
	u.CreatedAt = time.Unix(0, createdAt).UTC()
	u.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &u, nil
}

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, username, password_hash, role, counter, blocked, active, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(user.ID), user.Username, user.PasswordHash, string(user.Role), user.Counter,
		user.Blocked, user.Active, user.CreatedAt.UnixNano(), user.UpdatedAt.UnixNano())
	if err != nil {
		if isConstraintError(err) {
			return model.ErrUsernameExists
		}
		return storage.Unavailable(err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return storage.Unavailable(err)
	}
	user.Seq = seq
	return nil
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, string(id))
	user, err := scanUser(row)
	return user, storage.Unavailable(err)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	return user, storage.Unavailable(err)
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

func (s *Storage) UpdateUser(ctx context.Context, id model.UserID, fn storage.UpdateFunc) (*model.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, string(id)))
	if err != nil {
		return nil, storage.Unavailable(err)
	}

	if err := fn(user); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET username = ?, password_hash = ?, role = ?, counter = ?, blocked = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username, user.PasswordHash, string(user.Role), user.Counter, user.Blocked, user.Active,
		user.UpdatedAt.UnixNano(), string(id))
	if err != nil {
		if isConstraintError(err) {
			return nil, model.ErrUsernameExists
		}
		return nil, storage.Unavailable(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storage.Unavailable(err)
	}
	return user, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id model.UserID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, string(id))
	if err != nil {
		return storage.Unavailable(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storage.Unavailable(err)
	}
	if n == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (s *Storage) ListUsers(ctx context.Context, opts storage.ListOptions) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if opts.Role != "" {
		query += ` WHERE role = ?`
		args = append(args, string(opts.Role))
	}
	if opts.ByCounter {
		query += ` ORDER BY counter DESC, seq ASC`
	} else {
		query += ` ORDER BY seq ASC`
	}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storage.Unavailable(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(err)
	}
	return users, nil
}

// Presence operations

func (s *Storage) SetPresence(ctx context.Context, id model.UserID, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET active = ? WHERE id = ?`, active, string(id))
	if err != nil {
		return storage.Unavailable(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storage.Unavailable(err)
	}
	if n == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (s *Storage) ResetPresence(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET active = 0`)
	return storage.Unavailable(err)
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// Extended result codes keep the primary code in the low byte
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}
