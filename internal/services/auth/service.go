package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/bananaclick/internal/dependencies/clock"
	"github.com/mcoot/bananaclick/internal/dependencies/random"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("username must be 3-32 characters")
	ErrInvalidPassword    = errors.New("password must be at least 6 characters")
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	minPasswordLength = 6
	secretAlphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Session represents an issued bearer token and the identity it is bound to
type Session struct {
	Token     string
	User      model.User
	ExpiresAt time.Time
}

// Config holds configuration for the auth service
type Config struct {
	// Secret signs tokens with HS256. Empty means a random per-process secret.
	Secret        string
	TokenDuration time.Duration
	BcryptCost    int
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		TokenDuration: 24 * time.Hour,
		BcryptCost:    bcrypt.DefaultCost,
	}
}

type claims struct {
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and validates session tokens
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
	cfg     Config
	secret  []byte
	parser  *jwt.Parser

	mu      sync.Mutex
	revoked map[string]time.Time // token ID -> expiry
}

// New creates a new auth Service
func New(store storage.Storage, clk clock.Clock, logger *slog.Logger, cfg Config) *Service {
	defaults := DefaultConfig()
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = defaults.TokenDuration
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaults.BcryptCost
	}
	logger = logger.With(slog.String("component", "auth"))
	if cfg.Secret == "" {
		logger.Warn("no token secret configured, tokens will not survive a restart")
		cfg.Secret = random.New().String(48, secretAlphabet)
	}
	return &Service{
		storage: store,
		clock:   clk,
		logger:  logger,
		cfg:     cfg,
		secret:  []byte(cfg.Secret),
		// Expiry is checked against the injected clock rather than wall time
		parser:  jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation()),
		revoked: make(map[string]time.Time),
	}
}

// HashPassword returns the bcrypt hash of password
func (s *Service) HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ValidateUsername checks the length bounds on a username
func ValidateUsername(username string) error {
	n := len(strings.TrimSpace(username))
	if n < minUsernameLength || n > maxUsernameLength || n != len(username) {
		return ErrInvalidUsername
	}
	return nil
}

// Register creates a player account and issues a token for it
func (s *Service) Register(ctx context.Context, username, password string) (*Session, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &model.User{
		ID:           model.UserID(uuid.NewString()),
		Username:     username,
		PasswordHash: hash,
		Role:         model.RolePlayer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", string(user.ID)), slog.String("username", username))
	return s.issue(user)
}

// Login verifies credentials and issues a token
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.storage.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// ValidateToken verifies a bearer token and returns the identity it is bound to.
// Every credential problem is reported as model.ErrUnauthenticated; a store
// outage while loading the identity is reported as model.ErrStoreUnavailable.
func (s *Service) ValidateToken(ctx context.Context, token string) (*model.User, error) {
	c, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	user, err := s.storage.GetUser(ctx, model.UserID(c.Subject))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: identity no longer exists", model.ErrUnauthenticated)
		}
		return nil, err
	}
	return user, nil
}

// RevokeToken invalidates a token until its natural expiry
func (s *Service) RevokeToken(token string) error {
	c, err := s.parse(token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.revoked[c.ID] = c.ExpiresAt.Time
	s.mu.Unlock()
	return nil
}

// CleanRevokedTokens forgets revocations whose tokens have expired anyway (call periodically)
func (s *Service) CleanRevokedTokens() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, expiresAt := range s.revoked {
		if !now.Before(expiresAt) {
			delete(s.revoked, id)
		}
	}
}

func (s *Service) parse(token string) (*claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing credential", model.ErrUnauthenticated)
	}

	var c claims
	_, err := s.parser.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
	}
	if c.Subject == "" || c.ID == "" || c.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: incomplete claims", model.ErrUnauthenticated)
	}
	if !s.clock.Now().Before(c.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: token expired", model.ErrUnauthenticated)
	}

	s.mu.Lock()
	_, revoked := s.revoked[c.ID]
	s.mu.Unlock()
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", model.ErrUnauthenticated)
	}
	return &c, nil
}

func (s *Service) issue(user *model.User) (*Session, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.TokenDuration)

	c := claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   string(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{
		Token:     token,
		User:      *user,
		ExpiresAt: expiresAt,
	}, nil
}
