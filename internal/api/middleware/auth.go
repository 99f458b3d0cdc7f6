package middleware

import (
	"context"
	"net/http"

	"github.com/mcoot/bananaclick/internal/api/apierr"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/services/auth"
)

type contextKey string

const (
	userContextKey  contextKey = "user"
	tokenContextKey contextKey = "token"
)

// TokenValidator resolves a bearer token to the identity it is bound to
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.User, error)
}

// Auth creates authentication middleware
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			user, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			// Add user and token to context
			ctx := r.Context()
			ctx = context.WithValue(ctx, userContextKey, user)
			ctx = context.WithValue(ctx, tokenContextKey, token)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects authenticated users without the admin role.
// Must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil {
			apierr.WriteError(w, apierr.NewUnauthorizedError())
			return
		}
		if !user.IsAdmin() {
			apierr.WriteError(w, apierr.NewForbiddenError("Admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUser returns the authenticated user from the request context
func GetUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}

// GetToken returns the bearer token the request authenticated with
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// MustGetUser returns the authenticated user or panics
func MustGetUser(ctx context.Context) *model.User {
	user := GetUser(ctx)
	if user == nil {
		panic("no user in context - auth middleware not applied?")
	}
	return user
}
