package auth

import (
	"net/http"
	"strings"
)

// SessionCookie is the cookie a browser client carries its token in
const SessionCookie = "session"

// TokenFromRequest extracts the bearer credential from the request.
// The Authorization header wins, then the token query parameter (browsers
// cannot set headers on a websocket handshake), then the session cookie.
func TokenFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	cookie, err := r.Cookie(SessionCookie)
	if err == nil {
		return cookie.Value
	}

	return ""
}
