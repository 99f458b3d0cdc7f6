package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		target   string
		expected string
	}{
		{
			name:     "bearer header",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") },
			target:   "/ws",
			expected: "abc",
		},
		{
			name:     "query parameter",
			target:   "/ws?token=def",
			expected: "def",
		},
		{
			name:     "cookie",
			setup:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "ghi"}) },
			target:   "/ws",
			expected: "ghi",
		},
		{
			name: "header wins over query and cookie",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer abc")
				r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "ghi"})
			},
			target:   "/ws?token=def",
			expected: "abc",
		},
		{
			name:     "non-bearer header ignored",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
			target:   "/ws",
			expected: "",
		},
		{
			name:     "nothing",
			target:   "/ws",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.setup != nil {
				tt.setup(r)
			}
			assert.Equal(t, tt.expected, TokenFromRequest(r))
		})
	}
}
