package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/bananaclick/internal/api/response"
	"github.com/mcoot/bananaclick/internal/testutil"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubCounts struct{ conns, bound, users int }

func (c stubCounts) ConnectionCount() int { return c.conns }
func (c stubCounts) Count() int           { return c.bound }
func (c stubCounts) ActiveUsers() int     { return c.users }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   response.Health
	}{
		{"store reachable", nil, http.StatusOK, response.Health{Status: "ok", Storage: "ok"}},
		{"store down", errors.New("connection refused"), http.StatusServiceUnavailable, response.Health{Status: "degraded", Storage: "unavailable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler(stubPinger{tt.pingErr}, stubCounts{}, stubCounts{}, testutil.NopLogger())
			rr := httptest.NewRecorder()
			h.Health(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			var body response.Health
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestStats(t *testing.T) {
	counts := stubCounts{conns: 4, bound: 3, users: 2}
	h := NewSystemHandler(stubPinger{}, counts, counts, testutil.NopLogger())
	rr := httptest.NewRecorder()
	h.Stats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	var body response.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, response.Stats{Connections: 4, BoundConnections: 3, ActiveUsers: 2}, body)
}
