package handler

import (
	"net/http"

	"github.com/mcoot/bananaclick/internal/api/response"
	"github.com/mcoot/bananaclick/internal/services/ranking"
)

// RankingsHandler serves the leaderboard
type RankingsHandler struct {
	ranking *ranking.Service
}

// NewRankingsHandler creates a new rankings handler
func NewRankingsHandler(rankingService *ranking.Service) *RankingsHandler {
	return &RankingsHandler{
		ranking: rankingService,
	}
}

// Get handles GET /api/v1/rankings
func (h *RankingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.ranking.Shared(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RankingFromModel(snapshot))
}
