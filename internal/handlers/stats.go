package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mpaterson/bulwark/internal/models"
	pkghttp "github.com/mpaterson/bulwark/pkg/http"
)

// StatsProvider defines the interface for attempt statistics
type StatsProvider interface {
	Stats(ctx context.Context) (*models.AttemptStats, error)
	RecentAttempts(ctx context.Context, username string, limit int) ([]*models.AttemptRecord, error)
}

// StatsHandler serves aggregate attempt statistics
type StatsHandler struct {
	service StatsProvider
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(service StatsProvider) *StatsHandler {
	return &StatsHandler{service: service}
}

// GetStats returns aggregate attempt counts
// @Summary Attempt statistics
// @Produce json
// @Success 200 {object} models.AttemptStats
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /api/stats [get]
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}

// GetRecentAttempts returns the latest attempt records for one username
// @Summary Recent attempts for a username
// @Param username query string true "Username"
// @Param limit query int false "Max records"
// @Produce json
// @Success 200 {array} models.AttemptRecord
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /api/stats/recent [get]
func (h *StatsHandler) GetRecentAttempts(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		pkghttp.WriteBadRequest(w, "username is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.service.RecentAttempts(r.Context(), username, limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(records)
}
