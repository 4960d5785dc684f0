package handlers

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/services"
)

type StatsHandler struct {
	analytics *services.AnalyticsService
	location  *time.Location
}

func NewStatsHandler(analytics *services.AnalyticsService, loc *time.Location) *StatsHandler {
	return &StatsHandler{analytics: analytics, location: loc}
}

// Stats aggregates the ledger per currency
// @Summary Ledger statistics
// @Tags Stats
// @Produce json
// @Security BearerAuth
// @Param from query string false "First day, YYYY-MM-DD"
// @Param to query string false "Last day, YYYY-MM-DD"
// @Success 200 {object} models.StatsResult
// @Router /stats [get]
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	dateRange, err := parseRange(r.URL.Query(), h.location)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.analytics.ComputeStats(r.Context(), actor, dateRange)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Daily returns one record per day with entries
// @Summary Daily series
// @Tags Stats
// @Produce json
// @Security BearerAuth
// @Param from query string false "First day, YYYY-MM-DD"
// @Param to query string false "Last day, YYYY-MM-DD"
// @Param currency query string false "Restrict to one currency"
// @Success 200 {array} models.DayRecord
// @Router /stats/daily [get]
func (h *StatsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	dateRange, err := parseRange(q, h.location)
	if err != nil {
		writeError(w, err)
		return
	}

	series, err := h.analytics.DailySeries(r.Context(), actor, dateRange, strings.ToUpper(q.Get("currency")))
	if err != nil {
		writeError(w, err)
		return
	}

	days := slices.Collect(series)
	if days == nil {
		days = []models.DayRecord{}
	}
	writeJSON(w, http.StatusOK, days)
}
