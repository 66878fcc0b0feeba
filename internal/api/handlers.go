package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vo-performance-bot/internal/alerts"
	"vo-performance-bot/internal/performance"
)

type handler struct {
	deps   Deps
	logger zerolog.Logger
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.deps.Performance.LatestDate(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("health check failed")
		writeError(w, http.StatusServiceUnavailable, "repository_unavailable", "performance repository unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type infoResponse struct {
	LatestDate string               `json:"latest_date,omitempty"`
	Thresholds map[string][]float64 `json:"thresholds"`
	NextAlert  *time.Time           `json:"next_alert,omitempty"`
}

func (h *handler) info(w http.ResponseWriter, r *http.Request) {
	latest, ok, err := h.deps.Performance.LatestDate(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("latest date lookup failed")
		writeError(w, http.StatusServiceUnavailable, "repository_unavailable", "performance repository unavailable")
		return
	}
	resp := infoResponse{Thresholds: map[string][]float64{
		string(performance.Horizon24h): h.deps.Thresholds.Daily,
		string(performance.Horizon30d): h.deps.Thresholds.Monthly,
	}}
	if ok {
		resp.LatestDate = latest
	}
	if h.deps.NextFire != nil {
		next := h.deps.NextFire()
		resp.NextAlert = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

type alertsResponse struct {
	Results   []alerts.Result `json:"results"`
	Breaching []int64         `json:"breaching"`
}

func (h *handler) alerts(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Performance.All(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("snapshot read failed")
		writeError(w, http.StatusServiceUnavailable, "repository_unavailable", "performance repository unavailable")
		return
	}
	if len(snap) == 0 {
		writeError(w, http.StatusServiceUnavailable, "no_data", "performance data not available")
		return
	}
	results := alerts.EvaluateAll(snap, h.deps.Thresholds)
	writeJSON(w, http.StatusOK, alertsResponse{Results: results, Breaching: alerts.Breaching(results...)})
}

type operatorResponse struct {
	ID             int64              `json:"id"`
	Name           string             `json:"name"`
	ValidatorCount int                `json:"validator_count"`
	Verified       bool               `json:"verified"`
	Private        bool               `json:"private"`
	Address        string             `json:"address,omitempty"`
	Perf24h        map[string]*string `json:"perf_24h"`
	Perf30d        map[string]*string `json:"perf_30d"`
}

// seriesView renders absent points as JSON null.
func seriesView(s performance.Series) map[string]*string {
	out := make(map[string]*string, len(s))
	for date, v := range s {
		if !v.Valid {
			out[date] = nil
			continue
		}
		str := v.Decimal.String()
		out[date] = &str
	}
	return out
}

func (h *handler) operator(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "operator id must be a positive integer")
		return
	}
	snap, err := h.deps.Performance.ByIDs(r.Context(), []int64{id})
	if err != nil {
		h.logger.Error().Err(err).Int64("operator_id", id).Msg("operator read failed")
		writeError(w, http.StatusServiceUnavailable, "repository_unavailable", "performance repository unavailable")
		return
	}
	rec, ok := snap[id]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "operator not found")
		return
	}
	writeJSON(w, http.StatusOK, operatorResponse{
		ID:             rec.ID,
		Name:           rec.Name,
		ValidatorCount: rec.ValidatorCount,
		Verified:       rec.Verified,
		Private:        rec.Private,
		Address:        performance.NormalizeAddress(rec.Address),
		Perf24h:        seriesView(rec.Perf24h),
		Perf30d:        seriesView(rec.Perf30d),
	})
}
