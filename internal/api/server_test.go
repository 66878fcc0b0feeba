package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vo-performance-bot/internal/alerts"
	"vo-performance-bot/internal/metrics"
	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/storage"
)

func point(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func testStore() *storage.MemoryStore {
	return storage.NewMemoryStore(
		performance.Record{
			ID: 1, Name: "Alpha", ValidatorCount: 4, Verified: true,
			Address: "0x52908400098527886e0f7030069857d2e4169ee7",
			Perf24h: performance.Series{"2024-05-01": point("0.85"), "2024-04-30": {}},
			Perf30d: performance.Series{"2024-05-01": point("0.999")},
		},
		performance.Record{
			ID: 2, Name: "Beta", ValidatorCount: 2, Verified: true,
			Perf24h: performance.Series{"2024-05-01": point("0.97")},
			Perf30d: performance.Series{"2024-05-01": point("0.98")},
		},
	)
}

type brokenRepo struct{ storage.PerformanceRepository }

func (brokenRepo) All(context.Context) (performance.Snapshot, error) { return nil, errors.New("down") }
func (brokenRepo) LatestDate(context.Context) (string, bool, error) {
	return "", false, errors.New("down")
}

func newRouter(repo storage.PerformanceRepository, reg *prometheus.Registry) http.Handler {
	return NewRouter(Deps{
		Performance: repo,
		Thresholds:  alerts.Thresholds{Daily: alerts.ThresholdSet{0.9, 0.95}, Monthly: alerts.ThresholdSet{0.99}},
		Gatherer:    reg,
	}, zerolog.Nop())
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.Equal(t, http.StatusOK, get(t, newRouter(testStore(), reg), "/healthz").Code)
	require.Equal(t, http.StatusServiceUnavailable, get(t, newRouter(brokenRepo{}, reg), "/healthz").Code)
}

func TestAlertsEndpoint(t *testing.T) {
	rec := get(t, newRouter(testStore(), prometheus.NewRegistry()), "/api/v1/alerts")
	require.Equal(t, http.StatusOK, rec.Code)

	var body alertsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []int64{1, 2}, body.Breaching)
	require.Len(t, body.Results, 2)
	require.Equal(t, performance.Horizon24h, body.Results[0].Horizon)
	require.Len(t, body.Results[0].Groups[0].Alerts, 1)
	require.Equal(t, "85.00%", body.Results[0].Groups[0].Alerts[0].Percent)
	require.Len(t, body.Results[0].Groups[1].Alerts, 1)
	require.Len(t, body.Results[1].Groups[0].Alerts, 1)
	require.Equal(t, int64(2), body.Results[1].Groups[0].Alerts[0].EntityID)
}

func TestAlertsEndpointNoData(t *testing.T) {
	rec := get(t, newRouter(storage.NewMemoryStore(), prometheus.NewRegistry()), "/api/v1/alerts")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "no_data")

	rec = get(t, newRouter(brokenRepo{}, prometheus.NewRegistry()), "/api/v1/alerts")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "repository_unavailable")
}

func TestOperatorEndpoint(t *testing.T) {
	h := newRouter(testStore(), prometheus.NewRegistry())

	rec := get(t, h, "/api/v1/operators/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body operatorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Alpha", body.Name)
	require.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", body.Address)
	require.Contains(t, body.Perf24h, "2024-04-30")
	require.Nil(t, body.Perf24h["2024-04-30"])
	require.Equal(t, "0.85", *body.Perf24h["2024-05-01"])

	require.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/operators/99").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/operators/abc").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/operators/0").Code)
}

func TestInfoEndpoint(t *testing.T) {
	rec := get(t, newRouter(testStore(), prometheus.NewRegistry()), "/api/v1/info")
	require.Equal(t, http.StatusOK, rec.Code)
	var body infoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2024-05-01", body.LatestDate)
	require.Equal(t, []float64{0.99}, body.Thresholds["30d"])
	require.Nil(t, body.NextAlert)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg, "test")
	c.MessageSent("broadcast")

	rec := get(t, newRouter(testStore(), reg), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `test_messages_sent_total{channel="broadcast"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	h := NewRouter(Deps{Performance: testStore(), AllowedOrigins: []string{"https://example.org"}, Gatherer: prometheus.NewRegistry()}, zerolog.Nop())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/info", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "https://example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}
