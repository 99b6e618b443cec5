package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
)

func TestHealthzReportsOK(t *testing.T) {
	log := logging.New("main_test", logging.Config{Level: "error"})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	healthzHandler(log)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Greater(t, body.TimeSec, int64(0))
}

func TestRouterServesMetricsAndHealthz(t *testing.T) {
	reg := metrics.NewRegistry(metrics.GateConfig{}, nil)
	metrics.Build(reg)
	log := logging.New("main_test", logging.Config{Level: "error"})
	router := newRouter(reg, log)

	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	router.ServeHTTP(metricsRec, metricsReq)
	assert.Equal(t, http.StatusOK, metricsRec.Code)

	healthReq := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	healthRec := httptest.NewRecorder()
	router.ServeHTTP(healthRec, healthReq)
	assert.Equal(t, http.StatusOK, healthRec.Code)
}

func TestCSVPathDefaultsToDataDir(t *testing.T) {
	t.Setenv("G6_DATA_DIR", "")
	assert.Equal(t, "data/options.csv", csvPath("options.csv"))
}

func TestCSVPathHonorsOverride(t *testing.T) {
	t.Setenv("G6_DATA_DIR", "/tmp/g6-data")
	assert.Equal(t, "/tmp/g6-data/options.csv", csvPath("options.csv"))
}
