package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scanops/transmission-monitor/internal/config"
	"github.com/scanops/transmission-monitor/internal/ftpmon"
	"github.com/scanops/transmission-monitor/internal/logparse"
	"github.com/scanops/transmission-monitor/internal/resend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleResponseLine = `2024-03-01 10:15:22,123 INFO [HttpSend.py-send] center response:SCAN0001, response text: {"resultCode":true,"resultDesc":"","resultData":{"PICNO":"SCAN0001","CONTAINER_NO":"ABCD1234567","SCANTIME":"2024-03-01 10:14:50","UPDATE_TIME":"2024-03-01 10:15:20","IMAGE1_PATH":"a.jpg"}}`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop().Sugar()

	logsCfg := config.LogsConfig{Directory: dir, SegmentPattern: "Transmission.log*"}
	engine := logparse.NewEngine(logsCfg, logger)
	monitor := ftpmon.New(config.FTPConfig{
		Targets:      config.SanitizeTargets(nil),
		PingInterval: 60,
		ProbeTimeout: 1,
	}, dir, logger)
	resender := resend.New(config.ResendConfig{Timeout: 1}, engine, nil, logger)

	return New(config.ServerConfig{Port: 8002}, engine, monitor, resender, logger), dir
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		w := doRequest(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRecordsEndpoint(t *testing.T) {
	s, dir := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Transmission.log"),
		[]byte(sampleResponseLine+"\n"), 0o644))

	w := doRequest(t, s, http.MethodGet, "/api/v1/records", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data  []RecordResponse `json:"data"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "SCAN0001", resp.Data[0].ScanID)
	assert.Equal(t, "OK", resp.Data[0].Status)
	assert.Equal(t, "ABCD1234567", resp.Data[0].ContainerNo)
	assert.Equal(t, "2024-03-01 10:14:50", resp.Data[0].ScanTime)
}

func TestRecordsEndpointStatusValidation(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/records?status=BOGUS", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/v1/records?status=NOK", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats logparse.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Zero(t, stats.Total)
}

func TestSegmentsEndpoint(t *testing.T) {
	s, dir := newTestServer(t)
	path := filepath.Join(dir, "Transmission.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now()))

	w := doRequest(t, s, http.MethodGet, "/api/v1/segments", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Segments []string `json:"segments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Transmission.log"}, resp.Segments)
}

func TestValidateEndpoint(t *testing.T) {
	s, dir := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/segments/validate", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/v1/segments/validate?directory="+dir, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)
}

func TestFTPStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/ftp-status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_CONFIGURED")
}

func TestFTPPingEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/v1/ftp-status/ping", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "last_checked")
}

func TestResendEndpointValidation(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/v1/resend", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodPost, "/api/v1/resend", `{"scan_id":"SCAN9999"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
