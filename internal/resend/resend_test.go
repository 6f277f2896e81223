package resend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scanops/transmission-monitor/internal/config"
	"github.com/scanops/transmission-monitor/internal/logparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUploadLine = `2024-03-01 10:10:00,000 INFO [Task.py-send_message_handler] url is http://center/api/upload, json_data is {'xml': '<PICNO>SCAN0003</PICNO><SCANTIME>2024-03-01 10:09:45</SCANTIME><container_no>TEMU1234567</container_no><CHECKINTIME>2024-03-01 10:10:00</CHECKINTIME><SCANIMG>a</SCANIMG>'}`

func newTestResender(t *testing.T, cfg config.ResendConfig) (*Resender, *logparse.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Transmission.log"), []byte(testUploadLine+"\n"), 0o644))

	logger := zap.NewNop().Sugar()
	engine := logparse.NewEngine(config.LogsConfig{
		Directory:      dir,
		SegmentPattern: "Transmission.log*",
	}, logger)

	return New(cfg, engine, nil, logger), engine, dir
}

func TestResendSuccessAppendsOverride(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{"resultCode":true}`))
	}))
	defer srv.Close()

	r, engine, dir := newTestResender(t, config.ResendConfig{
		Endpoint:        srv.URL,
		FailureKeywords: []string{"fail", "error"},
	})

	result, err := r.Resend(context.Background(), "SCAN0003")
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
	assert.Equal(t, "SCAN0003", result.ScanID)
	assert.Equal(t, srv.URL, result.TargetURL)
	assert.NotEmpty(t, result.AttemptID)
	assert.Contains(t, gotBody, "<PICNO>SCAN0003</PICNO>", "the original payload is replayed verbatim")

	// The outcome lands as an override line in the active segment.
	content, err := os.ReadFile(filepath.Join(dir, "Transmission.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "[Dashboard-resend-handler] resend_result")
	assert.Equal(t, 2, strings.Count(string(content), "\n"), "exactly one override line appended")

	// And the merged view now reports the scan as delivered.
	rec, err := engine.Lookup("SCAN0003")
	require.NoError(t, err)
	assert.Equal(t, logparse.StatusOK, rec.Status)
	assert.Equal(t, "TEMU1234567", rec.ContainerNo, "scan metadata untouched by the override")
}

func TestResendRejectedByDownstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"resultCode":false,"resultDesc":"container not registered"}`))
	}))
	defer srv.Close()

	r, engine, _ := newTestResender(t, config.ResendConfig{Endpoint: srv.URL})

	result, err := r.Resend(context.Background(), "SCAN0003")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)

	rec, err := engine.Lookup("SCAN0003")
	require.NoError(t, err)
	assert.Equal(t, logparse.StatusNOK, rec.Status)
}

func TestResendHTTPErrorStatusDowngradesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"resultCode":true}`))
	}))
	defer srv.Close()

	r, _, _ := newTestResender(t, config.ResendConfig{Endpoint: srv.URL})

	result, err := r.Resend(context.Background(), "SCAN0003")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Reason, "502")
}

func TestResendTransportFailureIsAResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	r, _, dir := newTestResender(t, config.ResendConfig{Endpoint: srv.URL, Timeout: 1})

	result, err := r.Resend(context.Background(), "SCAN0003")
	require.NoError(t, err, "transport failures are outcomes, not errors")
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.NotEmpty(t, result.Reason)
	assert.Zero(t, result.HTTPStatus)

	// Failed attempts are recorded too.
	content, err := os.ReadFile(filepath.Join(dir, "Transmission.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"status":"FAILED"`)
}

func TestResendUnknownScanID(t *testing.T) {
	r, _, _ := newTestResender(t, config.ResendConfig{Endpoint: "http://127.0.0.1:1"})

	_, err := r.Resend(context.Background(), "SCAN9999")
	assert.ErrorIs(t, err, logparse.ErrNotFound)
}

func TestResendEmptyScanID(t *testing.T) {
	r, _, _ := newTestResender(t, config.ResendConfig{Endpoint: "http://127.0.0.1:1"})

	_, err := r.Resend(context.Background(), "  ")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, logparse.ErrNotFound)
}

func TestResendFallsBackToRecordedPostURL(t *testing.T) {
	// No endpoint configured: the URL captured in the upload line is used.
	r, _, _ := newTestResender(t, config.ResendConfig{Timeout: 1})

	result, err := r.Resend(context.Background(), "SCAN0003")
	require.NoError(t, err)
	assert.Equal(t, "http://center/api/upload", result.TargetURL)
	// Nothing listens there, so the attempt itself fails.
	assert.Equal(t, OutcomeFailed, result.Outcome)
}
