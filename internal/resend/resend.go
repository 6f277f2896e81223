package resend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scanops/transmission-monitor/internal/config"
	"github.com/scanops/transmission-monitor/internal/logparse"
	"github.com/scanops/transmission-monitor/internal/publisher"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Resender replays the original upload payload of a scan to the configured
// endpoint and records the classified outcome as an override entry in the
// active segment. Original records are never mutated in place.
type Resender struct {
	cfg     config.ResendConfig
	engine  *logparse.Engine
	pub     *publisher.Publisher
	logger  *zap.SugaredLogger
	client  *http.Client
	limiter *rate.Limiter
}

// Result is the bounded-time outcome returned to the caller.
type Result struct {
	AttemptID    string  `json:"attempt_id"`
	ScanID       string  `json:"scan_id"`
	Outcome      Outcome `json:"outcome"`
	Reason       string  `json:"reason"`
	HTTPStatus   int     `json:"http_status,omitempty"`
	ResponseText string  `json:"response_text,omitempty"`
	TargetURL    string  `json:"target_url,omitempty"`
}

// New creates a new Resender.
func New(cfg config.ResendConfig, engine *logparse.Engine, pub *publisher.Publisher, logger *zap.SugaredLogger) *Resender {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 5
	}

	return &Resender{
		cfg:    cfg,
		engine: engine,
		pub:    pub,
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(limit), limit),
	}
}

// Resend replays the payload for scanID. Transport failures classify as
// FAILED and are reported in the Result, not raised: only missing
// configuration or an unknown scan id produce an error. The call blocks
// until the outbound request completes or times out.
func (r *Resender) Resend(ctx context.Context, scanID string) (*Result, error) {
	scanID = strings.TrimSpace(scanID)
	if scanID == "" {
		return nil, fmt.Errorf("scan id is required")
	}

	// Bound the outbound rate so a misbehaving caller cannot stampede the
	// downstream endpoint. No lock is held while waiting.
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if _, err := r.engine.Lookup(scanID); err != nil {
		return nil, err
	}

	payload, err := r.engine.FindUploadPayload(scanID)
	if err != nil {
		return nil, err
	}

	targetURL, err := r.cfg.TargetURL()
	if err != nil {
		if payload.PostURL == "" {
			return nil, err
		}
		// Fall back to the URL the scanner originally posted to.
		targetURL = payload.PostURL
	}

	result := &Result{
		AttemptID: uuid.New().String(),
		ScanID:    scanID,
		TargetURL: targetURL,
	}

	body, httpStatus, err := r.post(ctx, targetURL, payload.Raw)
	if err != nil {
		r.logger.Warnw("Resend transport failure",
			"scan_id", scanID,
			"target_url", targetURL,
			"error", err,
		)
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
	} else {
		result.HTTPStatus = httpStatus
		result.ResponseText = preview(body, r.cfg.PreviewLimit)

		cls := Classify(body, r.cfg.FailureKeywords)
		if cls.Outcome == OutcomeSuccess && httpStatus >= 400 {
			cls = Classification{
				Outcome: OutcomeFailed,
				Reason:  fmt.Sprintf("http status %d", httpStatus),
			}
		}
		result.Outcome = cls.Outcome
		result.Reason = cls.Reason
	}

	if err := r.appendOverride(result); err != nil {
		r.logger.Errorw("Failed to append resend override",
			"scan_id", scanID,
			"error", err,
		)
	}

	r.publishOutcome(result)

	r.logger.Infow("Resend completed",
		"scan_id", scanID,
		"outcome", result.Outcome,
		"reason", result.Reason,
	)

	return result, nil
}

func (r *Resender) post(ctx context.Context, targetURL, payload string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, strings.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("resend request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return string(body), resp.StatusCode, nil
}

// appendOverride writes exactly one override entry for the attempt to the
// active segment, tagged so the extractor recognizes it as an override and
// not a fresh scan.
func (r *Resender) appendOverride(result *Result) error {
	path := r.engine.ActiveSegmentPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to prepare log directory: %w", err)
	}

	now := time.Now()
	entry := logparse.Override{
		ScanID:       result.ScanID,
		Status:       string(result.Outcome),
		HTTPStatus:   result.HTTPStatus,
		TargetURL:    result.TargetURL,
		ResponseText: strings.ReplaceAll(result.ResponseText, "\n", "\\n"),
		LogFile:      filepath.Base(path),
		Timestamp:    now.Format("2006-01-02 15:04:05"),
	}

	blob, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal override: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open active segment: %w", err)
	}
	defer func() { _ = f.Close() }()

	line := fmt.Sprintf("%s INFO [Dashboard-resend-handler] resend_result %s\n",
		now.Format("2006-01-02 15:04:05,000"), blob)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to write override: %w", err)
	}

	return nil
}

func (r *Resender) publishOutcome(result *Result) {
	if r.pub == nil {
		return
	}

	data := publisher.ResendOutcomeData{
		AttemptID:  result.AttemptID,
		ScanID:     result.ScanID,
		Outcome:    string(result.Outcome),
		Reason:     result.Reason,
		HTTPStatus: result.HTTPStatus,
		TargetURL:  result.TargetURL,
	}
	if err := r.pub.PublishResendOutcome(data); err != nil {
		r.logger.Warnw("Failed to publish resend outcome", "scan_id", result.ScanID, "error", err)
	}
}

func preview(text string, limit int) string {
	if limit <= 0 {
		limit = 1000
	}
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
