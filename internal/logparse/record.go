// Package logparse implements extraction, normalization and merging of
// transmission records from append-only scanner log segments.
package logparse

import "time"

// Status is the transmission outcome of a scan event.
type Status string

const (
	// StatusOK marks a scan whose upload was acknowledged by the center.
	StatusOK Status = "OK"
	// StatusNOK marks a scan that was not (yet) acknowledged.
	StatusNOK Status = "NOK"
)

// TransmissionRecord is one scan event reconstructed from the logs. It is a
// derived view: rebuilt on every read cycle, never persisted.
type TransmissionRecord struct {
	ScanID      string
	ContainerNo string // empty means "no container number"

	ScanTime   time.Time // zero when unknown
	UpdateTime time.Time // zero when unknown

	// ScanDuration and OverallDuration are derived from the scan start/stop
	// epochs in the payload; HasDurations reports whether they are defined.
	ScanDuration    time.Duration
	OverallDuration time.Duration
	HasDurations    bool

	ImageCount int
	Status     Status
	ErrorDesc  string

	// Provisional marks a record seeded from an upload announcement that
	// the center has not acknowledged yet.
	Provisional bool

	SourceSegment string
	LineOffset    int

	// ResponseText is the raw response payload text, kept only for the
	// resend classifier and override reconciliation.
	ResponseText string
}

// TimeDelta returns update_time - scan_time. The second result is false
// when either timestamp is unknown.
func (r *TransmissionRecord) TimeDelta() (time.Duration, bool) {
	if r.ScanTime.IsZero() || r.UpdateTime.IsZero() {
		return 0, false
	}
	return r.UpdateTime.Sub(r.ScanTime), true
}

// Override is a resend outcome entry appended to the active segment by the
// resend handler. It supersedes the status and response text of the record
// with the same scan id, but never its scan metadata.
type Override struct {
	ScanID       string `json:"id_scan"`
	Status       string `json:"status"` // SUCCESS or FAILED
	HTTPStatus   int    `json:"http_status,omitempty"`
	TargetURL    string `json:"target_url,omitempty"`
	ResponseText string `json:"response_text,omitempty"`
	LogFile      string `json:"log_file,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`

	SourceSegment string `json:"-"`
	LineOffset    int    `json:"-"`
}
