// Package api provides the HTTP API for the transmission monitor service.
package api

import (
	"time"

	"github.com/scanops/transmission-monitor/internal/logparse"
)

const timeLayout = "2006-01-02 15:04:05"

// RecordResponse is the wire form of one merged transmission record.
type RecordResponse struct {
	ScanID                 string `json:"scan_id"`
	ContainerNo            string `json:"container_no,omitempty"`
	ScanTime               string `json:"scan_time,omitempty"`
	UpdateTime             string `json:"update_time,omitempty"`
	ScanDurationSeconds    *int64 `json:"scan_duration_seconds,omitempty"`
	OverallDurationSeconds *int64 `json:"overall_duration_seconds,omitempty"`
	TimeDeltaSeconds       *int64 `json:"time_delta_seconds,omitempty"`
	ImageCount             int    `json:"image_count"`
	Status                 string `json:"status"`
	ErrorDescription       string `json:"error_description,omitempty"`
	SourceSegment          string `json:"source_segment"`
	Provisional            bool   `json:"provisional,omitempty"`
}

func newRecordResponse(rec *logparse.TransmissionRecord) RecordResponse {
	resp := RecordResponse{
		ScanID:           rec.ScanID,
		ContainerNo:      rec.ContainerNo,
		ImageCount:       rec.ImageCount,
		Status:           string(rec.Status),
		ErrorDescription: rec.ErrorDesc,
		SourceSegment:    rec.SourceSegment,
		Provisional:      rec.Provisional,
	}

	if !rec.ScanTime.IsZero() {
		resp.ScanTime = rec.ScanTime.Format(timeLayout)
	}
	if !rec.UpdateTime.IsZero() {
		resp.UpdateTime = rec.UpdateTime.Format(timeLayout)
	}
	if rec.HasDurations {
		scan := int64(rec.ScanDuration / time.Second)
		overall := int64(rec.OverallDuration / time.Second)
		resp.ScanDurationSeconds = &scan
		resp.OverallDurationSeconds = &overall
	}
	if delta, ok := rec.TimeDelta(); ok {
		seconds := int64(delta / time.Second)
		resp.TimeDeltaSeconds = &seconds
	}

	return resp
}

// ResendRequest is the request body for a resend attempt.
type ResendRequest struct {
	ScanID string `json:"scan_id" binding:"required"`
}
