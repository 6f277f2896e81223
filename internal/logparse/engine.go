package logparse

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scanops/transmission-monitor/internal/config"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no merged record exists for a scan id.
var ErrNotFound = errors.New("scan id not found")

// Filter narrows the merged view returned by Records.
type Filter struct {
	Status  Status // empty matches both
	Search  string // substring match over scan id and container number
	Segment string // restrict to one segment by name
}

// Engine is the query facade over the log directory. It is stateless: the
// merged view is rebuilt from segment content on every read, so concurrent
// calls are safe without locking.
type Engine struct {
	cfg        config.LogsConfig
	logger     *zap.SugaredLogger
	extractor  *Extractor
	normalizer *Normalizer
	startedAt  time.Time
}

// NewEngine creates a new Engine over the configured log directory.
func NewEngine(cfg config.LogsConfig, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		cfg:        cfg,
		logger:     logger,
		extractor:  NewExtractor(logger),
		normalizer: NewNormalizer(logger),
		startedAt:  time.Now(),
	}
}

// ActiveSegmentPath returns the path of the segment the scanner is currently
// appending to, which is where resend overrides are written.
func (e *Engine) ActiveSegmentPath() string {
	name := strings.TrimRight(e.cfg.SegmentPattern, "*?")
	if name == "" {
		name = "Transmission.log"
	}
	return filepath.Join(e.cfg.Directory, name)
}

// MergedRecords rebuilds and returns the reconciled record set, newest first.
func (e *Engine) MergedRecords() ([]*TransmissionRecord, error) {
	return e.Records(Filter{})
}

// Records rebuilds the merged view and applies the filter.
func (e *Engine) Records(f Filter) ([]*TransmissionRecord, error) {
	segments, err := ListSegments(e.cfg.Directory, e.cfg.SegmentPattern)
	if err != nil {
		return nil, err
	}

	perSegment := make([][]*TransmissionRecord, 0, len(segments))
	var overrides []Override

	for _, seg := range segments {
		raws, segOverrides := e.extractSegment(seg)
		// Overrides are collected from every segment even when the view is
		// restricted: they are reconciliation input, not records.
		overrides = append(overrides, segOverrides...)

		if f.Segment != "" && seg.Name != f.Segment {
			continue
		}

		records := make([]*TransmissionRecord, 0, len(raws))
		for _, raw := range raws {
			if rec, ok := e.normalizer.Normalize(raw); ok {
				records = append(records, rec)
			}
		}
		perSegment = append(perSegment, records)
	}

	merged := Merge(perSegment, overrides)
	records := SortedRecords(merged)

	if f.Status == "" && f.Search == "" {
		return records, nil
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	filtered := records[:0]
	for _, rec := range records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(rec.ScanID), search) &&
			!strings.Contains(strings.ToLower(rec.ContainerNo), search) {
			continue
		}
		filtered = append(filtered, rec)
	}

	return filtered, nil
}

// Lookup returns the merged record for one scan id.
func (e *Engine) Lookup(scanID string) (*TransmissionRecord, error) {
	records, err := e.MergedRecords()
	if err != nil {
		return nil, err
	}

	scanID = strings.TrimSpace(scanID)
	for _, rec := range records {
		if rec.ScanID == scanID {
			return rec, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, scanID)
}

// Stats aggregates the rollup over the full merged view.
func (e *Engine) Stats() (Stats, error) {
	records, err := e.MergedRecords()
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(records, e.startedAt, time.Now()), nil
}

// SegmentNames lists the available segment names, newest first.
func (e *Engine) SegmentNames() ([]string, error) {
	segments, err := ListSegments(e.cfg.Directory, e.cfg.SegmentPattern)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(segments))
	for _, seg := range segments {
		names = append(names, seg.Name)
	}
	return names, nil
}

// ValidateDirectory checks that dir exists and contains at least one segment
// matching the configured pattern.
func (e *Engine) ValidateDirectory(dir string) (bool, string, []string) {
	info, err := os.Stat(dir)
	if err != nil {
		return false, "directory does not exist", nil
	}
	if !info.IsDir() {
		return false, "path is not a directory", nil
	}

	segments, err := ListSegments(dir, e.cfg.SegmentPattern)
	if err != nil || len(segments) == 0 {
		return false, "no transmission log segments found in this directory", nil
	}

	names := make([]string, 0, len(segments))
	for _, seg := range segments {
		names = append(names, seg.Name)
	}
	return true, fmt.Sprintf("found %d log segment(s)", len(segments)), names
}

// UploadPayload is the original upload body for one scan, recovered from the
// logs so a resend can replay it.
type UploadPayload struct {
	PostURL string
	Raw     string
}

// FindUploadPayload locates the most recent upload payload for a scan id.
func (e *Engine) FindUploadPayload(scanID string) (*UploadPayload, error) {
	segments, err := ListSegments(e.cfg.Directory, e.cfg.SegmentPattern)
	if err != nil {
		return nil, err
	}

	scanID = strings.TrimSpace(scanID)
	for _, seg := range segments {
		raws, _ := e.extractSegment(seg)
		// Later announcements replace earlier retries of the same task.
		var found *UploadPayload
		for _, raw := range raws {
			if raw.Kind != KindUpload || raw.Upload == nil {
				continue
			}
			if raw.Upload.ScanID != scanID || raw.Upload.PayloadRaw == "" {
				continue
			}
			found = &UploadPayload{
				PostURL: raw.Upload.PostURL,
				Raw:     raw.Upload.PayloadRaw,
			}
		}
		if found != nil {
			return found, nil
		}
	}

	return nil, fmt.Errorf("no upload payload recorded for %s", scanID)
}

func (e *Engine) extractSegment(seg SegmentInfo) ([]RawRecord, []Override) {
	f, err := os.Open(seg.Path)
	if err != nil {
		// The newest segment has a concurrent writer and rotation can race
		// reads; a vanished segment is skipped, not fatal.
		e.logger.Warnw("Failed to open segment", "segment", seg.Name, "error", err)
		return nil, nil
	}
	defer func() { _ = f.Close() }()

	return e.extractor.Extract(seg.Name, f)
}
