package logparse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// timeLayout is the log's native timestamp format.
const timeLayout = "2006-01-02 15:04:05"

var (
	containerTokenPattern      = regexp.MustCompile(`^[A-Z0-9\-\+\\/]+$`)
	containerSeparatorPattern  = regexp.MustCompile(`\s*([+\\/])\s*`)
	containerWhitespacePattern = regexp.MustCompile(`\s+`)
	descContainerPattern       = regexp.MustCompile(`[Cc]ontainer[^A-Z0-9]*([A-Z0-9]{4,})`)
)

// SanitizeContainer validates a container number candidate. It returns the
// cleaned value, or "" when the candidate is placeholder noise: shorter than
// four characters, missing a letter or a digit, carrying foreign characters,
// or the error-flag sentinel written by the scanner on failed reads.
func SanitizeContainer(value string) string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return ""
	}
	if strings.EqualFold(cleaned, "failed!") {
		return ""
	}

	cleaned = containerSeparatorPattern.ReplaceAllString(cleaned, "$1")
	cleaned = containerWhitespacePattern.ReplaceAllString(cleaned, "")
	cleaned = strings.ToUpper(cleaned)

	if len(cleaned) < 4 {
		return ""
	}

	hasLetter, hasDigit := false, false
	for _, ch := range cleaned {
		switch {
		case unicode.IsLetter(ch):
			hasLetter = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ""
	}
	if !containerTokenPattern.MatchString(cleaned) {
		return ""
	}

	return cleaned
}

// parseLogTime parses a timestamp in the log's native format. Unparsable
// values return the zero time so partial records stay usable.
func parseLogTime(value string) time.Time {
	text := strings.TrimSpace(value)
	if text == "" {
		return time.Time{}
	}

	text = strings.TrimSuffix(strings.ReplaceAll(text, "T", " "), "Z")
	for _, layout := range []string{timeLayout + ".000", timeLayout} {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t
		}
	}
	// Sub-second precision varies between log writers.
	if dot := strings.Index(text, "."); dot > 0 {
		if t, err := time.ParseInLocation(timeLayout, text[:dot], time.Local); err == nil {
			return t
		}
	}

	return time.Time{}
}

// parseEpochRaw decodes an epoch-seconds value that some writers emit as a
// JSON number and others as a quoted string.
func parseEpochRaw(raw json.RawMessage) (int64, bool) {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" || text == "null" {
		return 0, false
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseScanEpochs pulls the scan start/stop epochs out of a decoded upload line.
func parseScanEpochs(decoded string) (start, stop int64, ok bool) {
	sm := scanStartPattern.FindStringSubmatch(decoded)
	em := scanStopPattern.FindStringSubmatch(decoded)
	if sm == nil || em == nil {
		return 0, 0, false
	}

	start, err1 := strconv.ParseInt(strings.TrimSpace(sm[1]), 10, 64)
	stop, err2 := strconv.ParseInt(strings.TrimSpace(em[1]), 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return start, stop, true
}

// Normalizer turns raw candidate records into validated TransmissionRecords.
type Normalizer struct {
	logger *zap.SugaredLogger
}

// NewNormalizer creates a new Normalizer.
func NewNormalizer(logger *zap.SugaredLogger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize validates one raw record. The second result is false when the
// record carries no usable scan id and must be discarded.
func (n *Normalizer) Normalize(raw RawRecord) (*TransmissionRecord, bool) {
	switch raw.Kind {
	case KindResponse:
		return n.normalizeResponse(raw)
	case KindUpload:
		return n.normalizeUpload(raw)
	default:
		return nil, false
	}
}

func (n *Normalizer) normalizeResponse(raw RawRecord) (*TransmissionRecord, bool) {
	resp := raw.Response
	if resp == nil {
		return nil, false
	}

	rec := &TransmissionRecord{
		Status:        StatusNOK,
		SourceSegment: raw.SourceSegment,
		LineOffset:    raw.LineOffset,
		ResponseText:  raw.ResponseRaw,
	}

	// Status derivation: OK requires the structured result code to be
	// literally true; every parse failure stays NOK.
	if resp.ResultCode {
		rec.Status = StatusOK
	}

	data := resp.Data()
	if data != nil {
		rec.ScanID = strings.TrimSpace(data.PICNO)
		rec.ContainerNo = SanitizeContainer(data.ContainerNo)
		rec.ScanTime = parseLogTime(data.ScanTime)
		rec.UpdateTime = parseLogTime(data.UpdateTime)
		rec.ImageCount = data.imageCount()

		if start, okStart := parseEpochRaw(data.ScanStart); okStart {
			if stop, okStop := parseEpochRaw(data.ScanStop); okStop && stop >= start {
				rec.ScanDuration = time.Duration(stop-start) * time.Second
				rec.OverallDuration = rec.ScanDuration
				rec.HasDurations = true
			}
		}
	}

	if rec.ScanID == "" {
		rec.ScanID = strings.TrimSpace(raw.ResponseID)
	}
	if rec.ScanID == "" {
		return nil, false
	}

	if rec.Status == StatusNOK {
		rec.ErrorDesc = resp.ResultDesc
		// Failure payloads carry no scan data; the description sometimes
		// names the container.
		if rec.ContainerNo == "" {
			if m := descContainerPattern.FindStringSubmatch(resp.ResultDesc); m != nil {
				rec.ContainerNo = SanitizeContainer(m[1])
			}
		}
	}

	logTime := parseLogTime(raw.LogTimestamp)
	if rec.ScanTime.IsZero() {
		rec.ScanTime = logTime
	}
	if rec.UpdateTime.IsZero() {
		rec.UpdateTime = logTime
	}

	return rec, true
}

func (n *Normalizer) normalizeUpload(raw RawRecord) (*TransmissionRecord, bool) {
	up := raw.Upload
	if up == nil || up.ScanID == "" {
		return nil, false
	}

	rec := &TransmissionRecord{
		ScanID:        up.ScanID,
		ContainerNo:   SanitizeContainer(up.ContainerNo),
		ScanTime:      parseLogTime(up.ScanTime),
		UpdateTime:    parseLogTime(up.UpdateTime),
		ImageCount:    up.ImageCount,
		Status:        StatusNOK,
		Provisional:   true, // until the center acknowledges
		SourceSegment: raw.SourceSegment,
		LineOffset:    raw.LineOffset,
	}

	if up.HasEpochs && up.ScanStopEpoch >= up.ScanStartEpoch {
		rec.ScanDuration = time.Duration(up.ScanStopEpoch-up.ScanStartEpoch) * time.Second
		rec.OverallDuration = rec.ScanDuration
		rec.HasDurations = true
	}

	logTime := parseLogTime(raw.LogTimestamp)
	if rec.ScanTime.IsZero() {
		rec.ScanTime = logTime
	}
	if rec.UpdateTime.IsZero() {
		rec.UpdateTime = logTime
	}

	return rec, true
}
