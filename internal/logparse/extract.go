package logparse

import (
	"bufio"
	"encoding/json"
	"html"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Markers that make a log line a candidate record. Everything else is
// skipped: this is a best-effort scan over an unstructured append log,
// not a line-exact grammar.
const (
	markerResponseText   = "response text:"
	markerCenterResponse = "center response:"
	markerResendTag      = "[Dashboard-resend-handler]"
	markerResendResult   = "resend_result"
	markerUploadHandler  = "send_message_handler"
	markerUploadData     = "json_data is"
)

var (
	logTimestampPattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`)
	responseIDPattern   = regexp.MustCompile(`center response:([^,]+)`)

	picnoPattern       = regexp.MustCompile(`(?i)<PICNO>([^<]+)</PICNO>`)
	scanTimePattern    = regexp.MustCompile(`(?i)<SCANTIME>([^<]+)</SCANTIME>`)
	containerPattern   = regexp.MustCompile(`(?i)<container_no>([^<]+)</container_no>`)
	checkinTimePattern = regexp.MustCompile(`(?i)<CHECKINTIME>([^<]+)</CHECKINTIME>`)
	scanStartPattern   = regexp.MustCompile(`(?i)<Time_?Scan_?Start>([^<]+)</Time_?Scan_?Start>`)
	scanStopPattern    = regexp.MustCompile(`(?i)<Time_?Scan_?Stop>([^<]+)</Time_?Scan_?Stop>`)
	scanImgPattern     = regexp.MustCompile(`(?i)<SCANIMG`)
	imgTagPattern      = regexp.MustCompile(`(?i)<img>`)
	postURLPattern     = regexp.MustCompile(`(?i)url is\s*([^,]+)`)
	jsonDataPattern    = regexp.MustCompile(`(?i)json_data is (.*)$`)
)

// RawKind distinguishes the two line shapes that yield candidate records.
type RawKind int

const (
	// KindResponse is a center acknowledgement line carrying a JSON payload.
	KindResponse RawKind = iota
	// KindUpload is an upload announcement line carrying the XML task data.
	KindUpload
)

// RawRecord is one candidate record extracted from a segment, prior to
// normalization. SourceSegment and LineOffset give stable merge tie-breaking.
type RawRecord struct {
	Kind          RawKind
	SourceSegment string
	LineOffset    int
	LogTimestamp  string

	// Response lines
	ResponseID  string
	Response    *centerResponse
	ResponseRaw string

	// Upload lines
	Upload *uploadInfo
}

// centerResponse is the JSON payload the center returns for an upload.
// resultData is an object on success and the sentinel "-" on failure, so it
// stays raw until asked for.
type centerResponse struct {
	ResultCode bool            `json:"resultCode"`
	ResultDesc string          `json:"resultDesc"`
	ResultData json.RawMessage `json:"resultData"`
}

// Data decodes resultData, returning nil for the "-" sentinel or any
// malformed payload.
func (c *centerResponse) Data() *resultData {
	if len(c.ResultData) == 0 {
		return nil
	}
	var d resultData
	if err := json.Unmarshal(c.ResultData, &d); err != nil {
		return nil
	}
	return &d
}

// resultData is the acknowledged scan payload. All fields are optional;
// unknown fields are ignored.
type resultData struct {
	PICNO       string `json:"PICNO"`
	ContainerNo string `json:"CONTAINER_NO"`
	ScanTime    string `json:"SCANTIME"`
	UpdateTime  string `json:"UPDATE_TIME"`

	ScanStart json.RawMessage `json:"TIME_SCANSTART"`
	ScanStop  json.RawMessage `json:"TIME_SCAN_STOP"`

	Image1 string `json:"IMAGE1_PATH"`
	Image2 string `json:"IMAGE2_PATH"`
	Image3 string `json:"IMAGE3_PATH"`
	Image4 string `json:"IMAGE4_PATH"`
	Image5 string `json:"IMAGE5_PATH"`
	Image6 string `json:"IMAGE6_PATH"`
	Image7 string `json:"IMAGE7_PATH"`
}

func (d *resultData) imageCount() int {
	count := 0
	for _, p := range []string{d.Image1, d.Image2, d.Image3, d.Image4, d.Image5, d.Image6, d.Image7} {
		if p != "" {
			count++
		}
	}
	return count
}

// uploadInfo is the task data announced before an upload attempt. It seeds a
// provisional NOK record so scans are visible before the center answers.
type uploadInfo struct {
	ScanID      string
	ScanTime    string
	UpdateTime  string
	ContainerNo string
	ImageCount  int

	ScanStartEpoch int64
	ScanStopEpoch  int64
	HasEpochs      bool

	PostURL    string
	PayloadRaw string
}

// Extractor turns the byte content of one log segment into raw candidate
// records and resend overrides.
type Extractor struct {
	logger *zap.SugaredLogger
}

// NewExtractor creates a new Extractor.
func NewExtractor(logger *zap.SugaredLogger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract scans one segment line by line. Malformed payloads drop the single
// line and extraction continues; lines without a recognized marker yield
// nothing.
func (e *Extractor) Extract(segment string, r io.Reader) ([]RawRecord, []Override) {
	var records []RawRecord
	var overrides []Override

	scanner := bufio.NewScanner(r)
	// Upload lines embed full XML payloads and can run long.
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	offset := 0
	for scanner.Scan() {
		offset++
		line := scanner.Text()

		switch {
		case strings.Contains(line, markerResendTag) && strings.Contains(line, markerResendResult):
			if ov, ok := e.parseOverride(line); ok {
				ov.SourceSegment = segment
				ov.LineOffset = offset
				overrides = append(overrides, ov)
			}

		case strings.Contains(line, markerResponseText) && strings.Contains(line, markerCenterResponse):
			if rec, ok := e.parseResponseLine(line); ok {
				rec.SourceSegment = segment
				rec.LineOffset = offset
				records = append(records, rec)
			}

		case strings.Contains(line, markerUploadHandler) && strings.Contains(line, markerUploadData):
			if rec, ok := e.parseUploadLine(line); ok {
				rec.SourceSegment = segment
				rec.LineOffset = offset
				records = append(records, rec)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		e.logger.Warnw("Segment read aborted", "segment", segment, "error", err)
	}

	return records, overrides
}

func (e *Extractor) parseOverride(line string) (Override, bool) {
	parts := strings.SplitN(line, markerResendResult, 2)
	if len(parts) != 2 {
		return Override{}, false
	}

	var ov Override
	if err := json.Unmarshal([]byte(strings.TrimSpace(parts[1])), &ov); err != nil {
		e.logger.Debugw("Dropping malformed override line", "error", err)
		return Override{}, false
	}
	if strings.TrimSpace(ov.ScanID) == "" {
		return Override{}, false
	}
	ov.ScanID = strings.TrimSpace(ov.ScanID)

	return ov, true
}

func (e *Extractor) parseResponseLine(line string) (RawRecord, bool) {
	idx := strings.Index(line, markerResponseText)
	raw := strings.TrimSpace(line[idx+len(markerResponseText):])

	var resp centerResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		e.logger.Debugw("Dropping malformed response line", "error", err)
		return RawRecord{}, false
	}

	rec := RawRecord{
		Kind:        KindResponse,
		Response:    &resp,
		ResponseRaw: raw,
	}

	if m := responseIDPattern.FindStringSubmatch(line); m != nil {
		rec.ResponseID = strings.TrimSpace(m[1])
	}
	if m := logTimestampPattern.FindStringSubmatch(line); m != nil {
		rec.LogTimestamp = m[1]
	}

	return rec, true
}

func (e *Extractor) parseUploadLine(line string) (RawRecord, bool) {
	decoded := html.UnescapeString(line)

	picno := picnoPattern.FindStringSubmatch(decoded)
	if picno == nil {
		return RawRecord{}, false
	}

	info := &uploadInfo{ScanID: strings.TrimSpace(picno[1])}
	if info.ScanID == "" {
		return RawRecord{}, false
	}

	if m := scanTimePattern.FindStringSubmatch(decoded); m != nil {
		info.ScanTime = strings.TrimSpace(m[1])
	}
	if m := checkinTimePattern.FindStringSubmatch(decoded); m != nil {
		info.UpdateTime = strings.TrimSpace(m[1])
	}
	if m := containerPattern.FindStringSubmatch(decoded); m != nil {
		info.ContainerNo = strings.TrimSpace(m[1])
	}
	if m := postURLPattern.FindStringSubmatch(decoded); m != nil {
		info.PostURL = strings.TrimSpace(m[1])
	}
	if m := jsonDataPattern.FindStringSubmatch(decoded); m != nil {
		info.PayloadRaw = strings.TrimSpace(m[1])
	}

	if start, stop, ok := parseScanEpochs(decoded); ok {
		info.ScanStartEpoch = start
		info.ScanStopEpoch = stop
		info.HasEpochs = true
	}

	scanImgs := len(scanImgPattern.FindAllStringIndex(decoded, -1))
	imgTags := len(imgTagPattern.FindAllStringIndex(decoded, -1))
	if scanImgs > imgTags {
		info.ImageCount = scanImgs
	} else {
		info.ImageCount = imgTags
	}

	rec := RawRecord{
		Kind:   KindUpload,
		Upload: info,
	}
	if m := logTimestampPattern.FindStringSubmatch(line); m != nil {
		rec.LogTimestamp = m[1]
	}

	return rec, true
}
