package logparse

import (
	"sort"
	"strings"
)

// Merge reconciles per-segment record slices into one authoritative map keyed
// by scan id. segments must be ordered newest first; overrides are the resend
// outcomes collected from all segments.
//
// For a given scan id the first occurrence encountered wins. Within one
// segment an acknowledged response beats a provisional upload entry, and
// between equals the later line offset wins (most-recent write). A resend
// override written after the original record supersedes the winner's status
// and response text but preserves its scan metadata: resends carry no fresh
// scan data.
//
// The reconciliation is deterministic and idempotent: the same segments and
// overrides always produce the same map.
func Merge(segments [][]*TransmissionRecord, overrides []Override) map[string]*TransmissionRecord {
	merged := make(map[string]*TransmissionRecord)
	// Segment index of each winning record; lower index = newer segment.
	winnerSegment := make(map[string]int)
	segmentIndex := make(map[string]int)

	for idx, records := range segments {
		perSegment := make(map[string]*TransmissionRecord)
		for _, rec := range records {
			if rec == nil || rec.ScanID == "" {
				continue
			}
			if _, ok := segmentIndex[rec.SourceSegment]; !ok {
				segmentIndex[rec.SourceSegment] = idx
			}
			current, ok := perSegment[rec.ScanID]
			if !ok || supersedes(rec, current) {
				perSegment[rec.ScanID] = rec
			}
		}

		for id, rec := range perSegment {
			if existing, ok := merged[id]; ok {
				backfill(existing, rec)
				continue
			}
			merged[id] = cloneRecord(rec)
			winnerSegment[id] = idx
		}
	}

	for _, ov := range pickLatestOverrides(overrides, segmentIndex) {
		rec, ok := merged[ov.ScanID]
		if !ok {
			continue
		}
		if !writtenAfter(ov, rec, segmentIndex, winnerSegment) {
			// The record was re-scanned after this resend; the fresh
			// record is authoritative.
			continue
		}
		if strings.EqualFold(ov.Status, "SUCCESS") {
			rec.Status = StatusOK
			rec.ErrorDesc = ""
		} else {
			rec.Status = StatusNOK
		}
		if ov.ResponseText != "" {
			rec.ResponseText = ov.ResponseText
		}
	}

	return merged
}

// SortedRecords flattens a merged map into a slice ordered newest first by
// scan time, falling back to scan id for a stable order.
func SortedRecords(merged map[string]*TransmissionRecord) []*TransmissionRecord {
	records := make([]*TransmissionRecord, 0, len(merged))
	for _, rec := range merged {
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].ScanTime.Equal(records[j].ScanTime) {
			return records[i].ScanTime.After(records[j].ScanTime)
		}
		return records[i].ScanID > records[j].ScanID
	})

	return records
}

// supersedes reports whether a beats b inside one segment.
func supersedes(a, b *TransmissionRecord) bool {
	if a.Provisional != b.Provisional {
		return !a.Provisional
	}
	return a.LineOffset > b.LineOffset
}

// pickLatestOverrides keeps the most recent override per scan id: the one in
// the newest segment, latest offset within a segment.
func pickLatestOverrides(overrides []Override, segmentIndex map[string]int) map[string]Override {
	applied := make(map[string]Override)
	for _, ov := range overrides {
		current, ok := applied[ov.ScanID]
		if !ok {
			applied[ov.ScanID] = ov
			continue
		}

		ovIdx, haveOv := segmentIndex[ov.SourceSegment]
		curIdx, haveCur := segmentIndex[current.SourceSegment]
		switch {
		case haveOv && haveCur && ovIdx != curIdx:
			if ovIdx < curIdx {
				applied[ov.ScanID] = ov
			}
		case ov.SourceSegment == current.SourceSegment && ov.LineOffset > current.LineOffset:
			applied[ov.ScanID] = ov
		}
	}
	return applied
}

// writtenAfter reports whether the override is logically later than the
// winning record: in a newer segment, or further down the same segment.
func writtenAfter(ov Override, rec *TransmissionRecord, segmentIndex, winnerSegment map[string]int) bool {
	ovIdx, ok := segmentIndex[ov.SourceSegment]
	if !ok {
		// Override segment yielded no records of its own; it is still a
		// later write than anything it was collected alongside.
		return true
	}
	recIdx := winnerSegment[rec.ScanID]
	if ovIdx != recIdx {
		return ovIdx < recIdx
	}
	return ov.LineOffset > rec.LineOffset
}

// backfill fills scan metadata the winning record is missing from an older
// sighting of the same scan id. Status is never touched: the newest segment
// already decided it.
func backfill(dst, src *TransmissionRecord) {
	if dst.ContainerNo == "" {
		dst.ContainerNo = src.ContainerNo
	}
	if dst.ScanTime.IsZero() {
		dst.ScanTime = src.ScanTime
	}
	if dst.UpdateTime.IsZero() {
		dst.UpdateTime = src.UpdateTime
	}
	if !dst.HasDurations && src.HasDurations {
		dst.ScanDuration = src.ScanDuration
		dst.OverallDuration = src.OverallDuration
		dst.HasDurations = true
	}
	if dst.ImageCount == 0 {
		dst.ImageCount = src.ImageCount
	}
}

func cloneRecord(rec *TransmissionRecord) *TransmissionRecord {
	clone := *rec
	return &clone
}
