package logparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(scanID, segment string, offset int, status Status) *TransmissionRecord {
	return &TransmissionRecord{
		ScanID:        scanID,
		ContainerNo:   "ABCD1234567",
		ScanTime:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local),
		UpdateTime:    time.Date(2024, 3, 1, 10, 1, 0, 0, time.Local),
		ImageCount:    3,
		Status:        status,
		SourceSegment: segment,
		LineOffset:    offset,
	}
}

func TestMergeNewestSegmentWins(t *testing.T) {
	newer := testRecord("S1", "Transmission.log", 10, StatusOK)
	older := testRecord("S1", "Transmission.log.1", 4, StatusNOK)

	merged := Merge([][]*TransmissionRecord{{newer}, {older}}, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, StatusOK, merged["S1"].Status)
	assert.Equal(t, "Transmission.log", merged["S1"].SourceSegment)
}

func TestMergeLaterOffsetWinsWithinSegment(t *testing.T) {
	early := testRecord("S1", "Transmission.log", 3, StatusNOK)
	late := testRecord("S1", "Transmission.log", 9, StatusOK)

	merged := Merge([][]*TransmissionRecord{{early, late}}, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, StatusOK, merged["S1"].Status)
	assert.Equal(t, 9, merged["S1"].LineOffset)
}

func TestMergeAcknowledgedBeatsProvisional(t *testing.T) {
	response := testRecord("S1", "Transmission.log", 5, StatusOK)
	provisional := testRecord("S1", "Transmission.log", 8, StatusNOK)
	provisional.Provisional = true

	// The provisional retry is further down the segment but the
	// acknowledgement is authoritative.
	merged := Merge([][]*TransmissionRecord{{response, provisional}}, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, StatusOK, merged["S1"].Status)
	assert.False(t, merged["S1"].Provisional)
}

func TestMergeOverrideChangesOnlyStatusAndResponseText(t *testing.T) {
	original := testRecord("S1", "Transmission.log.1", 4, StatusNOK)
	original.ResponseText = `{"resultCode":false}`

	override := Override{
		ScanID:        "S1",
		Status:        "SUCCESS",
		ResponseText:  `{"resultCode":true}`,
		SourceSegment: "Transmission.log",
		LineOffset:    2,
	}

	merged := Merge([][]*TransmissionRecord{nil, {original}}, []Override{override})
	require.Len(t, merged, 1)

	rec := merged["S1"]
	assert.Equal(t, StatusOK, rec.Status)
	assert.Equal(t, `{"resultCode":true}`, rec.ResponseText)
	// Scan metadata is preserved: resends carry no fresh scan data.
	assert.Equal(t, original.ContainerNo, rec.ContainerNo)
	assert.Equal(t, original.ScanTime, rec.ScanTime)
	assert.Equal(t, original.UpdateTime, rec.UpdateTime)
	assert.Equal(t, original.ImageCount, rec.ImageCount)
}

func TestMergeFailedOverrideSupersedesStatus(t *testing.T) {
	original := testRecord("S1", "Transmission.log.1", 4, StatusOK)

	override := Override{
		ScanID:        "S1",
		Status:        "FAILED",
		ResponseText:  "connection refused",
		SourceSegment: "Transmission.log",
		LineOffset:    1,
	}

	merged := Merge([][]*TransmissionRecord{nil, {original}}, []Override{override})
	assert.Equal(t, StatusNOK, merged["S1"].Status)
}

func TestMergeOverrideBeforeRecordInSameSegmentIgnored(t *testing.T) {
	// The scan was re-run after the resend; the fresh record wins.
	override := Override{
		ScanID:        "S1",
		Status:        "SUCCESS",
		SourceSegment: "Transmission.log",
		LineOffset:    2,
	}
	rescanned := testRecord("S1", "Transmission.log", 7, StatusNOK)

	merged := Merge([][]*TransmissionRecord{{rescanned}}, []Override{override})
	assert.Equal(t, StatusNOK, merged["S1"].Status)
}

func TestMergeLatestOverridePerScanIDApplies(t *testing.T) {
	original := testRecord("S1", "Transmission.log.1", 1, StatusNOK)

	overrides := []Override{
		{ScanID: "S1", Status: "SUCCESS", SourceSegment: "Transmission.log", LineOffset: 3},
		{ScanID: "S1", Status: "FAILED", SourceSegment: "Transmission.log", LineOffset: 8},
	}

	merged := Merge([][]*TransmissionRecord{nil, {original}}, overrides)
	assert.Equal(t, StatusNOK, merged["S1"].Status)
}

func TestMergeIsIdempotent(t *testing.T) {
	segments := [][]*TransmissionRecord{
		{testRecord("S1", "Transmission.log", 2, StatusOK), testRecord("S2", "Transmission.log", 5, StatusNOK)},
		{testRecord("S1", "Transmission.log.1", 7, StatusNOK), testRecord("S3", "Transmission.log.1", 9, StatusOK)},
	}
	overrides := []Override{
		{ScanID: "S2", Status: "SUCCESS", ResponseText: "ok", SourceSegment: "Transmission.log", LineOffset: 10},
	}

	first := Merge(segments, overrides)
	second := Merge(segments, overrides)
	assert.Equal(t, first, second)
}

func TestMergeBackfillsMissingMetadataFromOlderSegments(t *testing.T) {
	newer := &TransmissionRecord{
		ScanID:        "S1",
		Status:        StatusNOK,
		SourceSegment: "Transmission.log",
		LineOffset:    1,
	}
	older := testRecord("S1", "Transmission.log.1", 3, StatusOK)
	older.HasDurations = true
	older.ScanDuration = 12 * time.Second
	older.OverallDuration = 12 * time.Second

	merged := Merge([][]*TransmissionRecord{{newer}, {older}}, nil)
	rec := merged["S1"]

	// Status comes from the newest segment, missing metadata from the older.
	assert.Equal(t, StatusNOK, rec.Status)
	assert.Equal(t, "ABCD1234567", rec.ContainerNo)
	assert.Equal(t, older.ScanTime, rec.ScanTime)
	assert.True(t, rec.HasDurations)
	assert.Equal(t, 12*time.Second, rec.ScanDuration)
}

func TestSortedRecordsNewestFirst(t *testing.T) {
	a := testRecord("A", "Transmission.log", 1, StatusOK)
	a.ScanTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	b := testRecord("B", "Transmission.log", 2, StatusOK)
	b.ScanTime = time.Date(2024, 3, 1, 11, 0, 0, 0, time.Local)

	merged := Merge([][]*TransmissionRecord{{a, b}}, nil)
	records := SortedRecords(merged)
	require.Len(t, records, 2)
	assert.Equal(t, "B", records[0].ScanID)
	assert.Equal(t, "A", records[1].ScanID)
}
