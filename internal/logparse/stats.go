package logparse

import "time"

// recentWindow is the lookback used for the recent-activity rollup.
const recentWindow = 24 * time.Hour

// Stats is the aggregated rollup over the merged record set.
type Stats struct {
	Total          int     `json:"total"`
	OKCount        int     `json:"ok_count"`
	NOKCount       int     `json:"nok_count"`
	SuccessRate    float64 `json:"success_rate"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
	RecentActivity int     `json:"recent_activity"`
}

// ComputeStats aggregates counts, success rate, process uptime and recent
// activity from the merged records. An empty set yields a success rate of 0.
func ComputeStats(records []*TransmissionRecord, startedAt, now time.Time) Stats {
	stats := Stats{
		Total:         len(records),
		UptimeSeconds: int64(now.Sub(startedAt).Seconds()),
	}

	cutoff := now.Add(-recentWindow)
	for _, rec := range records {
		if rec.Status == StatusOK {
			stats.OKCount++
		} else {
			stats.NOKCount++
		}
		if !rec.ScanTime.IsZero() && rec.ScanTime.After(cutoff) {
			stats.RecentActivity++
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.OKCount) / float64(stats.Total)
	}

	return stats
}
