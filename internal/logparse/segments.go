package logparse

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// SegmentInfo describes one physical log segment (current or rotated).
type SegmentInfo struct {
	Path    string
	Name    string
	ModTime time.Time
}

// ListSegments finds the segments in dir matching pattern, ordered newest
// first by modification time. Rotation suffixes are not a reliable ordering
// across log writers, so mtime is authoritative.
func ListSegments(dir, pattern string) ([]SegmentInfo, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid segment pattern %q: %w", pattern, err)
	}

	segments := make([]SegmentInfo, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			// A segment can rotate away between glob and stat.
			continue
		}
		segments = append(segments, SegmentInfo{
			Path:    path,
			Name:    filepath.Base(path),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		if !segments[i].ModTime.Equal(segments[j].ModTime) {
			return segments[i].ModTime.After(segments[j].ModTime)
		}
		return segments[i].Name > segments[j].Name
	})

	return segments, nil
}
