package model

import "time"

// Shared defaults used by the CLI and the analysis packages.
const (
	DefaultParallel = 5
	MinParallel     = 1
	MaxParallel     = 20

	// DefaultQueryTimeout bounds each column-store query.
	DefaultQueryTimeout = 30 * time.Second

	// TimeLayout is the ISO-8601 layout used for StartTime/EndTime in reports.
	TimeLayout = "2006-01-02T15:04:05Z"
	// BucketLayout is the layout of histogram keys (seconds always zero).
	BucketLayout = "2006-01-02T15:04:00Z"
)

// ClampParallel bounds n to [MinParallel, MaxParallel].
func ClampParallel(n int) int {
	if n < MinParallel {
		return MinParallel
	}
	if n > MaxParallel {
		return MaxParallel
	}
	return n
}
