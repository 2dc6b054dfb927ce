// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Handler constants
const (
	// DefaultRangeDays is the window used by range reports when no start date is given
	DefaultRangeDays = 30

	// MaxRangeDays is the longest date range a single report may span
	MaxRangeDays = 366

	// RequestTimeout bounds every HTTP request, including the encoder round trip
	RequestTimeout = 2 * time.Minute
)
