// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// EmbeddingDim is the length of every face embedding the encoder produces
	EmbeddingDim = 128

	// DefaultTolerance is the default maximum Euclidean distance for a face match
	// Lower values = stricter matching
	DefaultTolerance = 0.6

	// DefaultIdentifyK is the default number of nearest students returned by identify
	DefaultIdentifyK = 5

	// MaxIdentifyK caps the number of nearest students a single identify call may request
	MaxIdentifyK = 50
)

// Upload constants
const (
	// MaxUploadSize is the maximum size of a capture image accepted over HTTP (5MB)
	MaxUploadSize = 5 << 20

	// MaxImageSize is the maximum dimension (width or height) sent to the encoder
	MaxImageSize = 1920

	// MaxCapturePixels caps the declared pixel count of an upload, checked before decoding (50 MP)
	MaxCapturePixels = 50_000_000
)

// Reconciliation constants
const (
	// DefaultReconcileRetries is how many times a reconciliation is retried on
	// concurrent modification before giving up
	DefaultReconcileRetries = 3

	// RetryBackoff is the base delay between reconciliation retries
	RetryBackoff = 50 * time.Millisecond
)
