// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation type constants recorded through the Recorder interface.
const (
	// OpClassify represents one classifier request.
	OpClassify = "classify"
	// OpIngest represents a full observation ingestion.
	OpIngest = "ingest"
	// OpResolve represents a species resolution.
	OpResolve = "resolve"
	// OpConfirmExisting represents binding an observation to an existing species.
	OpConfirmExisting = "confirm_existing"
	// OpConfirmNew represents binding an observation to a newly created species.
	OpConfirmNew = "confirm_new"
	// OpReject represents rejecting an observation.
	OpReject = "reject"
	// OpUpdateStatus represents a direct status update.
	OpUpdateStatus = "update_status"
	// OpArchiveCopy represents copying a photo into the species archive.
	OpArchiveCopy = "archive_copy"
)

// Label value constants used for metric labels.
const (
	// StatusSuccess labels a successful operation.
	StatusSuccess = "success"
	// StatusError labels a failed operation.
	StatusError = "error"
	// StatusNoop labels an idempotent repeat that changed nothing.
	StatusNoop = "noop"
	// SourceCache labels a resolution answered from the in-process cache.
	SourceCache = "cache"
	// SourceLookup labels a resolution answered by a database lookup.
	SourceLookup = "lookup"
	// SourceCreated labels a resolution that inserted a new species.
	SourceCreated = "created"
	// SourceRetry labels a resolution recovered after a unique violation.
	SourceRetry = "retry"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)

// Time constants.
const (
	// ShutdownTimeout is the timeout for graceful shutdown operations.
	ShutdownTimeout = 5 * time.Second
)
