// Package metrics provides custom Prometheus metrics for the FloraNet-Go application.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on it rather than on concrete collectors so tests can
// pass a no-op or recording implementation.
type Recorder interface {
	// RecordOperation records an operation with its status.
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its category.
	RecordError(operation, errorType string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}
func (NopRecorder) RecordDuration(string, float64) {}
func (NopRecorder) RecordError(string, string)     {}
