package worker

import (
	"fmt"

	"github.com/tphakala/floranet-go/internal/errors"
)

var (
	// ErrWorkerUnavailable is wrapped by every error Call returns.
	ErrWorkerUnavailable = errors.NewStd("classifier worker unavailable")

	// ErrStopped indicates the supervisor was stopped.
	ErrStopped = errors.NewStd("supervisor stopped")

	// ErrTimeout indicates the classifier did not answer in time.
	ErrTimeout = errors.NewStd("classifier response timed out")
)

func unavailable(operation string, cause error, tail string) error {
	b := errors.New(fmt.Errorf("%w: %s: %w", ErrWorkerUnavailable, operation, cause)).
		Component("worker").
		Category(errors.CategoryWorkerUnavailable).
		Context("operation", operation)
	if tail != "" {
		b = b.Context("stderr", tail)
	}
	return b.Build()
}
