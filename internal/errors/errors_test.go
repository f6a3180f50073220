package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestCategoryInheritedFromWrappedError(t *testing.T) {
	inner := New(NewStd("worker exited")).
		Component("worker").
		Category(CategoryWorkerUnavailable).
		Build()

	outer := New(fmt.Errorf("classify: %w", inner)).Build()

	assert.Equal(t, CategoryWorkerUnavailable, outer.Category)
	assert.True(t, IsWorkerUnavailable(outer))
	assert.True(t, Is(outer, inner.Err), "sentinel must stay reachable through the chain")
}

func TestCategoryHelpers(t *testing.T) {
	tests := []struct {
		name     string
		category ErrorCategory
		check    func(error) bool
	}{
		{"validation", CategoryValidation, IsValidation},
		{"not found", CategoryNotFound, IsNotFound},
		{"worker", CategoryWorkerUnavailable, IsWorkerUnavailable},
		{"storage", CategoryDatabase, IsStorage},
		{"filesystem", CategoryFileIO, IsFileSystem},
		{"conflict", CategoryConflict, IsConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(NewStd(tt.name)).Category(tt.category).Build()
			assert.True(t, tt.check(err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", err)))
			assert.False(t, tt.check(NewStd("plain")))
			assert.Equal(t, tt.category, CategoryOf(err))
		})
	}
}

func TestContextIsCopied(t *testing.T) {
	ee := New(NewStd("boom")).Context("observation_id", 42).Build()

	ctx := ee.GetContext()
	ctx["observation_id"] = 7

	assert.Equal(t, 42, ee.GetContext()["observation_id"])
}

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) { r.reported = append(r.reported, ee) }
func (r *recordingReporter) IsEnabled() bool               { return true }

func TestReporterReceivesBuiltErrors(t *testing.T) {
	rec := &recordingReporter{}
	SetTelemetryReporter(rec)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("insert failed")).Category(CategoryDatabase).Build()

	require.Len(t, rec.reported, 1)
	assert.Same(t, ee, rec.reported[0])
}

func TestBasicScrub(t *testing.T) {
	scrubbed := basicScrub("Error at https://api.example.com?api_key=secret123&token=abc")
	assert.Equal(t, "Error at https://api.example.com?[REDACTED]", scrubbed)

	scrubbed = basicScrub("dial mysql://user:hunter2@db:3306 failed")
	assert.NotContains(t, scrubbed, "hunter2")

	scrubbed = basicScrub("observation at 60.169856,24.938379")
	assert.False(t, strings.Contains(scrubbed, "60.169856"), scrubbed)
}
