package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called concurrently
// because every instance owns its registry.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()
	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if err != nil {
				t.Errorf("NewMetrics failed: %v", err)
				return
			}
			if m.Worker == nil || m.Pipeline == nil || m.MQTT == nil || m.Notification == nil {
				t.Error("metrics collector is nil")
			}
		})
	}
	wg.Wait()
}

func TestMetricsHandlerServesCollectors(t *testing.T) {
	t.Parallel()
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Worker.RecordStart()

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "floranet_worker_starts_total 1"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
