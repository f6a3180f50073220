package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/logger"
	metricspkg "github.com/tphakala/floranet-go/internal/observability/metrics"
)

// Endpoint serves the Prometheus-compatible telemetry listener.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates a telemetry endpoint using metrics.
// It returns an error when telemetry is disabled in settings.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Telemetry.Enabled {
		return nil, fmt.Errorf("telemetry not enabled in settings")
	}

	return &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		metrics:       metrics,
	}, nil
}

// Start runs the HTTP server in a goroutine tracked by wg and shuts it
// down when quitChan closes.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	e.server = &http.Server{
		Addr:              e.listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Go(func() {
		log().Info("Telemetry endpoint starting", logger.String("address", e.listenAddress))
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log().Error("Telemetry HTTP server error", logger.Error(err))
		}
	})

	go e.gracefulShutdown(quitChan)
}

// gracefulShutdown waits for the quit signal and shuts down the server gracefully.
func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}) {
	<-quitChan
	log().Info("Stopping telemetry server")
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		log().Error("Telemetry server shutdown error", logger.Error(err))
	}
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
