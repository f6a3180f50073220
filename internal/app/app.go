// Package app assembles the FloraNet-Go service from settings: storage,
// classifier supervision, ingestion, moderation, event delivery and the
// HTTP API.
package app

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/floranet-go/internal/api"
	v2 "github.com/tphakala/floranet-go/internal/api/v2"
	"github.com/tphakala/floranet-go/internal/archive"
	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/datastore"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/events"
	"github.com/tphakala/floranet-go/internal/inference"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/moderation"
	"github.com/tphakala/floranet-go/internal/mqtt"
	"github.com/tphakala/floranet-go/internal/notification"
	"github.com/tphakala/floranet-go/internal/observability"
	"github.com/tphakala/floranet-go/internal/observation"
	"github.com/tphakala/floranet-go/internal/species"
	"github.com/tphakala/floranet-go/internal/telemetry"
	"github.com/tphakala/floranet-go/internal/worker"
)

// Shutdown budgets.
const (
	BusDrainTimeout    = 5 * time.Second
	MQTTConnectTimeout = 10 * time.Second
)

// App is a fully wired FloraNet-Go service.
type App struct {
	settings *conf.Settings
	log      logger.Logger
	listener net.Listener

	db         datastore.Manager
	metrics    *observability.Metrics
	supervisor *worker.Supervisor
	bus        *events.Bus
	mqtt       mqtt.Client
	server     *api.Server
	flush      func()

	Ingestor   *observation.Ingestor
	Store      *observation.Store
	Workflow   *moderation.Workflow
	Archive    *archive.Archive
	Classifier *inference.Gateway

	wg        sync.WaitGroup
	quit      chan struct{}
	closeOnce sync.Once
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithListener serves the API on an already bound listener.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// New builds every component named by settings. Nothing is served until Run.
func New(settings *conf.Settings, opts ...Option) (*App, error) {
	a := &App{
		settings: settings,
		quit:     make(chan struct{}),
		flush:    func() {},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Global().Module("app")
	}

	if err := a.build(); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	s := a.settings

	flush, err := telemetry.Init(s)
	if err != nil {
		return err
	}
	a.flush = flush

	if a.metrics, err = observability.NewMetrics(); err != nil {
		return errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if a.db, err = datastore.Open(s, a.log.Module("datastore")); err != nil {
		return err
	}
	repos := repository.New(a.db.DB())

	a.Archive = archive.New(afero.NewOsFs(), archive.Config{
		Root:       s.Storage.Archive,
		Uploads:    s.Storage.Uploads,
		PublicBase: s.Storage.PublicBase,
	})

	a.supervisor = worker.New(worker.ConfigFromSettings(&s.Worker),
		worker.WithLogger(a.log.Module("worker")),
		worker.WithMetrics(a.metrics.Worker))
	a.Classifier = inference.NewGateway(a.supervisor, s.Inference.Threshold, s.Worker.TopK, a.log.Module("inference"))

	a.bus = events.NewBus(events.DefaultConfig(), a.log.Module("events"))
	if err := a.registerConsumers(); err != nil {
		return err
	}

	resolver := species.NewResolver(repos.Species,
		species.WithLogger(a.log.Module("species")),
		species.WithMetrics(a.metrics.Pipeline))
	a.Store = observation.NewStore(repos, resolver, a.log.Module("observation"))
	a.Ingestor = observation.NewIngestor(a.Store, a.Classifier,
		observation.WithPublisher(a.bus),
		observation.WithIngestMetrics(a.metrics.Pipeline),
		observation.WithIngestLogger(a.log.Module("observation")))
	a.Workflow = moderation.NewWorkflow(repos, resolver, a.Archive,
		moderation.WithPublisher(a.bus),
		moderation.WithMetrics(a.metrics.Pipeline),
		moderation.WithLogger(a.log.Module("moderation")))

	if !s.WebServer.Enabled {
		return nil
	}
	serverOpts := []api.ServerOption{
		api.WithLogger(a.log.Module("api")),
		api.WithDeps(v2.Deps{
			Ingester:     a.Ingestor,
			Observations: a.Store,
			Moderator:    a.Workflow,
			Media:        a.Archive,
		}),
	}
	if a.listener != nil {
		serverOpts = append(serverOpts, api.WithListener(a.listener))
	}
	a.server, err = api.New(s, serverOpts...)
	return err
}

// registerConsumers attaches the optional MQTT and notification consumers.
func (a *App) registerConsumers() error {
	s := a.settings

	if s.MQTT.Enabled {
		a.mqtt = mqtt.NewClient(mqtt.ConfigFromSettings(s), a.metrics.MQTT, a.log.Module("mqtt"))
		pub := mqtt.NewPublisher(a.mqtt, s.MQTT.Topic, a.Archive, a.metrics.MQTT, a.log.Module("mqtt"))
		if err := a.bus.RegisterConsumer(pub); err != nil {
			return err
		}
	}

	if s.Notification.Enabled {
		n, err := notification.New(&s.Notification, a.metrics.Notification, a.log.Module("notification"))
		if err != nil {
			return err
		}
		if err := a.bus.RegisterConsumer(n); err != nil {
			return err
		}
	}
	return nil
}

// Run starts serving and blocks until ctx is done, then shuts down.
func (a *App) Run(ctx context.Context) error {
	a.start(ctx)
	<-ctx.Done()
	a.log.Info("shutting down")
	return a.Close()
}

func (a *App) start(ctx context.Context) {
	s := a.settings

	if s.Worker.Warmup {
		if err := a.supervisor.Start(); err != nil {
			// Calls retry the spawn lazily
			a.log.Warn("classifier warmup failed", logger.Error(err))
		}
	}

	if a.mqtt != nil {
		a.wg.Go(func() {
			cctx, cancel := context.WithTimeout(ctx, MQTTConnectTimeout)
			defer cancel()
			if err := a.mqtt.Connect(cctx); err != nil {
				a.log.Warn("MQTT broker not reachable, will retry on publish",
					logger.String("broker", s.MQTT.Broker),
					logger.Error(err))
			}
		})
	}

	if s.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(s, a.metrics)
		if err != nil {
			a.log.Error("telemetry endpoint not started", logger.Error(err))
		} else {
			endpoint.Start(&a.wg, a.quit)
		}
	}

	if a.server != nil {
		a.server.Start()
	}

	a.log.Info("FloraNet-Go started",
		logger.String("version", s.Version),
		logger.String("node", s.Main.Name),
		logger.Float64("threshold", a.Classifier.Threshold()),
		logger.Bool("api", a.server != nil),
		logger.Bool("mqtt", a.mqtt != nil),
		logger.Bool("notifications", s.Notification.Enabled))
}

// Close stops every component in reverse dependency order. It is safe to
// call more than once.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.server != nil {
			err = a.server.Shutdown()
		}
		a.release()
	})
	return err
}

// release tears down whatever build managed to create.
func (a *App) release() {
	if a.bus != nil {
		if err := a.bus.Shutdown(BusDrainTimeout); err != nil {
			a.log.Warn("event bus did not drain", logger.Error(err))
		}
	}
	close(a.quit)
	a.wg.Wait()
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	if a.supervisor != nil {
		a.supervisor.Stop()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close database", logger.Error(err))
		}
	}
	a.flush()
}

// Supervisor exposes the classifier supervisor.
func (a *App) Supervisor() *worker.Supervisor {
	return a.supervisor
}

// Metrics exposes the metrics registry.
func (a *App) Metrics() *observability.Metrics {
	return a.metrics
}
