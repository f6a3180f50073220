// Package telemetry wires optional Sentry error reporting. Nothing is sent
// unless the operator enables it and supplies a DSN.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
)

// FlushTimeout bounds how long shutdown waits for buffered events.
const FlushTimeout = 2 * time.Second

// Init configures Sentry from settings and installs it as the error
// reporter. The returned function flushes pending events and must be called
// on shutdown; it is a no-op when Sentry is disabled.
func Init(settings *conf.Settings) (func(), error) {
	return initWithTransport(settings, nil)
}

func initWithTransport(settings *conf.Settings, transport sentry.Transport) (func(), error) {
	log := logger.Global().Module("telemetry")

	if !settings.Sentry.Enabled {
		log.Debug("sentry error reporting disabled")
		return func() {}, nil
	}

	environment := settings.Sentry.Environment
	if environment == "" {
		environment = "production"
	}
	sampleRate := settings.Sentry.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		Environment:      environment,
		SampleRate:       sampleRate,
		Release:          fmt.Sprintf("floranet-go@%s", settings.Version),
		AttachStacktrace: false,
		ServerName:       "",
		Transport:        transport,
		BeforeSend:       beforeSend,
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("node", settings.Main.Name)
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	log.Info("sentry error reporting enabled",
		logger.String("environment", environment),
		logger.Float64("sample_rate", sampleRate))

	return func() {
		errors.SetTelemetryReporter(nil)
		if !sentry.Flush(FlushTimeout) {
			log.Warn("sentry flush timed out", logger.Duration("timeout", FlushTimeout))
		}
	}, nil
}

// beforeSend strips host and user identity and scrubs free text.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	event.Message = errors.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = errors.ScrubMessage(event.Exception[i].Value)
	}
	return event
}
