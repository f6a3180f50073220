package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/floranet-go/internal/events"
	"github.com/tphakala/floranet-go/internal/logger"
)

// Topic suffixes under the configured prefix.
const (
	TopicModeration   = "moderation"
	TopicObservations = "observations"
)

// PublishRecorder receives one call per publish attempt.
type PublishRecorder interface {
	RecordPublish(event string, sizeBytes int, started time.Time, err error)
}

// URLMapper turns a stored image reference into a public URL.
type URLMapper interface {
	PublicURL(p string) string
}

// Publisher forwards bus events to the broker. It is an events.Consumer.
type Publisher struct {
	client  Client
	prefix  string
	urls    URLMapper
	metrics PublishRecorder
	log     logger.Logger
}

// NewPublisher creates a Publisher writing under topic prefix. urls and m
// may be nil.
func NewPublisher(client Client, prefix string, urls URLMapper, m PublishRecorder, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.Global().Module("mqtt")
	}
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = "floranet"
	}
	return &Publisher{client: client, prefix: prefix, urls: urls, metrics: m, log: log}
}

// Name implements events.Consumer.
func (p *Publisher) Name() string {
	return "mqtt"
}

// TopicFor returns the topic an event kind is published to.
func (p *Publisher) TopicFor(kind events.Kind) (string, bool) {
	switch kind {
	case events.KindObservationModerated:
		return p.prefix + "/" + TopicModeration, true
	case events.KindObservationIngested:
		return p.prefix + "/" + TopicObservations, true
	default:
		return "", false
	}
}

// ProcessEvent publishes e. Failures are returned to the bus, which logs
// them; they never reach the request that caused the event.
func (p *Publisher) ProcessEvent(ctx context.Context, e events.Event) error {
	topic, ok := p.TopicFor(e.Kind)
	if !ok {
		return nil
	}

	var imageURL string
	if p.urls != nil {
		imageURL = p.urls.PublicURL(e.ImageRef)
	}
	payload, err := json.Marshal(NewEventDTO(e, imageURL))
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Kind, err)
	}

	if !p.client.IsConnected() {
		// The client enforces a cooldown between attempts
		if err := p.client.Connect(ctx); err != nil {
			if p.metrics != nil {
				p.metrics.RecordPublish(string(e.Kind), len(payload), time.Now(), err)
			}
			return err
		}
	}

	started := time.Now()
	err = p.client.Publish(ctx, topic, payload)
	if p.metrics != nil {
		p.metrics.RecordPublish(string(e.Kind), len(payload), started, err)
	}
	if err != nil {
		return err
	}

	p.log.Debug("event published",
		logger.String("topic", topic),
		logger.Uint64("observation_id", uint64(e.ObservationID)))
	return nil
}
