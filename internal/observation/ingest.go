package observation

import (
	"context"
	"time"

	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/events"
	"github.com/tphakala/floranet-go/internal/inference"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/observability/metrics"
)

// Classifier classifies one stored image.
type Classifier interface {
	Classify(ctx context.Context, imagePath string, topK int) (*inference.Classification, error)
}

// Metrics receives ingestion measurements.
type Metrics interface {
	metrics.Recorder
	RecordClassification(confidence float64, autoFlagged bool)
}

type nopMetrics struct{ metrics.NopRecorder }

func (nopMetrics) RecordClassification(float64, bool) {}

// Submission is one ingestion request. Fields.ImageRef is both the stored
// reference and the path handed to the classifier.
type Submission struct {
	Fields
	TopK int // 0 uses the classifier default
}

// Result is what the submitter gets back.
type Result struct {
	ObservationID  uint
	Classification *inference.Classification
}

// Ingestor runs classify, create, resolve and attach, strictly in that order.
type Ingestor struct {
	store      *Store
	classifier Classifier
	publisher  events.Publisher
	metrics    Metrics
	log        logger.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithPublisher sets where ingestion events go.
func WithPublisher(p events.Publisher) IngestorOption {
	return func(i *Ingestor) { i.publisher = p }
}

// WithIngestMetrics sets the metrics sink.
func WithIngestMetrics(m Metrics) IngestorOption {
	return func(i *Ingestor) {
		if m != nil {
			i.metrics = m
		}
	}
}

// WithIngestLogger sets the logger.
func WithIngestLogger(l logger.Logger) IngestorOption {
	return func(i *Ingestor) { i.log = l }
}

// NewIngestor creates an Ingestor.
func NewIngestor(store *Store, classifier Classifier, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		store:      store,
		classifier: classifier,
		metrics:    nopMetrics{},
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.log == nil {
		i.log = logger.Global().Module("observation")
	}
	return i
}

// Ingest classifies the submitted image and records the observation with its
// results. A classifier failure leaves no observation behind. When storing
// the results fails the observation row stays pending without results.
func (i *Ingestor) Ingest(ctx context.Context, sub Submission) (*Result, error) {
	start := time.Now()
	res, err := i.ingest(ctx, sub)
	i.metrics.RecordDuration(metrics.OpIngest, time.Since(start).Seconds())
	if err != nil {
		i.metrics.RecordOperation(metrics.OpIngest, metrics.StatusError)
		i.metrics.RecordError(metrics.OpIngest, string(errors.CategoryOf(err)))
		return nil, err
	}
	i.metrics.RecordOperation(metrics.OpIngest, metrics.StatusSuccess)
	return res, nil
}

func (i *Ingestor) ingest(ctx context.Context, sub Submission) (*Result, error) {
	if sub.ImageRef == "" {
		return nil, errors.New(errors.NewStd("image reference is required")).
			Component("observation").
			Category(errors.CategoryValidation).
			Build()
	}

	c, err := i.classifier.Classify(ctx, sub.ImageRef, sub.TopK)
	if err != nil {
		i.log.Warn("classification failed",
			logger.String("image", sub.ImageRef),
			logger.Error(err))
		return nil, err
	}
	i.metrics.RecordClassification(c.PrimaryConfidence, c.AutoFlagged)

	fields := sub.Fields
	fields.AutoFlagged = c.AutoFlagged
	id, err := i.store.Create(ctx, fields)
	if err != nil {
		return nil, err
	}

	if err := i.store.AttachResults(ctx, id, c.Candidates); err != nil {
		i.log.Error("observation stored without results",
			logger.Uint64("observation_id", uint64(id)),
			logger.Error(err))
		return nil, err
	}

	i.log.Info("observation ingested",
		logger.Uint64("observation_id", uint64(id)),
		logger.String("species", c.PrimaryName),
		logger.Float64("confidence", c.PrimaryConfidence),
		logger.Bool("auto_flagged", c.AutoFlagged))

	i.publish(events.Event{
		Kind:           events.KindObservationIngested,
		ObservationID:  id,
		Status:         "pending",
		ScientificName: c.PrimaryName,
		Confidence:     c.PrimaryConfidence,
		AutoFlagged:    c.AutoFlagged,
		ImageRef:       fields.ImageRef,
	})

	return &Result{ObservationID: id, Classification: c}, nil
}

func (i *Ingestor) publish(e events.Event) {
	if i.publisher == nil {
		return
	}
	if !i.publisher.TryPublish(e) {
		i.log.Debug("ingestion event not delivered",
			logger.Uint64("observation_id", uint64(e.ObservationID)))
	}
}
