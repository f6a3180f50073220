// Package events provides an asynchronous event bus that decouples the
// ingestion and moderation paths from MQTT and notification delivery.
package events

import (
	"context"
	"time"
)

// Kind identifies what happened to an observation.
type Kind string

const (
	// KindObservationIngested is published once an observation and its
	// results are stored.
	KindObservationIngested Kind = "observation.ingested"

	// KindObservationModerated is published after a moderation decision commits.
	KindObservationModerated Kind = "observation.moderated"
)

// Event describes a committed change to an observation.
type Event struct {
	Kind           Kind      `json:"kind"`
	ObservationID  uint      `json:"observation_id"`
	Status         string    `json:"status"`
	SpeciesID      *uint     `json:"species_id,omitempty"`
	ScientificName string    `json:"scientific_name,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	AutoFlagged    bool      `json:"auto_flagged"`
	ImageRef       string    `json:"image_ref,omitempty"`
	Action         string    `json:"action,omitempty"` // moderation action name
	Timestamp      time.Time `json:"timestamp"`
}

// Consumer processes events delivered by the bus.
type Consumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent handles one event. ctx is cancelled when shutdown
	// exceeds its deadline.
	ProcessEvent(ctx context.Context, event Event) error
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	TryPublish(event Event) bool
}

// Stats contains runtime statistics for monitoring.
type Stats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
