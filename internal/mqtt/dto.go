package mqtt

import (
	"time"

	"github.com/tphakala/floranet-go/internal/events"
)

// EventDTO is the JSON payload published for every event.
//
// Field names are part of the published contract consumed by downstream
// automations; add fields, never rename them.
type EventDTO struct {
	ObservationID  uint      `json:"observation_id"`
	Status         string    `json:"status"`
	SpeciesID      *uint     `json:"species_id"`
	ScientificName string    `json:"scientific_name,omitempty"`
	ImageRef       string    `json:"image_ref,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	AutoFlagged    bool      `json:"auto_flagged"`
	Action         string    `json:"action,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewEventDTO converts a bus event to its wire form. imageURL may be empty.
func NewEventDTO(e events.Event, imageURL string) EventDTO {
	return EventDTO{
		ObservationID:  e.ObservationID,
		Status:         e.Status,
		SpeciesID:      e.SpeciesID,
		ScientificName: e.ScientificName,
		ImageRef:       e.ImageRef,
		ImageURL:       imageURL,
		Confidence:     e.Confidence,
		AutoFlagged:    e.AutoFlagged,
		Action:         e.Action,
		Timestamp:      e.Timestamp.UTC(),
	}
}
