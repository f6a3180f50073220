package api

import (
	"time"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
	"github.com/tphakala/floranet-go/internal/moderation"
	"github.com/tphakala/floranet-go/internal/observation"
)

// CandidateResponse is one ranked classifier guess.
type CandidateResponse struct {
	Rank       int     `json:"rank"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// SubmissionResponse answers POST /observations.
type SubmissionResponse struct {
	ObservationID uint                `json:"observation_id"`
	SpeciesName   string              `json:"species_name"`
	Confidence    float64             `json:"confidence"`
	AutoFlagged   bool                `json:"auto_flagged"`
	Threshold     float64             `json:"threshold"`
	Candidates    []CandidateResponse `json:"candidates"`
}

// ResultResponse is a stored result with its species names.
type ResultResponse struct {
	Rank           int     `json:"rank"`
	SpeciesID      uint    `json:"species_id"`
	ScientificName string  `json:"scientific_name"`
	CommonName     *string `json:"common_name"`
	Confidence     float64 `json:"confidence"`
}

// ObservationResponse is an observation as the API shows it.
type ObservationResponse struct {
	ID           uint                      `json:"id"`
	SubmitterID  *string                   `json:"submitter_id"`
	SpeciesID    *uint                     `json:"species_id"`
	ImageRef     string                    `json:"image_ref"`
	ImageURL     string                    `json:"image_url,omitempty"`
	Latitude     float64                   `json:"latitude"`
	Longitude    float64                   `json:"longitude"`
	LocationName string                    `json:"location_name"`
	Source       string                    `json:"source"`
	Status       entities.ModerationStatus `json:"status"`
	AutoFlagged  bool                      `json:"auto_flagged"`
	Notes        *string                   `json:"notes"`
	CreatedAt    time.Time                 `json:"created_at"`
	ModeratedAt  *time.Time                `json:"moderated_at,omitempty"`
	Results      []ResultResponse          `json:"results,omitempty"`
}

// QueueItem is one row of the moderation queue.
type QueueItem struct {
	ID                uint                      `json:"id"`
	SubmitterID       *string                   `json:"submitter_id"`
	ImageRef          string                    `json:"image_ref"`
	ImageURL          string                    `json:"image_url,omitempty"`
	Latitude          float64                   `json:"latitude"`
	Longitude         float64                   `json:"longitude"`
	LocationName      string                    `json:"location_name"`
	Source            string                    `json:"source"`
	Status            entities.ModerationStatus `json:"status"`
	AutoFlagged       bool                      `json:"auto_flagged"`
	Notes             *string                   `json:"notes"`
	CreatedAt         time.Time                 `json:"created_at"`
	PrimaryName       *string                   `json:"primary_name"`
	PrimaryConfidence *float64                  `json:"primary_confidence"`
}

// QueueResponse is a page of the moderation queue. HasMore is set when at
// least one more row exists past this page.
type QueueResponse struct {
	Items   []QueueItem `json:"items"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// SpeciesResponse describes a species.
type SpeciesResponse struct {
	ID             uint    `json:"id"`
	ScientificName string  `json:"scientific_name"`
	CommonName     *string `json:"common_name"`
	IsEndangered   *bool   `json:"is_endangered"`
	Description    *string `json:"description"`
	ImageRef       *string `json:"image_ref"`
	ImageURL       string  `json:"image_url,omitempty"`
}

// ModerationResponse answers every moderation action.
type ModerationResponse struct {
	Observation ObservationResponse `json:"observation"`
	Species     *SpeciesResponse    `json:"species,omitempty"`
	ArchivedRef string              `json:"archived_ref,omitempty"`
	Changed     bool                `json:"changed"`
}

// ConfirmRequest selects an existing species by id or scientific name.
type ConfirmRequest struct {
	SpeciesID      *uint   `json:"species_id"`
	ScientificName string  `json:"scientific_name"`
	Notes          *string `json:"notes"`
}

// ConfirmNewRequest carries the metadata of the species to create.
type ConfirmNewRequest struct {
	ScientificName string  `json:"scientific_name"`
	CommonName     *string `json:"common_name"`
	IsEndangered   *bool   `json:"is_endangered"`
	Description    *string `json:"description"`
	Notes          *string `json:"notes"`
}

// RejectRequest optionally records why an observation was rejected.
type RejectRequest struct {
	Notes *string `json:"notes"`
}

// StatusRequest sets the moderation status directly.
type StatusRequest struct {
	Status entities.ModerationStatus `json:"status"`
	Notes  *string                   `json:"notes"`
}

func (c *Controller) submissionResponse(res *observation.Result) SubmissionResponse {
	cls := res.Classification
	out := SubmissionResponse{
		ObservationID: res.ObservationID,
		SpeciesName:   cls.PrimaryName,
		Confidence:    cls.PrimaryConfidence,
		AutoFlagged:   cls.AutoFlagged,
		Threshold:     cls.Threshold,
		Candidates:    make([]CandidateResponse, 0, len(cls.Candidates)),
	}
	for _, cand := range cls.Candidates {
		out.Candidates = append(out.Candidates, CandidateResponse{
			Rank:       cand.Rank,
			Name:       cand.Name,
			Confidence: cand.Confidence,
		})
	}
	return out
}

func (c *Controller) observationResponse(obs *entities.Observation, results []repository.ResultView) ObservationResponse {
	out := ObservationResponse{
		ID:           obs.ID,
		SubmitterID:  obs.SubmitterID,
		SpeciesID:    obs.SpeciesID,
		ImageRef:     obs.ImageRef,
		ImageURL:     c.publicURL(obs.ImageRef),
		Latitude:     obs.Latitude,
		Longitude:    obs.Longitude,
		LocationName: obs.LocationName,
		Source:       obs.Source,
		Status:       obs.Status,
		AutoFlagged:  obs.AutoFlagged,
		Notes:        obs.Notes,
		CreatedAt:    obs.CreatedAt,
		ModeratedAt:  obs.ModeratedAt,
	}
	for _, r := range results {
		out.Results = append(out.Results, ResultResponse{
			Rank:           r.Rank,
			SpeciesID:      r.SpeciesID,
			ScientificName: r.ScientificName,
			CommonName:     r.CommonName,
			Confidence:     r.Confidence,
		})
	}
	return out
}

func (c *Controller) queueItem(row *repository.ObservationSummary) QueueItem {
	return QueueItem{
		ID:                row.ID,
		SubmitterID:       row.SubmitterID,
		ImageRef:          row.ImageRef,
		ImageURL:          c.publicURL(row.ImageRef),
		Latitude:          row.Latitude,
		Longitude:         row.Longitude,
		LocationName:      row.LocationName,
		Source:            row.Source,
		Status:            row.Status,
		AutoFlagged:       row.AutoFlagged,
		Notes:             row.Notes,
		CreatedAt:         row.CreatedAt,
		PrimaryName:       row.PrimaryName,
		PrimaryConfidence: row.PrimaryConfidence,
	}
}

func (c *Controller) moderationResponse(out *moderation.Outcome) ModerationResponse {
	resp := ModerationResponse{
		Observation: c.observationResponse(out.Observation, nil),
		ArchivedRef: out.ArchivedRef,
		Changed:     out.Changed,
	}
	if s := out.Species; s != nil {
		sr := &SpeciesResponse{
			ID:             s.ID,
			ScientificName: s.ScientificName,
			CommonName:     s.CommonName,
			IsEndangered:   s.IsEndangered,
			Description:    s.Description,
			ImageRef:       s.ImageRef,
		}
		if s.ImageRef != nil {
			sr.ImageURL = c.publicURL(*s.ImageRef)
		}
		resp.Species = sr
	}
	return resp
}

func (c *Controller) publicURL(p string) string {
	if c.media == nil {
		return ""
	}
	return c.media.PublicURL(p)
}
