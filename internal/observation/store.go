// Package observation persists observations with their ranked classifier
// results and runs the ingestion pipeline that produces them.
package observation

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/inference"
	"github.com/tphakala/floranet-go/internal/logger"
)

// ErrResultsExist indicates results were already attached to an observation.
var ErrResultsExist = errors.NewStd("observation already has results")

// NameResolver maps scientific names to species ids in order.
type NameResolver interface {
	ResolveAll(ctx context.Context, names []string) ([]uint, error)
}

// Fields are the caller-supplied attributes of a new observation.
// Nil or non-finite coordinates are stored as 0.
type Fields struct {
	SubmitterID  *string
	ImageRef     string
	Latitude     *float64
	Longitude    *float64
	LocationName string
	Source       string
	Notes        *string
	AutoFlagged  bool
}

// View is an observation together with its results, rank ascending.
type View struct {
	Observation *entities.Observation
	Results     []repository.ResultView
}

// Store is the observation persistence facade used by ingestion and the API.
type Store struct {
	repos    *repository.Repositories
	resolver NameResolver
	log      logger.Logger
}

// NewStore creates a Store.
func NewStore(repos *repository.Repositories, resolver NameResolver, log logger.Logger) *Store {
	if log == nil {
		log = logger.Global().Module("observation")
	}
	return &Store{repos: repos, resolver: resolver, log: log}
}

// Create inserts one observation in the pending state and returns its id.
func (s *Store) Create(ctx context.Context, f Fields) (uint, error) {
	obs := newObservation(f)
	if obs.ImageRef == "" {
		return 0, errors.New(errors.NewStd("image reference is required")).
			Component("observation").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := s.repos.Observations.Create(ctx, obs); err != nil {
		return 0, err
	}
	return obs.ID, nil
}

func newObservation(f Fields) *entities.Observation {
	source := strings.TrimSpace(f.Source)
	if source == "" {
		source = entities.DefaultSource
	}
	return &entities.Observation{
		SubmitterID:  nonEmpty(f.SubmitterID),
		ImageRef:     strings.TrimSpace(f.ImageRef),
		Latitude:     coordinate(f.Latitude),
		Longitude:    coordinate(f.Longitude),
		LocationName: strings.TrimSpace(f.LocationName),
		Source:       source,
		Status:       entities.StatusPending,
		AutoFlagged:  f.AutoFlagged,
		Notes:        nonEmpty(f.Notes),
	}
}

func coordinate(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// AttachResults resolves every candidate to a species in rank order and
// stores all results in one transaction. An empty list is a no-op.
//
// Ranks are renumbered 1..k after sorting by the candidates' own rank, so a
// gap in the input never reaches storage. Results are immutable: attaching to
// an observation that already has results is a conflict.
func (s *Store) AttachResults(ctx context.Context, observationID uint, candidates []inference.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	ordered := slices.Clone(candidates)
	slices.SortStableFunc(ordered, func(a, b inference.Candidate) int { return a.Rank - b.Rank })

	names := make([]string, len(ordered))
	for i, c := range ordered {
		names[i] = c.Name
	}

	// Resolution runs outside the transaction; species rows are shared and
	// stay valid even when the results below are rolled back.
	ids, err := s.resolver.ResolveAll(ctx, names)
	if err != nil {
		return err
	}

	results := make([]entities.AIResult, len(ordered))
	for i, c := range ordered {
		results[i] = entities.AIResult{
			ObservationID: observationID,
			SpeciesID:     ids[i],
			Confidence:    c.Confidence,
			Rank:          i + 1,
		}
	}

	return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Observations.GetByID(ctx, observationID); err != nil {
			return err
		}
		n, err := tx.Observations.CountResults(ctx, observationID)
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.New(ErrResultsExist).
				Component("observation").
				Category(errors.CategoryConflict).
				Context("observation_id", observationID).
				Build()
		}
		return tx.Observations.SaveResults(ctx, results)
	})
}

// GetWithResults returns the observation and its results enriched with
// species names.
func (s *Store) GetWithResults(ctx context.Context, id uint) (*View, error) {
	obs, err := s.repos.Observations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	results, err := s.repos.Observations.GetResults(ctx, id)
	if err != nil {
		return nil, err
	}
	return &View{Observation: obs, Results: results}, nil
}

// ListByStatus returns at most pageSize observations, newest first. A full
// page means the caller should probe the next offset.
func (s *Store) ListByStatus(ctx context.Context, statuses []entities.ModerationStatus, pageSize, offset int, filters repository.ObservationFilters) ([]repository.ObservationSummary, error) {
	return s.repos.Observations.ListByStatus(ctx, statuses, pageSize, offset, filters)
}
