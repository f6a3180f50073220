package repository

import (
	"context"
	stderrors "errors"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
)

// ObservationFilters narrows a status listing. Confidence bounds apply to the
// rank-1 result; observations without results never match a confidence bound.
type ObservationFilters struct {
	AutoFlagged   *bool
	MinConfidence *float64
	MaxConfidence *float64
}

// ObservationSummary is one row of a status listing.
type ObservationSummary struct {
	ID                uint
	SubmitterID       *string
	SpeciesID         *uint
	ImageRef          string
	Latitude          float64
	Longitude         float64
	LocationName      string
	Source            string
	Status            entities.ModerationStatus
	AutoFlagged       bool
	Notes             *string
	CreatedAt         time.Time
	PrimaryName       *string
	PrimaryConfidence *float64
}

// ResultView is an AIResult joined with its species names.
type ResultView struct {
	Rank           int `gorm:"column:result_rank"`
	SpeciesID      uint
	ScientificName string
	CommonName     *string
	Confidence     float64
}

// ModerationUpdate describes a status transition out of pending.
type ModerationUpdate struct {
	Status    entities.ModerationStatus
	SpeciesID *uint
	Notes     *string
}

// ObservationRepository provides access to observations and their results.
type ObservationRepository interface {
	// Create inserts one observation row.
	Create(ctx context.Context, obs *entities.Observation) error
	// GetByID retrieves an observation by its ID.
	GetByID(ctx context.Context, id uint) (*entities.Observation, error)
	// SaveResults inserts all results in a single statement.
	SaveResults(ctx context.Context, results []entities.AIResult) error
	// GetResults returns results with species names, rank ascending.
	GetResults(ctx context.Context, observationID uint) ([]ResultView, error)
	// CountResults returns the number of results stored for an observation.
	CountResults(ctx context.Context, observationID uint) (int64, error)
	// ListByStatus returns at most limit observations, newest first.
	ListByStatus(ctx context.Context, statuses []entities.ModerationStatus, limit, offset int, filters ObservationFilters) ([]ObservationSummary, error)
	// UpdateModeration applies update only while the observation is pending.
	UpdateModeration(ctx context.Context, id uint, update ModerationUpdate) error
}

type observationRepository struct {
	db *gorm.DB
}

// NewObservationRepository creates a new ObservationRepository.
func NewObservationRepository(db *gorm.DB) ObservationRepository {
	return &observationRepository{db: db}
}

func (r *observationRepository) Create(ctx context.Context, obs *entities.Observation) error {
	if obs.ImageRef == "" {
		return invalidInput("image reference is required")
	}
	if !obs.Status.Valid() {
		return invalidInput("unknown status " + string(obs.Status))
	}
	if err := r.db.WithContext(ctx).Omit("Species").Create(obs).Error; err != nil {
		return dbError(err, "create_observation")
	}
	return nil
}

func (r *observationRepository) GetByID(ctx context.Context, id uint) (*entities.Observation, error) {
	var obs entities.Observation
	err := r.db.WithContext(ctx).First(&obs, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(ErrObservationNotFound, id)
	}
	if err != nil {
		return nil, dbError(err, "get_observation")
	}
	return &obs, nil
}

func (r *observationRepository) SaveResults(ctx context.Context, results []entities.AIResult) error {
	if len(results) == 0 {
		return nil
	}
	for i := range results {
		results[i].Confidence = math.Round(results[i].Confidence*entities.ConfidenceScale) / entities.ConfidenceScale
	}
	// Single INSERT, so either every row lands or none does
	if err := r.db.WithContext(ctx).Omit("Observation", "Species").Create(&results).Error; err != nil {
		return dbError(err, "save_results")
	}
	return nil
}

func (r *observationRepository) GetResults(ctx context.Context, observationID uint) ([]ResultView, error) {
	var views []ResultView
	err := r.db.WithContext(ctx).
		Table("ai_results AS r").
		Select("r.result_rank, r.species_id, r.confidence, s.scientific_name, s.common_name").
		Joins("JOIN species s ON s.id = r.species_id").
		Where("r.observation_id = ?", observationID).
		Order("r.result_rank ASC").
		Scan(&views).Error
	if err != nil {
		return nil, dbError(err, "get_results")
	}
	return views, nil
}

func (r *observationRepository) CountResults(ctx context.Context, observationID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.AIResult{}).
		Where("observation_id = ?", observationID).
		Count(&count).Error
	if err != nil {
		return 0, dbError(err, "count_results")
	}
	return count, nil
}

func (r *observationRepository) ListByStatus(ctx context.Context, statuses []entities.ModerationStatus, limit, offset int, filters ObservationFilters) ([]ObservationSummary, error) {
	if len(statuses) == 0 {
		return nil, invalidInput("at least one status is required")
	}
	if limit <= 0 {
		return nil, invalidInput("page size must be positive")
	}
	if offset < 0 {
		return nil, invalidInput("offset must not be negative")
	}

	query := r.db.WithContext(ctx).
		Table("observations AS o").
		Select(`o.id, o.submitter_id, o.species_id, o.image_ref, o.latitude, o.longitude,
			o.location_name, o.source, o.status, o.auto_flagged, o.notes, o.created_at,
			s.scientific_name AS primary_name, r.confidence AS primary_confidence`).
		Joins("LEFT JOIN ai_results r ON r.observation_id = o.id AND r.result_rank = 1").
		Joins("LEFT JOIN species s ON s.id = r.species_id").
		Where("o.status IN ?", statuses)

	if filters.AutoFlagged != nil {
		query = query.Where("o.auto_flagged = ?", *filters.AutoFlagged)
	}
	if filters.MinConfidence != nil {
		query = query.Where("r.confidence >= ?", *filters.MinConfidence)
	}
	if filters.MaxConfidence != nil {
		query = query.Where("r.confidence <= ?", *filters.MaxConfidence)
	}

	var rows []ObservationSummary
	err := query.
		Order("o.created_at DESC").
		Order("o.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "list_observations")
	}
	return rows, nil
}

func (r *observationRepository) UpdateModeration(ctx context.Context, id uint, update ModerationUpdate) error {
	if !update.Status.Valid() {
		return invalidInput("unknown status " + string(update.Status))
	}
	if update.Status == entities.StatusVerified && update.SpeciesID == nil {
		return invalidInput("verified observations require a species")
	}

	values := map[string]any{"status": update.Status}
	if update.SpeciesID != nil {
		values["species_id"] = *update.SpeciesID
	}
	if update.Notes != nil {
		values["notes"] = *update.Notes
	}
	if update.Status.Terminal() {
		values["moderated_at"] = time.Now()
	}

	result := r.db.WithContext(ctx).
		Model(&entities.Observation{}).
		Where("id = ? AND status = ?", id, entities.StatusPending).
		Updates(values)
	if result.Error != nil {
		return dbError(result.Error, "update_moderation")
	}
	if result.RowsAffected == 1 {
		return nil
	}

	// Nothing matched: the row is gone, already left pending, or (MySQL)
	// the update changed no values
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == entities.StatusPending && update.Status == entities.StatusPending {
		return nil
	}
	return alreadyModerated(id)
}
