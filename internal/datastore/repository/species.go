package repository

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
)

// SpeciesRepository provides access to the species table.
type SpeciesRepository interface {
	// GetByID retrieves a species by its ID.
	GetByID(ctx context.Context, id uint) (*entities.Species, error)
	// GetByScientificName retrieves a species by exact scientific name.
	GetByScientificName(ctx context.Context, name string) (*entities.Species, error)
	// Create inserts a species. A name collision yields an error matching ErrDuplicateKey.
	Create(ctx context.Context, species *entities.Species) error
	// SetImageIfUnset sets the canonical image only when none is set and
	// reports whether the row was updated.
	SetImageIfUnset(ctx context.Context, id uint, imageRef string) (bool, error)
	// ImageInUse reports whether any species uses imageRef as its image.
	ImageInUse(ctx context.Context, imageRef string) (bool, error)
	// Count returns the number of species rows.
	Count(ctx context.Context) (int64, error)
}

type speciesRepository struct {
	db *gorm.DB
}

// NewSpeciesRepository creates a new SpeciesRepository.
func NewSpeciesRepository(db *gorm.DB) SpeciesRepository {
	return &speciesRepository{db: db}
}

func (r *speciesRepository) GetByID(ctx context.Context, id uint) (*entities.Species, error) {
	var species entities.Species
	err := r.db.WithContext(ctx).First(&species, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(ErrSpeciesNotFound, id)
	}
	if err != nil {
		return nil, dbError(err, "get_species")
	}
	return &species, nil
}

func (r *speciesRepository) GetByScientificName(ctx context.Context, name string) (*entities.Species, error) {
	var species entities.Species
	err := r.db.WithContext(ctx).
		Where("scientific_name = ?", name).
		First(&species).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(ErrSpeciesNotFound, name)
	}
	if err != nil {
		return nil, dbError(err, "get_species_by_name")
	}
	return &species, nil
}

func (r *speciesRepository) Create(ctx context.Context, species *entities.Species) error {
	if species.ScientificName == "" {
		return invalidInput("scientific name is required")
	}
	if err := r.db.WithContext(ctx).Create(species).Error; err != nil {
		return dbError(err, "create_species")
	}
	return nil
}

func (r *speciesRepository) SetImageIfUnset(ctx context.Context, id uint, imageRef string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Species{}).
		Where("id = ? AND (image_ref IS NULL OR image_ref = '')", id).
		Update("image_ref", imageRef)
	if result.Error != nil {
		return false, dbError(result.Error, "set_species_image")
	}
	return result.RowsAffected == 1, nil
}

func (r *speciesRepository) ImageInUse(ctx context.Context, imageRef string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.Species{}).
		Where("image_ref = ?", imageRef).
		Count(&count).Error
	if err != nil {
		return false, dbError(err, "species_image_in_use")
	}
	return count > 0, nil
}

func (r *speciesRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Species{}).Count(&count).Error; err != nil {
		return 0, dbError(err, "count_species")
	}
	return count, nil
}
