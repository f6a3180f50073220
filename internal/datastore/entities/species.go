package entities

import "time"

// Species is a canonical taxonomic entry, unique by scientific name.
// Only the scientific name is required; the rest is filled in by moderation.
type Species struct {
	ID             uint      `gorm:"primaryKey"`
	ScientificName string    `gorm:"size:200;not null;uniqueIndex:idx_species_scientific_name"`
	CommonName     *string   `gorm:"size:200"`
	IsEndangered   *bool
	Description    *string   `gorm:"type:text"`
	ImageRef       *string   `gorm:"size:500"` // canonical archived photo, first write wins
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (Species) TableName() string {
	return "species"
}

// HasImage reports whether a canonical image is already set.
func (s *Species) HasImage() bool {
	return s.ImageRef != nil && *s.ImageRef != ""
}
