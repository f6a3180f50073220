package entities

import "time"

// ModerationStatus is the review state of an observation.
type ModerationStatus string

const (
	StatusPending  ModerationStatus = "pending"
	StatusVerified ModerationStatus = "verified"
	StatusRejected ModerationStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s ModerationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s ModerationStatus) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// DefaultSource is the submission source recorded when none is given.
const DefaultSource = "camera"

// Observation is one submitted photo with its location and moderation state.
// SpeciesID stays nil until the observation is verified.
type Observation struct {
	ID           uint             `gorm:"primaryKey"`
	SubmitterID  *string          `gorm:"size:100;index"`
	SpeciesID    *uint            `gorm:"index"`
	ImageRef     string           `gorm:"size:500;not null"`
	Latitude     float64          `gorm:"not null;default:0"`
	Longitude    float64          `gorm:"not null;default:0"`
	LocationName string           `gorm:"size:200;not null;default:''"`
	Source       string           `gorm:"size:50;not null;default:camera"`
	Status       ModerationStatus `gorm:"size:20;not null;default:pending;index:idx_observations_status_created,priority:1"`
	AutoFlagged  bool             `gorm:"not null;default:false;index"`
	Notes        *string          `gorm:"type:text"`
	CreatedAt    time.Time        `gorm:"autoCreateTime;index:idx_observations_status_created,priority:2"`
	ModeratedAt  *time.Time

	Species *Species `gorm:"foreignKey:SpeciesID"`
}

// TableName returns the table name for GORM.
func (Observation) TableName() string {
	return "observations"
}
