package entities

// AIResult is one ranked classifier candidate for an observation.
// Rank 1 is the most likely species; ranks are contiguous per observation.
// Rows are immutable once written.
type AIResult struct {
	ID            uint    `gorm:"primaryKey"`
	ObservationID uint    `gorm:"not null;uniqueIndex:idx_ai_result_rank"`
	SpeciesID     uint    `gorm:"not null;index"`
	Confidence    float64 `gorm:"type:decimal(5,4);not null"`
	Rank          int     `gorm:"column:result_rank;not null;uniqueIndex:idx_ai_result_rank"` // RANK is reserved in MySQL 8

	Observation *Observation `gorm:"foreignKey:ObservationID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE"`
	Species     *Species     `gorm:"foreignKey:SpeciesID"`
}

// TableName returns the table name for GORM.
func (AIResult) TableName() string {
	return "ai_results"
}

// ConfidenceScale is the fixed precision confidences are stored with.
const ConfidenceScale = 10000

// All returns every entity in migration order.
func All() []any {
	return []any{
		&Species{},
		&Observation{},
		&AIResult{},
	}
}
