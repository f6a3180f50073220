package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories bundles the repositories bound to one connection or transaction.
type Repositories struct {
	Species      SpeciesRepository
	Observations ObservationRepository

	db *gorm.DB
}

// New creates repositories on db.
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		Species:      NewSpeciesRepository(db),
		Observations: NewObservationRepository(db),
		db:           db,
	}
}

// Transaction runs fn with repositories bound to a single transaction.
// Returning an error from fn rolls the transaction back.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
