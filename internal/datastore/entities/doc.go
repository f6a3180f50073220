// Package entities defines the GORM models for the observation pipeline.
//
// Species are deduplicated by scientific name (unique index). Observations own
// their AIResult rows; deleting an observation cascades to its results.
// Species are shared and never deleted.
package entities
