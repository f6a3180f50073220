package moderation

import (
	"fmt"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
	"github.com/tphakala/floranet-go/internal/errors"
)

func validation(msg string) error {
	return errors.New(errors.NewStd(msg)).
		Component("moderation").
		Category(errors.CategoryValidation).
		Build()
}

func alreadyModerated(id uint, status entities.ModerationStatus) error {
	return errors.New(repository.ErrAlreadyModerated).
		Component("moderation").
		Category(errors.CategoryConflict).
		Context("observation_id", id).
		Context("status", string(status)).
		Build()
}

func duplicateSpecies(name string) error {
	return errors.New(fmt.Errorf("species %q already exists: %w", name, repository.ErrDuplicateKey)).
		Component("moderation").
		Category(errors.CategoryConflict).
		Context("scientific_name", name).
		Build()
}
