// Package repository provides the data access layer for species,
// observations and their classification results.
package repository

import (
	stderrors "errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/tphakala/floranet-go/internal/errors"
)

// Sentinel errors for repository operations.
var (
	// ErrSpeciesNotFound indicates the requested species does not exist.
	ErrSpeciesNotFound = errors.NewStd("species not found")

	// ErrObservationNotFound indicates the requested observation does not exist.
	ErrObservationNotFound = errors.NewStd("observation not found")

	// ErrDuplicateKey indicates a unique constraint violation.
	ErrDuplicateKey = errors.NewStd("duplicate key")

	// ErrAlreadyModerated indicates the observation has left the pending state.
	ErrAlreadyModerated = errors.NewStd("observation already moderated")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.NewStd("invalid input")
)

const mysqlDuplicateEntry = 1062

// IsDuplicateKey reports whether err is a unique constraint violation from
// either backend, translated by GORM or not.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) || stderrors.Is(err, ErrDuplicateKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var mysqlErr *mysql.MySQLError
	if stderrors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}

	return false
}

func notFound(sentinel error, id any) error {
	return errors.New(sentinel).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("id", id).
		Build()
}

func dbError(err error, operation string) error {
	if IsDuplicateKey(err) {
		return errors.New(fmt.Errorf("%s: %w: %w", operation, ErrDuplicateKey, err)).
			Component("datastore").
			Category(errors.CategoryConflict).
			Context("operation", operation).
			Build()
	}
	return errors.New(fmt.Errorf("%s: %w", operation, err)).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

func invalidInput(msg string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrInvalidInput, msg)).
		Component("datastore").
		Category(errors.CategoryValidation).
		Build()
}

func alreadyModerated(id uint) error {
	return errors.New(ErrAlreadyModerated).
		Component("datastore").
		Category(errors.CategoryConflict).
		Context("id", id).
		Build()
}
