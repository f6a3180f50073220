// Package species maps scientific names to stable species identifiers,
// creating species rows on first sight.
package species

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/observability/metrics"
)

// DefaultCacheTTL is how long a resolved name stays memoised.
const DefaultCacheTTL = 30 * time.Minute

// ResolutionRecorder receives one call per resolution.
type ResolutionRecorder interface {
	RecordResolution(source string)
}

// Resolver resolves scientific names to species ids.
//
// Concurrent calls for the same name inside one process share a single
// database round-trip. Across processes the unique index on scientific_name
// decides the winner and losers re-read the row.
type Resolver struct {
	repo    repository.SpeciesRepository
	cache   *cache.Cache
	group   singleflight.Group
	log     logger.Logger
	metrics ResolutionRecorder
	ttl     time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithMetrics sets the resolution recorder.
func WithMetrics(m ResolutionRecorder) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithCacheTTL sets the memo lifetime; zero or negative disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// NewResolver creates a Resolver backed by repo.
func NewResolver(repo repository.SpeciesRepository, opts ...Option) *Resolver {
	r := &Resolver{
		repo: repo,
		ttl:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.ttl > 0 {
		r.cache = cache.New(r.ttl, 2*r.ttl)
	}
	if r.log == nil {
		r.log = logger.Global().Module("species")
	}
	return r
}

type resolution struct {
	id     uint
	source string
}

// Resolve returns the id of the species named scientificName, creating it
// with no other fields set when it does not exist yet.
func (r *Resolver) Resolve(ctx context.Context, scientificName string) (uint, error) {
	name := strings.TrimSpace(scientificName)
	if name == "" {
		return 0, errors.New(errors.NewStd("scientific name must not be empty")).
			Component("species").
			Category(errors.CategoryValidation).
			Build()
	}

	if r.cache != nil {
		if v, ok := r.cache.Get(name); ok {
			r.record(metrics.SourceCache)
			return v.(uint), nil
		}
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		return r.lookupOrCreate(ctx, name)
	})
	if err != nil {
		return 0, err
	}

	res := v.(resolution)
	r.record(res.source)
	if r.cache != nil {
		r.cache.SetDefault(name, res.id)
	}
	return res.id, nil
}

// ResolveAll resolves names in order and returns ids in the same order.
// It stops at the first failure.
func (r *Resolver) ResolveAll(ctx context.Context, names []string) ([]uint, error) {
	ids := make([]uint, 0, len(names))
	for _, name := range names {
		id, err := r.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Forget drops a memoised name.
func (r *Resolver) Forget(scientificName string) {
	if r.cache != nil {
		r.cache.Delete(strings.TrimSpace(scientificName))
	}
}

func (r *Resolver) lookupOrCreate(ctx context.Context, name string) (resolution, error) {
	existing, err := r.repo.GetByScientificName(ctx, name)
	if err == nil {
		return resolution{id: existing.ID, source: metrics.SourceLookup}, nil
	}
	if !errors.IsNotFound(err) {
		return resolution{}, err
	}

	created := &entities.Species{ScientificName: name}
	createErr := r.repo.Create(ctx, created)
	if createErr == nil {
		r.log.Info("species created",
			logger.String("scientific_name", name),
			logger.Uint64("species_id", uint64(created.ID)))
		return resolution{id: created.ID, source: metrics.SourceCreated}, nil
	}
	if !repository.IsDuplicateKey(createErr) {
		return resolution{}, createErr
	}

	// Another writer inserted the same name between our lookup and insert
	r.log.Debug("species created concurrently, re-reading",
		logger.String("scientific_name", name))
	existing, err = r.repo.GetByScientificName(ctx, name)
	if err != nil {
		return resolution{}, errors.New(createErr).
			Component("species").
			Category(errors.CategoryDatabase).
			Context("scientific_name", name).
			Context("retry_error", err.Error()).
			Build()
	}
	return resolution{id: existing.ID, source: metrics.SourceRetry}, nil
}

func (r *Resolver) record(source string) {
	if r.metrics != nil {
		r.metrics.RecordResolution(source)
	}
}
