package species

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/observability/metrics"
	"github.com/tphakala/floranet-go/internal/testutil"
)

// racingRepo misses the first lookup and then loses the insert race, as if
// another process created the row in between.
type racingRepo struct {
	repository.SpeciesRepository
	lookups atomic.Int32
	creates atomic.Int32
	winner  entities.Species
	retryOK bool
}

func (r *racingRepo) GetByScientificName(_ context.Context, name string) (*entities.Species, error) {
	if r.lookups.Add(1) == 1 || !r.retryOK {
		return nil, errors.New(repository.ErrSpeciesNotFound).Category(errors.CategoryNotFound).Build()
	}
	sp := r.winner
	return &sp, nil
}

func (r *racingRepo) Create(context.Context, *entities.Species) error {
	r.creates.Add(1)
	return errors.New(repository.ErrDuplicateKey).Category(errors.CategoryConflict).Build()
}

type countingRecorder struct {
	mu      sync.Mutex
	sources map[string]int
}

func (c *countingRecorder) RecordResolution(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sources == nil {
		c.sources = map[string]int{}
	}
	c.sources[source]++
}

func TestResolve_CreatesThenReuses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repos := repository.New(testutil.NewTestDB(t))
	rec := &countingRecorder{}
	r := NewResolver(repos.Species, WithLogger(testutil.QuietLogger()), WithMetrics(rec), WithCacheTTL(0))

	id1, err := r.Resolve(ctx, "  Rafflesia arnoldii ")
	require.NoError(t, err)
	id2, err := r.Resolve(ctx, "Rafflesia arnoldii")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	sp, err := repos.Species.GetByID(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "Rafflesia arnoldii", sp.ScientificName)
	assert.Nil(t, sp.CommonName)
	assert.Nil(t, sp.ImageRef)

	assert.Equal(t, 1, rec.sources[metrics.SourceCreated])
	assert.Equal(t, 1, rec.sources[metrics.SourceLookup])
}

func TestResolve_CacheAnswersRepeatCalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repos := repository.New(testutil.NewTestDB(t))
	rec := &countingRecorder{}
	r := NewResolver(repos.Species, WithLogger(testutil.QuietLogger()), WithMetrics(rec))

	id1, err := r.Resolve(ctx, "Nepenthes rajah")
	require.NoError(t, err)
	id2, err := r.Resolve(ctx, "Nepenthes rajah")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, rec.sources[metrics.SourceCache])

	r.Forget("Nepenthes rajah")
	_, err = r.Resolve(ctx, "Nepenthes rajah")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.sources[metrics.SourceLookup])
}

func TestResolve_EmptyNameIsValidationError(t *testing.T) {
	t.Parallel()
	r := NewResolver(&racingRepo{}, WithLogger(testutil.QuietLogger()))

	_, err := r.Resolve(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestResolve_UniqueViolationRetriesLookupOnce(t *testing.T) {
	t.Parallel()
	repo := &racingRepo{winner: entities.Species{ID: 7, ScientificName: "Amorphophallus titanum"}, retryOK: true}
	rec := &countingRecorder{}
	r := NewResolver(repo, WithLogger(testutil.QuietLogger()), WithMetrics(rec))

	id, err := r.Resolve(context.Background(), "Amorphophallus titanum")
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
	assert.Equal(t, int32(2), repo.lookups.Load())
	assert.Equal(t, int32(1), repo.creates.Load())
	assert.Equal(t, 1, rec.sources[metrics.SourceRetry])
}

func TestResolve_FailedRetrySurfacesStorageError(t *testing.T) {
	t.Parallel()
	repo := &racingRepo{retryOK: false}
	r := NewResolver(repo, WithLogger(testutil.QuietLogger()))

	_, err := r.Resolve(context.Background(), "Amorphophallus titanum")
	require.Error(t, err)
	assert.True(t, errors.IsStorage(err))
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	assert.Equal(t, int32(2), repo.lookups.Load(), "lookup retried exactly once")
}

func TestResolve_ConcurrentUnseenNameYieldsOneRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	repos := repository.New(db)

	// Two resolvers model two processes: no shared cache or singleflight group
	resolvers := []*Resolver{
		NewResolver(repository.NewSpeciesRepository(db), WithLogger(testutil.QuietLogger()), WithCacheTTL(0)),
		NewResolver(repository.NewSpeciesRepository(db), WithLogger(testutil.QuietLogger()), WithCacheTTL(0)),
	}

	const callers = 16
	ids := make([]uint, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			<-start
			ids[i], errs[i] = resolvers[i%2].Resolve(ctx, "Rafflesia arnoldii")
		})
	}
	close(start)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	count, err := repos.Species.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestResolveAll_PreservesOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repos := repository.New(testutil.NewTestDB(t))
	r := NewResolver(repos.Species, WithLogger(testutil.QuietLogger()))

	ids, err := r.ResolveAll(ctx, []string{"B plant", "A plant", "B plant"})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[2])
	assert.NotEqual(t, ids[0], ids[1])

	_, err = r.ResolveAll(ctx, []string{"C plant", ""})
	assert.True(t, errors.IsValidation(err))
}
