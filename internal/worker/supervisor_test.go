package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/testutil"
)

func newTestSupervisor(t *testing.T, mutate func(*Config), extraEnv ...string) *Supervisor {
	t.Helper()
	command, args, env := testutil.FakeClassifierCommand(extraEnv...)
	cfg := Config{
		Command:     command,
		Args:        args,
		Env:         env,
		Timeout:     testutil.DefaultTestTimeout,
		StopTimeout: testutil.ShortTestTimeout,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg, WithLogger(testutil.QuietLogger()))
	t.Cleanup(s.Stop)
	return s
}

func call(t *testing.T, s *Supervisor, image string) (*Response, error) {
	t.Helper()
	return s.Call(context.Background(), Request{Image: image, TopK: 5})
}

func TestSupervisor_LazyStartAndCall(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)
	assert.Equal(t, StateNotStarted, s.State())

	resp, err := call(t, s, "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, "Rafflesia arnoldii", resp.SpeciesName)
	assert.InDelta(t, 0.42, resp.Confidence, 1e-9)
	require.Len(t, resp.TopK, 2)
	assert.Equal(t, "Amorphophallus titanum", resp.TopK[1].Name)

	_, err = call(t, s, "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Starts(), "process reused across calls")
}

func TestSupervisor_WarmUp(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)

	require.NoError(t, s.Start())
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, 1, s.Starts())
}

func TestSupervisor_CrashFailsInFlightAndRestartsLazily(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)

	_, err := call(t, s, "crash")
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))
	assert.ErrorIs(t, err, ErrWorkerUnavailable)

	var enhanced *errors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.Contains(t, enhanced.GetContext()["stderr"], "segmentation fault")

	assert.Equal(t, StateCrashed, s.State(), "handle cleared before the call returns")

	resp, err := call(t, s, "echo:Nepenthes rajah")
	require.NoError(t, err)
	assert.Equal(t, "Nepenthes rajah", resp.SpeciesName)
	assert.Equal(t, 2, s.Starts())
}

func TestSupervisor_SpawnFailure(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, func(c *Config) {
		c.Command = "/nonexistent/floranet-classifier"
	})

	_, err := call(t, s, "photo.jpg")
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))
	assert.Equal(t, StateCrashed, s.State())
}

func TestSupervisor_ExitOnStart(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil, testutil.FakeClassifierEnv+"_EXIT_ON_START=1")

	_, err := call(t, s, "photo.jpg")
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))
}

func TestSupervisor_TimeoutKillsWorker(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, func(c *Config) {
		c.Timeout = 200 * time.Millisecond
	})

	start := time.Now()
	_, err := call(t, s, "hang")
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), testutil.DefaultTestTimeout)

	resp, err := call(t, s, "echo:after timeout")
	require.NoError(t, err)
	assert.Equal(t, "after timeout", resp.SpeciesName)
	assert.Equal(t, 2, s.Starts())
}

func TestSupervisor_MalformedResponseRestarts(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)

	_, err := call(t, s, "garbage")
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))

	_, err = call(t, s, "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Starts())
}

func TestSupervisor_NextCallAfterKillRespawns(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, func(c *Config) {
		c.Timeout = 200 * time.Millisecond
	})

	// Each failure kills the process; the very next call must get a new one
	for i, image := range []string{"garbage", "hang", "garbage", "garbage"} {
		_, err := call(t, s, image)
		require.Error(t, err)
		assert.True(t, errors.IsWorkerUnavailable(err))
		assert.Equal(t, StateCrashed, s.State())

		resp, err := call(t, s, "echo:Nepenthes rajah")
		require.NoError(t, err, "call %d after %s", i, image)
		assert.Equal(t, "Nepenthes rajah", resp.SpeciesName)
	}
	assert.Equal(t, 5, s.Starts())
}

func TestSupervisor_CancelledCallRespawnsNext(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.Call(ctx, Request{Image: "hang", TopK: 5})
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))

	resp, err := call(t, s, "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Rafflesia arnoldii", resp.SpeciesName)
	assert.Equal(t, 2, s.Starts())
}

func TestSupervisor_ChatterIsSkipped(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)

	resp, err := call(t, s, "chatter")
	require.NoError(t, err)
	assert.Equal(t, "Rafflesia arnoldii", resp.SpeciesName)
}

func TestSupervisor_NonFiniteConfidencesDecode(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)

	resp, err := call(t, s, "nonfinite")
	require.NoError(t, err)
	assert.Zero(t, resp.Confidence)
	require.Len(t, resp.TopK, 2)
	assert.Equal(t, "Nepenthes NaN", resp.TopK[1].Name)
	assert.Zero(t, resp.TopK[0].Confidence)
}

func TestSupervisor_ClassifierErrorKeepsProcess(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)

	_, err := call(t, s, "error")
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))
	assert.Contains(t, err.Error(), "cannot identify image file")

	_, err = call(t, s, "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Starts())
}

func TestSupervisor_ConcurrentCallersAreSerialized(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)

	const callers = 12
	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			name := fmt.Sprintf("species-%d", i)
			resp, err := call(t, s, "echo:"+name)
			if assert.NoError(t, err) {
				assert.Equal(t, name, resp.SpeciesName, "response attributed to the wrong caller")
			}
		})
	}
	wg.Wait()
	assert.Equal(t, 1, s.Starts())
}

func TestSupervisor_QueuedCallerHonoursContext(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)
	require.NoError(t, s.Start())

	first := make(chan error, 1)
	go func() {
		_, err := call(t, s, "slow:400")
		first <- err
	}()

	// Let the slow request take the token
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Call(ctx, Request{Image: "photo.jpg"})
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case err := <-first:
		require.NoError(t, err)
	case <-time.After(testutil.DefaultTestTimeout):
		t.Fatal("slow request did not complete")
	}
	assert.Equal(t, 1, s.Starts(), "queued cancellation must not touch the process")
}

func TestSupervisor_StopRefusesCalls(t *testing.T) {
	t.Parallel()
	s := newTestSupervisor(t, nil)
	require.NoError(t, s.Start())

	s.Stop()
	assert.Equal(t, StateStopped, s.State())

	_, err := call(t, s, "photo.jpg")
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))
	assert.ErrorIs(t, err, ErrStopped)

	s.Stop()
}
