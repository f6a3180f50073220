package inference

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/testutil"
	"github.com/tphakala/floranet-go/internal/worker"
)

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) Call(ctx context.Context, req worker.Request) (*worker.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*worker.Response)
	return resp, args.Error(1)
}

func TestClassify_RafflesiaScenario(t *testing.T) {
	t.Parallel()
	caller := &mockCaller{}
	caller.On("Call", mock.Anything, worker.Request{Image: "uploads/a.jpg", TopK: 5}).Return(&worker.Response{
		SpeciesName: "Rafflesia arnoldii",
		Confidence:  0.42,
		TopK: []worker.Candidate{
			{Name: "Rafflesia arnoldii", Confidence: 0.42},
			{Name: "Amorphophallus titanum", Confidence: 0.31},
		},
	}, nil)

	g := NewGateway(caller, 0.6, 5, testutil.QuietLogger())
	c, err := g.Classify(context.Background(), "uploads/a.jpg", 0)
	require.NoError(t, err)

	assert.Equal(t, "Rafflesia arnoldii", c.PrimaryName)
	assert.InDelta(t, 0.42, c.PrimaryConfidence, 1e-12)
	assert.True(t, c.AutoFlagged)
	assert.InDelta(t, 0.6, c.Threshold, 1e-12)
	require.Len(t, c.Candidates, 2)
	assert.Equal(t, Candidate{Name: "Rafflesia arnoldii", Confidence: 0.42, Rank: 1}, c.Candidates[0])
	assert.Equal(t, Candidate{Name: "Amorphophallus titanum", Confidence: 0.31, Rank: 2}, c.Candidates[1])
	caller.AssertExpectations(t)
}

func TestClassify_WorkerUnavailablePassesThrough(t *testing.T) {
	t.Parallel()
	caller := &mockCaller{}
	workerErr := errors.New(worker.ErrWorkerUnavailable).Category(errors.CategoryWorkerUnavailable).Build()
	caller.On("Call", mock.Anything, mock.Anything).Return(nil, workerErr)

	g := NewGateway(caller, 0.6, 5, testutil.QuietLogger())
	_, err := g.Classify(context.Background(), "uploads/a.jpg", 3)
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))
}

func TestClassify_TopKBounds(t *testing.T) {
	t.Parallel()
	caller := &mockCaller{}
	caller.On("Call", mock.Anything, worker.Request{Image: "a.jpg", TopK: conf.MaxTopK}).
		Return(&worker.Response{SpeciesName: "A", Confidence: 0.9}, nil).Once()
	caller.On("Call", mock.Anything, worker.Request{Image: "a.jpg", TopK: 3}).
		Return(&worker.Response{SpeciesName: "A", Confidence: 0.9}, nil).Once()

	g := NewGateway(caller, 0.6, 3, testutil.QuietLogger())
	_, err := g.Classify(context.Background(), "a.jpg", 500)
	require.NoError(t, err)
	_, err = g.Classify(context.Background(), "a.jpg", -1)
	require.NoError(t, err)
	caller.AssertExpectations(t)
}

func TestClassify_EmptyImagePath(t *testing.T) {
	t.Parallel()
	g := NewGateway(&mockCaller{}, 0.6, 5, testutil.QuietLogger())
	_, err := g.Classify(context.Background(), " ", 5)
	assert.True(t, errors.IsValidation(err))
}

func TestNormalize_ClampsEveryConfidence(t *testing.T) {
	t.Parallel()
	resp := &worker.Response{
		SpeciesName: "A",
		Confidence:  math.NaN(),
		TopK: []worker.Candidate{
			{Name: "A", Confidence: 1.7},
			{Name: "B", Confidence: -0.3},
			{Name: "C", Confidence: math.Inf(1)},
			{Name: "D", Confidence: math.NaN()},
			{Name: "E"},
		},
	}

	c, err := Normalize(resp, 10, 0.6)
	require.NoError(t, err)
	require.Len(t, c.Candidates, 5)
	for _, cand := range c.Candidates {
		assert.GreaterOrEqual(t, cand.Confidence, 0.0)
		assert.LessOrEqual(t, cand.Confidence, 1.0)
	}
	assert.Equal(t, "A", c.PrimaryName)
	assert.InDelta(t, 1.0, c.PrimaryConfidence, 0)
	assert.False(t, c.AutoFlagged)
}

func TestNormalize_SortsDropsAndTruncates(t *testing.T) {
	t.Parallel()
	resp := &worker.Response{
		SpeciesName: "B",
		Confidence:  0.5,
		TopK: []worker.Candidate{
			{Name: "A", Confidence: 0.2},
			{Name: "  ", Confidence: 0.99},
			{Name: "B", Confidence: 0.5},
			{Name: "C", Confidence: 0.5},
			{Name: "B", Confidence: 0.1},
			{Name: "D", Confidence: 0.05},
		},
	}

	c, err := Normalize(resp, 3, 0.6)
	require.NoError(t, err)
	require.Len(t, c.Candidates, 3)
	assert.Equal(t, []string{"B", "C", "A"}, []string{c.Candidates[0].Name, c.Candidates[1].Name, c.Candidates[2].Name})
	assert.Equal(t, []int{1, 2, 3}, []int{c.Candidates[0].Rank, c.Candidates[1].Rank, c.Candidates[2].Rank})
}

func TestNormalize_MissingTopKFallsBack(t *testing.T) {
	t.Parallel()
	c, err := Normalize(&worker.Response{SpeciesName: " Nepenthes rajah ", Confidence: 0.7}, 5, 0.6)
	require.NoError(t, err)
	require.Len(t, c.Candidates, 1)
	assert.Equal(t, Candidate{Name: "Nepenthes rajah", Confidence: 0.7, Rank: 1}, c.Candidates[0])
}

func TestNormalize_BlankTopKFallsBack(t *testing.T) {
	t.Parallel()
	resp := &worker.Response{
		SpeciesName: "Nepenthes rajah",
		Confidence:  0.55,
		TopK:        []worker.Candidate{{Name: " ", Confidence: 0.9}, {Name: "", Confidence: 0.8}},
	}
	c, err := Normalize(resp, 5, 0.6)
	require.NoError(t, err)
	require.Len(t, c.Candidates, 1)
	assert.Equal(t, Candidate{Name: "Nepenthes rajah", Confidence: 0.55, Rank: 1}, c.Candidates[0])
	assert.True(t, c.AutoFlagged)
}

func TestNormalize_NoNameIsWorkerUnavailable(t *testing.T) {
	t.Parallel()
	_, err := Normalize(&worker.Response{Confidence: 0.7, TopK: []worker.Candidate{}}, 5, 0.6)
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))

	_, err = Normalize(&worker.Response{Confidence: 0.7, TopK: []worker.Candidate{{Name: " "}}}, 5, 0.6)
	require.Error(t, err)
	assert.True(t, errors.IsWorkerUnavailable(err))
	assert.ErrorIs(t, err, worker.ErrWorkerUnavailable)
}

func TestIsAutoFlagged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		confidence float64
		threshold  float64
		want       bool
	}{
		{"below", 0.59, 0.6, true},
		{"boundary is not flagged", 0.6, 0.6, false},
		{"above", 0.61, 0.6, false},
		{"nan confidence", math.NaN(), 0.6, true},
		{"threshold clamped above one", 0.99, 1.5, true},
		{"threshold clamped below zero", 0, -1, false},
		{"confidence clamped", 3, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAutoFlagged(tt.confidence, tt.threshold))
		})
	}
}

func TestNewGateway_ClampsThreshold(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.0, NewGateway(&mockCaller{}, 7, 5, testutil.QuietLogger()).Threshold(), 0)
	assert.InDelta(t, 0.0, NewGateway(&mockCaller{}, math.NaN(), 5, testutil.QuietLogger()).Threshold(), 0)
}
