// Package inference turns raw classifier replies into normalized, ranked
// classifications with an auto-flag verdict.
package inference

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/worker"
)

// Caller performs one classifier round trip.
type Caller interface {
	Call(ctx context.Context, req worker.Request) (*worker.Response, error)
}

// Candidate is one normalized, ranked classifier guess.
type Candidate struct {
	Name       string
	Confidence float64
	Rank       int
}

// Classification is the normalized result of one classify call.
type Classification struct {
	PrimaryName       string
	PrimaryConfidence float64
	Candidates        []Candidate // rank ascending, ranks 1..k
	AutoFlagged       bool
	Threshold         float64
}

// Gateway issues classification requests and normalizes the replies.
type Gateway struct {
	caller      Caller
	threshold   float64
	defaultTopK int
	log         logger.Logger
}

// NewGateway creates a Gateway. threshold is clamped to [0,1]; a
// non-positive defaultTopK falls back to conf.DefaultTopK.
func NewGateway(caller Caller, threshold float64, defaultTopK int, log logger.Logger) *Gateway {
	if defaultTopK <= 0 {
		defaultTopK = conf.DefaultTopK
	}
	if log == nil {
		log = logger.Global().Module("inference")
	}
	return &Gateway{
		caller:      caller,
		threshold:   conf.ClampUnit(threshold),
		defaultTopK: min(defaultTopK, conf.MaxTopK),
		log:         log,
	}
}

// Threshold returns the effective auto-flag threshold.
func (g *Gateway) Threshold() float64 {
	return g.threshold
}

// Classify asks the classifier about imagePath. topK <= 0 uses the default;
// values above conf.MaxTopK are capped. Worker failures are returned as is.
func (g *Gateway) Classify(ctx context.Context, imagePath string, topK int) (*Classification, error) {
	if strings.TrimSpace(imagePath) == "" {
		return nil, errors.New(errors.NewStd("image path must not be empty")).
			Component("inference").
			Category(errors.CategoryValidation).
			Build()
	}
	k := g.effectiveTopK(topK)

	resp, err := g.caller.Call(ctx, worker.Request{Image: imagePath, TopK: k})
	if err != nil {
		return nil, err
	}

	c, err := Normalize(resp, k, g.threshold)
	if err != nil {
		g.log.Warn("classifier returned no usable prediction",
			logger.String("image", imagePath))
		return nil, err
	}

	g.log.Debug("classified image",
		logger.String("image", imagePath),
		logger.String("species", c.PrimaryName),
		logger.Float64("confidence", c.PrimaryConfidence),
		logger.Int("candidates", len(c.Candidates)),
		logger.Bool("auto_flagged", c.AutoFlagged))
	return c, nil
}

func (g *Gateway) effectiveTopK(topK int) int {
	if topK <= 0 {
		return g.defaultTopK
	}
	return min(topK, conf.MaxTopK)
}

// Normalize clamps confidences, drops unnamed and duplicate candidates, sorts
// by descending confidence, truncates to topK and assigns ranks. A reply
// whose topk list is missing or has no named entry becomes a single
// candidate from species_name.
// The primary prediction is the rank-1 candidate, so the stored rank-1
// result and the auto-flag verdict always agree.
func Normalize(resp *worker.Response, topK int, threshold float64) (*Classification, error) {
	candidates := named(resp.TopK)
	if len(candidates) == 0 {
		candidates = named([]worker.Candidate{{Name: resp.SpeciesName, Confidence: resp.Confidence}})
	}

	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return 0
		}
	})

	seen := make(map[string]struct{}, len(candidates))
	ranked := candidates[:0]
	for _, c := range candidates {
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		ranked = append(ranked, c)
	}
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	if len(ranked) == 0 {
		return nil, errors.New(fmt.Errorf("%w: reply has no species name", worker.ErrWorkerUnavailable)).
			Component("inference").
			Category(errors.CategoryWorkerUnavailable).
			Build()
	}

	threshold = conf.ClampUnit(threshold)
	primary := ranked[0]
	return &Classification{
		PrimaryName:       primary.Name,
		PrimaryConfidence: primary.Confidence,
		Candidates:        ranked,
		AutoFlagged:       IsAutoFlagged(primary.Confidence, threshold),
		Threshold:         threshold,
	}, nil
}

// named converts raw candidates, dropping blank names and clamping confidences.
func named(raw []worker.Candidate) []Candidate {
	out := make([]Candidate, 0, len(raw))
	for _, rc := range raw {
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			continue
		}
		out = append(out, Candidate{Name: name, Confidence: conf.ClampUnit(rc.Confidence)})
	}
	return out
}

// IsAutoFlagged reports whether confidence falls strictly below threshold.
// Both values are clamped to [0,1] first.
func IsAutoFlagged(confidence, threshold float64) bool {
	return conf.ClampUnit(confidence) < conf.ClampUnit(threshold)
}
