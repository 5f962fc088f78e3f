// Package weighting turns provider performance into normalized aggregation
// weights. Lower scores are better, so better providers get more weight.
package weighting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
)

// Method selects how scores are mapped to weights.
type Method string

const (
	MethodSoftmax Method = "softmax"
	MethodInverse Method = "inverse"
)

// Metric selects which performance score drives the weights.
type Metric string

const (
	MetricBrier   Metric = "brier"
	MetricLogLoss Metric = "log_loss"
)

const (
	inverseEpsilon = 1e-8
	// maxBisectionSteps bounds the scale search in fitBand. The search stops
	// earlier once the interval can no longer be split.
	maxBisectionSteps = 2048
)

// Constraints bound the weights of providers with little history.
type Constraints struct {
	MinSamples int
	Floor      float64
	Ceiling    float64
}

// DefaultConstraints returns the default weight constraints.
func DefaultConstraints() Constraints {
	return Constraints{MinSamples: 10, Floor: 0.05, Ceiling: 0.50}
}

// Config bundles everything DeriveWeights needs.
type Config struct {
	Method      Method
	Metric      Metric
	Temperature float64
	Constraints Constraints
}

// DefaultConfig returns softmax over Brier scores at temperature 1.
func DefaultConfig() Config {
	return Config{
		Method:      MethodSoftmax,
		Metric:      MetricBrier,
		Temperature: 1.0,
		Constraints: DefaultConstraints(),
	}
}

// Weights maps providers to weights.
type Weights map[model.ProviderID]float64

// Softmax assigns weight proportional to exp(-score/temperature).
func Softmax(scores map[model.ProviderID]float64, temperature float64) (Weights, error) {
	if temperature <= 0 || math.IsNaN(temperature) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemperature, temperature)
	}
	out := make(Weights, len(scores))
	if len(scores) == 0 {
		return out, nil
	}

	// Shift by the largest exponent for numerical stability.
	maxExp := math.Inf(-1)
	for _, s := range scores {
		maxExp = math.Max(maxExp, -s/temperature)
	}
	var total float64
	for id, s := range scores {
		v := math.Exp(-s/temperature - maxExp)
		out[id] = v
		total += v
	}
	for id := range out {
		out[id] /= total
	}
	return out, nil
}

// InverseScore assigns weight proportional to 1/(score+epsilon).
func InverseScore(scores map[model.ProviderID]float64) Weights {
	out := make(Weights, len(scores))
	var total float64
	for id, s := range scores {
		v := 1 / (s + inverseEpsilon)
		out[id] = v
		total += v
	}
	for id := range out {
		out[id] /= total
	}
	return out
}

// EqualWeights gives every provider 1/N.
func EqualWeights(providers []model.ProviderID) Weights {
	out := make(Weights, len(providers))
	if len(providers) == 0 {
		return out
	}
	w := 1 / float64(len(providers))
	for _, id := range providers {
		out[id] = w
	}
	return out
}

// ApplyConstraints scales down providers with fewer than MinSamples samples,
// then bounds every weight to [Floor, Ceiling] while keeping the total at 1.
// Providers missing from samples are treated as having zero samples.
// When the band cannot hold N weights summing to 1 the weights are clamped
// and renormalized, which may leave some outside the band.
func ApplyConstraints(ctx context.Context, weights Weights, samples map[model.ProviderID]int, c Constraints) Weights {
	out := make(Weights, len(weights))
	if len(weights) == 0 {
		return out
	}

	for id, w := range weights {
		if c.MinSamples > 0 {
			if n := samples[id]; n < c.MinSamples {
				w *= float64(n) / float64(c.MinSamples)
			}
		}
		out[id] = w
	}

	n := float64(len(out))
	if n*c.Floor > 1+1e-12 || n*c.Ceiling < 1-1e-12 || c.Floor > c.Ceiling {
		logger.Get().Warn(ctx, "weight band infeasible, clamping",
			logger.Int("providers", len(out)),
			logger.Float64("floor", c.Floor),
			logger.Float64("ceiling", c.Ceiling),
		)
		for id, w := range out {
			out[id] = math.Max(c.Floor, math.Min(c.Ceiling, w))
		}
		normalize(out)
		return out
	}

	fitBand(out, c.Floor, c.Ceiling)
	return out
}

// fitBand scales w by the single factor lambda for which the clamped weights
// sum to one: sum(clamp(lambda*w[i], floor, ceiling)) == 1. That sum grows
// with lambda, so the factor is found by bisection. Zero weights cannot be
// raised by scaling; when every positive weight is at the ceiling and the
// total is still short, the zero weights share the remainder equally.
// The band must be feasible: n*floor <= 1 <= n*ceiling.
func fitBand(w Weights, floor, ceiling float64) {
	clamp := func(v float64) float64 { return math.Max(floor, math.Min(ceiling, v)) }
	total := func(lambda float64) float64 {
		var s float64
		for _, v := range w {
			s += clamp(lambda * v)
		}
		return s
	}

	minPositive := math.Inf(1)
	var zeros int
	for _, v := range w {
		if v > 0 {
			minPositive = math.Min(minPositive, v)
		} else {
			zeros++
		}
	}

	if zeros > 0 {
		positive := len(w) - zeros
		if short := 1 - float64(positive)*ceiling; short > float64(zeros)*floor {
			share := short / float64(zeros)
			for id, v := range w {
				if v > 0 {
					w[id] = ceiling
				} else {
					w[id] = share
				}
			}
			return
		}
	}
	if math.IsInf(minPositive, 1) {
		// All weights are zero and the floor alone fills the band.
		for id := range w {
			w[id] = floor
		}
		return
	}

	// At hi every positive weight is at the ceiling.
	lo, hi := 0.0, ceiling/minPositive
	for range maxBisectionSteps {
		mid := lo + (hi-lo)/2
		if mid <= lo || mid >= hi {
			break
		}
		if total(mid) < 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	for id, v := range w {
		w[id] = clamp(hi * v)
	}
}

func normalize(w Weights) {
	var total float64
	for _, v := range w {
		total += v
	}
	if total <= 0 {
		for id := range w {
			w[id] = 1 / float64(len(w))
		}
		return
	}
	for id := range w {
		w[id] /= total
	}
}

// DeriveWeights converts the performance records of one (league, market)
// group into constrained weights.
func DeriveWeights(ctx context.Context, perfs []model.PerformanceRecord, cfg Config) (Weights, error) {
	if len(perfs) == 0 {
		return Weights{}, nil
	}
	league, market := perfs[0].LeagueID, perfs[0].Market

	scores := make(map[model.ProviderID]float64, len(perfs))
	samples := make(map[model.ProviderID]int, len(perfs))
	for _, p := range perfs {
		if p.LeagueID != league || p.Market != market {
			return nil, fmt.Errorf("%w: %s/%s and %s/%s", ErrMixedGroups, league, market, p.LeagueID, p.Market)
		}
		switch cfg.Metric {
		case MetricBrier, "":
			scores[p.ProviderID] = p.Brier
		case MetricLogLoss:
			scores[p.ProviderID] = p.LogLoss
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, cfg.Metric)
		}
		samples[p.ProviderID] = p.Samples
	}

	var (
		raw Weights
		err error
	)
	switch cfg.Method {
	case MethodSoftmax:
		raw, err = Softmax(scores, cfg.Temperature)
		if err != nil {
			return nil, err
		}
	case MethodInverse:
		raw = InverseScore(scores)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, cfg.Method)
	}
	return ApplyConstraints(ctx, raw, samples, cfg.Constraints), nil
}

// Records converts weights into persistable rows ordered by provider.
func Records(league model.LeagueID, m model.MarketType, w Weights, now time.Time) []model.ProviderWeight {
	out := make([]model.ProviderWeight, 0, len(w))
	for id, v := range w {
		out = append(out, model.ProviderWeight{
			ProviderID: id,
			LeagueID:   league,
			Market:     m,
			Weight:     v,
			UpdatedAt:  now,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// FromRecords indexes persisted weights by provider.
func FromRecords(rows []model.ProviderWeight) Weights {
	out := make(Weights, len(rows))
	for _, r := range rows {
		out[r.ProviderID] = r.Weight
	}
	return out
}
