// Package scoring measures forecast accuracy with proper scoring rules and
// summarizes a provider's record over a time window.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
)

const (
	// logLossEpsilon bounds probabilities away from 0 and 1 before taking logs.
	logLossEpsilon = 1e-15
	// sumWarnTolerance is how far a distribution may drift from 1 before a warning.
	sumWarnTolerance = 0.01
	secondsPerDay    = 86400.0
)

// Brier returns (p - actual)^2 for a binary outcome.
func Brier(p float64, actual int) (float64, error) {
	if err := checkBinary(p, actual); err != nil {
		return 0, err
	}
	d := p - float64(actual)
	return d * d, nil
}

// BrierMultiClass sums the squared error over every outcome of the market.
// A distribution that does not sum to 1 is still scored, with a warning.
func BrierMultiClass(ctx context.Context, p model.Probabilities, m model.MarketType, actual model.Outcome) (float64, error) {
	if !m.Has(actual) {
		return 0, fmt.Errorf("%w: %q not in %s", ErrUnknownOutcome, actual, m)
	}
	if s := p.Sum(m); math.Abs(s-1) > sumWarnTolerance {
		logger.Get().Warn(ctx, "probabilities do not sum to one",
			logger.String("market", string(m)),
			logger.Float64("sum", s),
		)
	}

	var score float64
	for _, o := range m.Outcomes() {
		var hit float64
		if o == actual {
			hit = 1
		}
		d := p.Get(o) - hit
		score += d * d
	}
	return score, nil
}

// LogLoss returns -[a ln p + (1-a) ln(1-p)] with p clamped away from 0 and 1.
func LogLoss(p float64, actual int) (float64, error) {
	if err := checkBinary(p, actual); err != nil {
		return 0, err
	}
	p = clamp(p)
	if actual == 1 {
		return -math.Log(p), nil
	}
	return -math.Log(1 - p), nil
}

// LogLossMultiClass returns -ln of the clamped probability given to the
// actual outcome.
func LogLossMultiClass(p model.Probabilities, m model.MarketType, actual model.Outcome) (float64, error) {
	if !m.Has(actual) {
		return 0, fmt.Errorf("%w: %q not in %s", ErrUnknownOutcome, actual, m)
	}
	return -math.Log(clamp(p.Get(actual))), nil
}

// TimeWeightedAverage averages scores with exponential decay by age relative
// to the newest timestamp. A score halflifeDays older than the newest carries
// half its weight.
func TimeWeightedAverage(scores []float64, timestamps []time.Time, halflifeDays float64) (float64, error) {
	if len(scores) != len(timestamps) {
		return 0, fmt.Errorf("%w: %d scores, %d timestamps", ErrLengthMismatch, len(scores), len(timestamps))
	}
	if len(scores) == 0 {
		return 0, ErrEmptyInput
	}
	if halflifeDays <= 0 {
		return 0, fmt.Errorf("%w: halflife %v", ErrOutOfRange, halflifeDays)
	}

	newest := timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts.After(newest) {
			newest = ts
		}
	}

	lambda := math.Ln2 / (halflifeDays * secondsPerDay)
	var sum, total float64
	for i, s := range scores {
		age := newest.Sub(timestamps[i]).Seconds()
		w := math.Exp(-lambda * age)
		sum += s * w
		total += w
	}
	return sum / total, nil
}

func checkBinary(p float64, actual int) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: probability %v", ErrOutOfRange, p)
	}
	if actual != 0 && actual != 1 {
		return fmt.Errorf("%w: actual %d", ErrOutOfRange, actual)
	}
	return nil
}

func clamp(p float64) float64 {
	return math.Max(logLossEpsilon, math.Min(1-logLossEpsilon, p))
}
