package simulate

import (
	"fmt"
	"math"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

const sumTolerance = 1e-6

// checkConsensus compares a served consensus with the quotes that produced
// it. Any weighting is a convex combination, so each outcome must fall
// within the range of the quoted probabilities.
func checkConsensus(m model.MarketType, got Consensus, quoted []model.Probabilities) error {
	if got.ContributingProviders != len(quoted) {
		return fmt.Errorf("%w: %s: %d contributing providers, want %d",
			ErrMismatch, got.EventID, got.ContributingProviders, len(quoted))
	}
	if got.Home == nil || got.Away == nil || got.Tip == nil {
		return fmt.Errorf("%w: %s: empty consensus", ErrMismatch, got.EventID)
	}

	served := model.Probabilities{Home: *got.Home, Away: *got.Away}
	if got.Draw != nil {
		served.Draw = *got.Draw
	}
	if s := served.Sum(m); math.Abs(s-1) > sumTolerance {
		return fmt.Errorf("%w: %s: probabilities sum to %v", ErrMismatch, got.EventID, s)
	}

	best := m.Outcomes()[0]
	for _, o := range m.Outcomes() {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, q := range quoted {
			lo = math.Min(lo, q.Get(o))
			hi = math.Max(hi, q.Get(o))
		}
		if v := served.Get(o); v < lo-sumTolerance || v > hi+sumTolerance {
			return fmt.Errorf("%w: %s: %s=%v outside quoted range [%v, %v]", ErrMismatch, got.EventID, o, v, lo, hi)
		}
		if served.Get(o) > served.Get(best) {
			best = o
		}
	}
	if *got.Tip != best {
		return fmt.Errorf("%w: %s: tip %s, want %s", ErrMismatch, got.EventID, *got.Tip, best)
	}
	return nil
}
