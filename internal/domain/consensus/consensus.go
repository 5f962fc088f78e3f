// Package consensus combines provider snapshots into a single weighted
// probability distribution per event.
package consensus

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/snapshot"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
)

// DefaultFreshnessWindow is the maximum snapshot age considered for consensus.
const DefaultFreshnessWindow = 30 * time.Minute

// Config holds the tunables of the consensus computation.
type Config struct {
	FreshnessWindow time.Duration
}

// DefaultConfig returns the default consensus configuration.
func DefaultConfig() Config {
	return Config{FreshnessWindow: DefaultFreshnessWindow}
}

// Weights maps providers to their weight in a (league, market) group.
// Providers absent from the map carry weight 0.
type Weights map[model.ProviderID]float64

// Aggregation is the outcome of Aggregate.
type Aggregation struct {
	Probabilities model.Probabilities
	Tip           model.Outcome
	Confidence    float64
	Providers     int
}

// Aggregate computes the weighted mean of the snapshots' distributions.
// Snapshots are expected to hold at most one entry per provider. When the
// total weight is zero every snapshot is weighted equally. Negative and
// non-finite weights count as absent. The result is renormalized to sum to 1.
func Aggregate(snaps []model.Snapshot, weights Weights, m model.MarketType) (Aggregation, error) {
	if len(snaps) == 0 {
		return Aggregation{}, ErrEmptySnapshotSet
	}
	outcomes := m.Outcomes()
	if outcomes == nil {
		return Aggregation{}, fmt.Errorf("unknown market type %q", m)
	}

	w := make([]float64, len(snaps))
	var total float64
	for i, s := range snaps {
		if v := weights[s.ProviderID]; v > 0 && !math.IsInf(v, 1) {
			w[i] = v
			total += v
		}
	}
	if total == 0 {
		for i := range w {
			w[i] = 1
		}
		total = float64(len(snaps))
	}

	var agg model.Probabilities
	for _, o := range outcomes {
		var sum float64
		for i, s := range snaps {
			sum += s.Probabilities.Get(o) * w[i]
		}
		agg.Set(o, sum/total)
	}

	if s := agg.Sum(m); s > 0 {
		for _, o := range outcomes {
			agg.Set(o, agg.Get(o)/s)
		}
	}

	tip, conf := Tip(agg, m)
	return Aggregation{
		Probabilities: agg,
		Tip:           tip,
		Confidence:    conf,
		Providers:     len(snaps),
	}, nil
}

// Tip returns the most probable outcome and its probability. Ties resolve to
// the first outcome in home, draw, away order.
func Tip(p model.Probabilities, m model.MarketType) (model.Outcome, float64) {
	var (
		best model.Outcome
		conf = -1.0
	)
	for _, o := range m.Outcomes() {
		if v := p.Get(o); v > conf {
			best, conf = o, v
		}
	}
	if best == "" {
		return "", 0
	}
	return best, conf
}

// Compute builds the consensus of an event as of reference: stale snapshots
// are dropped, the latest snapshot per provider is kept, and the rest are
// aggregated. With nothing fresh to aggregate it returns the empty result.
func Compute(ctx context.Context, eventID model.EventID, m model.MarketType, snaps []model.Snapshot,
	weights Weights, reference time.Time, cfg Config,
) model.ConsensusResult {
	window := cfg.FreshnessWindow
	if window <= 0 {
		window = DefaultFreshnessWindow
	}

	var scoped []model.Snapshot
	for _, s := range snaps {
		if s.Market == m {
			scoped = append(scoped, s)
		}
	}
	latest := snapshot.LatestPerProvider(snapshot.FilterFresh(scoped, reference, window))

	agg, err := Aggregate(latest, weights, m)
	if err != nil {
		logger.Get().Debug(ctx, "no consensus available",
			logger.String("event_id", string(eventID)),
			logger.Int("snapshots", len(snaps)),
			logger.Error(err),
		)
		return model.NoConsensus(eventID, m)
	}

	var updated time.Time
	for _, s := range latest {
		if s.CapturedAt.After(updated) {
			updated = s.CapturedAt
		}
	}

	probs := agg.Probabilities
	return model.ConsensusResult{
		EventID:               eventID,
		Market:                m,
		Probabilities:         &probs,
		Tip:                   agg.Tip,
		Confidence:            agg.Confidence,
		ContributingProviders: agg.Providers,
		LastUpdated:           updated,
	}
}
