package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/snapshot"
)

// Defaults for provider evaluation.
const (
	DefaultWindowDays   = 90
	DefaultHalflifeDays = 30.0
	DefaultGrace        = 12 * time.Hour
)

// Config controls provider evaluation.
type Config struct {
	WindowDays   int
	HalflifeDays float64
	// Grace is how close a new window end may be to an existing record's
	// before the record is replaced rather than appended.
	Grace time.Duration
}

// DefaultConfig returns the default evaluation configuration.
func DefaultConfig() Config {
	return Config{
		WindowDays:   DefaultWindowDays,
		HalflifeDays: DefaultHalflifeDays,
		Grace:        DefaultGrace,
	}
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// TrailingWindow returns the window of the given number of days ending at now.
func TrailingWindow(now time.Time, days int) Window {
	return Window{Start: now.AddDate(0, 0, -days), End: now}
}

// Group identifies the (provider, league, market) being evaluated.
type Group struct {
	Provider model.ProviderID
	League   model.LeagueID
	Market   model.MarketType
}

// Evaluate scores a provider's latest pre-kickoff forecast on every event
// finalized inside the window and returns the time-decayed averages.
// The boolean is false when the provider made no scorable forecast.
func Evaluate(ctx context.Context, g Group, resolved []model.ResolvedEvent, w Window, cfg Config, now time.Time) (model.PerformanceRecord, bool, error) {
	var (
		briers []float64
		losses []float64
		times  []time.Time
	)
	for _, r := range resolved {
		if r.Event.LeagueID != g.League || !w.Contains(r.Outcome.FinalizedAt) {
			continue
		}
		s, ok := snapshot.LatestBefore(r.Snapshots, g.Provider, g.Market, r.Event.Kickoff)
		if !ok {
			continue
		}
		b, err := BrierMultiClass(ctx, s.Probabilities, g.Market, r.Outcome.Actual)
		if err != nil {
			return model.PerformanceRecord{}, false, fmt.Errorf("score event %s: %w", r.Event.ID, err)
		}
		l, err := LogLossMultiClass(s.Probabilities, g.Market, r.Outcome.Actual)
		if err != nil {
			return model.PerformanceRecord{}, false, fmt.Errorf("score event %s: %w", r.Event.ID, err)
		}
		briers = append(briers, b)
		losses = append(losses, l)
		times = append(times, r.Outcome.FinalizedAt)
	}
	if len(briers) == 0 {
		return model.PerformanceRecord{}, false, nil
	}

	halflife := cfg.HalflifeDays
	if halflife <= 0 {
		halflife = DefaultHalflifeDays
	}
	brier, err := TimeWeightedAverage(briers, times, halflife)
	if err != nil {
		return model.PerformanceRecord{}, false, err
	}
	logLoss, err := TimeWeightedAverage(losses, times, halflife)
	if err != nil {
		return model.PerformanceRecord{}, false, err
	}

	return model.PerformanceRecord{
		ProviderID:  g.Provider,
		LeagueID:    g.League,
		Market:      g.Market,
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Brier:       brier,
		LogLoss:     logLoss,
		Samples:     len(briers),
		ComputedAt:  now,
	}, true, nil
}

// Supersede decides how next is stored given the latest existing record of
// the same group. When previous ends within grace of next, next replaces it
// and inherits its ID (replace is true); otherwise next gets a fresh ID.
func Supersede(previous *model.PerformanceRecord, next model.PerformanceRecord, grace time.Duration) (model.PerformanceRecord, bool) {
	if previous != nil && !previous.WindowEnd.Before(next.WindowEnd.Add(-grace)) {
		next.ID = previous.ID
		return next, true
	}
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	return next, false
}
