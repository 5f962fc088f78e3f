package simulate

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/stream"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/odds"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
)

// Bounds of the generated home probabilities.
const (
	truthMin = 0.15
	truthMax = 0.85
	probMin  = 0.02
	drawMax  = 0.30

	firstKickoff   = 3 * time.Hour
	kickoffSpacing = 15 * time.Minute
	captureLag     = 30 * time.Second
)

// Batch is one simulation's generated payloads.
type Batch struct {
	Fixtures  []Fixture                `json:"fixtures"`
	Snapshots []stream.SnapshotMessage `json:"snapshots"`
	// Quoted holds the margin-free probabilities each provider was given,
	// keyed by event.
	Quoted map[model.EventID][]model.Probabilities `json:"-"`
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}

// Generate creates cfg.Events fixtures with cfg.Providers decimal-odds
// snapshots each, captured just before now.
func Generate(ctx context.Context, cfg *Config, now time.Time) (*Batch, error) {
	if !cfg.Market.Valid() {
		return nil, fmt.Errorf("%w: market %q", ErrInvalidConfig, cfg.Market)
	}
	if cfg.Events <= 0 || cfg.Providers <= 0 {
		return nil, fmt.Errorf("%w: events and providers must be positive", ErrInvalidConfig)
	}
	logger.Get().Info(ctx, "generating fixtures",
		logger.Int("events", cfg.Events),
		logger.Int("providers", cfg.Providers),
		logger.String("market", string(cfg.Market)))

	rng := newRand(cfg.Seed)
	b := &Batch{
		Fixtures:  make([]Fixture, 0, cfg.Events),
		Snapshots: make([]stream.SnapshotMessage, 0, cfg.Events*cfg.Providers),
		Quoted:    make(map[model.EventID][]model.Probabilities, cfg.Events),
	}

	for i := range cfg.Events {
		f := Fixture{
			EventID:  model.EventID("sim-" + uuid.NewString()),
			LeagueID: cfg.League,
			Market:   cfg.Market,
			Kickoff:  now.Add(firstKickoff + time.Duration(i)*kickoffSpacing).UTC(),
			Truth:    truthMin + rng.Float64()*(truthMax-truthMin),
		}
		b.Fixtures = append(b.Fixtures, f)

		for p := range cfg.Providers {
			probs := quote(rng, cfg, f.Truth)
			b.Quoted[f.EventID] = append(b.Quoted[f.EventID], probs)
			b.Snapshots = append(b.Snapshots, stream.SnapshotMessage{
				ProviderID: fmt.Sprintf("provider-%02d", p+1),
				EventID:    string(f.EventID),
				Market:     string(cfg.Market),
				CapturedAt: now.Add(-captureLag).UTC(),
				Odds:       decimalOdds(cfg.Market, probs, cfg.Margin),
				OddsFormat: string(odds.FormatDecimal),
			})
		}
	}
	return b, nil
}

// quote perturbs truth by up to cfg.Noise and returns a normalized distribution.
func quote(rng *rand.Rand, cfg *Config, truth float64) model.Probabilities {
	home := clampProb(truth + (rng.Float64()*2-1)*cfg.Noise)
	if cfg.Market != model.MarketThreeWay {
		return model.Probabilities{Home: home, Away: 1 - home}
	}
	draw := rng.Float64() * drawMax * math.Min(home, 1-home) * 2
	rest := 1 - draw
	return model.Probabilities{Home: home * rest, Draw: draw, Away: (1 - home) * rest}
}

// decimalOdds prices each outcome with a proportional overround.
func decimalOdds(m model.MarketType, p model.Probabilities, margin float64) map[model.Outcome]float64 {
	out := make(map[model.Outcome]float64, len(m.Outcomes()))
	for _, o := range m.Outcomes() {
		out[o] = 1 / (p.Get(o) * (1 + margin))
	}
	return out
}

func clampProb(p float64) float64 {
	return math.Max(probMin, math.Min(1-probMin, p))
}
