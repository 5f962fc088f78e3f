package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

// Integration tests run only when TIPPING_TEST_POSTGRES_DSN points at a
// disposable database.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TIPPING_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TIPPING_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStore(context.Background(), PostgresConfig{DSN: dsn, MaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore_EventLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)

	league := model.LeagueID("it-" + uuid.NewString())
	id := model.EventID(uuid.NewString())
	kickoff := t0.Add(time.Hour)

	if err := s.SaveEvent(ctx, model.Event{
		ID: id, LeagueID: league, Market: model.MarketTwoWay, Kickoff: kickoff, Status: model.StatusScheduled,
	}); err != nil {
		t.Fatalf("save event: %v", err)
	}

	snap := model.Snapshot{
		ID: uuid.NewString(), ProviderID: "p1", EventID: id, Market: model.MarketTwoWay,
		CapturedAt: t0, Probabilities: model.Probabilities{Home: 0.55, Away: 0.45},
		Raw: map[string]float64{"home": 1.72, "away": 2.1},
	}
	for range 2 {
		if err := s.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("save snapshot: %v", err)
		}
	}
	got, err := s.SnapshotsForEvent(ctx, id, time.Time{})
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(got) != 1 || got[0].Probabilities.Home != 0.55 || got[0].Raw["away"] != 2.1 {
		t.Errorf("unexpected snapshots: %+v", got)
	}

	if err := s.SaveOutcome(ctx, model.MatchOutcome{EventID: "missing-" + id, Actual: model.OutcomeHome, FinalizedAt: t0}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown event, got %v", err)
	}
	finalized := kickoff.Add(2 * time.Hour)
	if err := s.SaveOutcome(ctx, model.MatchOutcome{EventID: id, Actual: model.OutcomeHome, FinalizedAt: finalized}); err != nil {
		t.Fatalf("save outcome: %v", err)
	}

	e, err := s.Event(ctx, id)
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if e.Status != model.StatusFinished {
		t.Errorf("expected finished, got %s", e.Status)
	}

	g := Group{League: league, Market: model.MarketTwoWay}
	resolved, err := s.ResolvedEvents(ctx, g, finalized, finalized.Add(time.Minute))
	if err != nil {
		t.Fatalf("resolved: %v", err)
	}
	if len(resolved) != 1 || len(resolved[0].Snapshots) != 1 || resolved[0].Outcome.Actual != model.OutcomeHome {
		t.Errorf("unexpected resolved events: %+v", resolved)
	}
	// The window is half-open.
	resolved, err = s.ResolvedEvents(ctx, g, t0, finalized)
	if err != nil {
		t.Fatalf("resolved: %v", err)
	}
	if len(resolved) != 0 {
		t.Errorf("expected no events before the window end, got %d", len(resolved))
	}
}

func TestPostgresStore_PerformanceAndWeights(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)

	g := Group{League: model.LeagueID("it-" + uuid.NewString()), Market: model.MarketThreeWay}
	rec := model.PerformanceRecord{
		ID: uuid.NewString(), ProviderID: "p1", LeagueID: g.League, Market: g.Market,
		WindowStart: t0.AddDate(0, 0, -90), WindowEnd: t0, Brier: 0.2, LogLoss: 0.6, Samples: 12, ComputedAt: t0,
	}
	if err := s.SavePerformance(ctx, rec, false); err != nil {
		t.Fatalf("insert performance: %v", err)
	}
	rec.Brier = 0.18
	rec.WindowEnd = t0.Add(time.Hour)
	if err := s.SavePerformance(ctx, rec, true); err != nil {
		t.Fatalf("replace performance: %v", err)
	}
	latest, err := s.LatestPerformance(ctx, g, "p1")
	if err != nil {
		t.Fatalf("latest performance: %v", err)
	}
	if latest.ID != rec.ID || latest.Brier != 0.18 {
		t.Errorf("expected the replaced record, got %+v", latest)
	}
	if _, err := s.LatestPerformance(ctx, g, "p2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	first := []model.ProviderWeight{
		{ProviderID: "p1", Weight: 0.5, UpdatedAt: t0},
		{ProviderID: "p2", Weight: 0.5, UpdatedAt: t0},
	}
	if err := s.ReplaceWeights(ctx, g, first); err != nil {
		t.Fatalf("replace weights: %v", err)
	}
	if err := s.ReplaceWeights(ctx, g, []model.ProviderWeight{{ProviderID: "p3", Weight: 1, UpdatedAt: t0}}); err != nil {
		t.Fatalf("replace weights: %v", err)
	}
	rows, err := s.Weights(ctx, g)
	if err != nil {
		t.Fatalf("weights: %v", err)
	}
	if len(rows) != 1 || rows[0].ProviderID != "p3" {
		t.Errorf("expected only p3 after replacement, got %+v", rows)
	}
}
