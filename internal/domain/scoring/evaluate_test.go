package scoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func resolved(id model.EventID, kickoff time.Time, actual model.Outcome, snaps ...model.Snapshot) model.ResolvedEvent {
	return model.ResolvedEvent{
		Event:     model.Event{ID: id, LeagueID: "epl", Market: model.MarketTwoWay, Kickoff: kickoff, Status: model.StatusFinished},
		Outcome:   model.MatchOutcome{EventID: id, Actual: actual, FinalizedAt: kickoff.Add(2 * time.Hour)},
		Snapshots: snaps,
	}
}

func twoWay(provider model.ProviderID, home float64, at time.Time) model.Snapshot {
	return model.Snapshot{
		ProviderID:    provider,
		Market:        model.MarketTwoWay,
		CapturedAt:    at,
		Probabilities: model.Probabilities{Home: home, Away: 1 - home},
	}
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	k1 := now.AddDate(0, 0, -10)
	k2 := now.AddDate(0, 0, -5)

	Convey("Given resolved events with snapshots around kickoff", t, func() {
		events := []model.ResolvedEvent{
			resolved("e1", k1, model.OutcomeHome,
				twoWay("a", 0.6, k1.Add(-time.Hour)),
				twoWay("a", 0.8, k1.Add(-10*time.Minute)),
				twoWay("a", 0.1, k1.Add(30*time.Minute)),
			),
			resolved("e2", k2, model.OutcomeAway,
				twoWay("a", 0.8, k2.Add(-time.Minute)),
				twoWay("b", 0.3, k2.Add(-time.Minute)),
			),
			resolved("old", now.AddDate(0, 0, -200), model.OutcomeHome,
				twoWay("a", 0.0, now.AddDate(0, 0, -201)),
			),
		}
		w := scoring.TrailingWindow(now, 90)
		g := scoring.Group{Provider: "a", League: "epl", Market: model.MarketTwoWay}

		rec, ok, err := scoring.Evaluate(ctx, g, events, w, scoring.DefaultConfig(), now)

		Convey("Then only pre-kickoff snapshots inside the window are scored", func() {
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(rec.Samples, ShouldEqual, 2)
		})

		Convey("Then the Brier score is the decayed mean of each event's score", func() {
			// e1 scores 2*(0.2^2)=0.08, e2 scores 2*(0.8^2)=1.28; e2 is five days newer.
			wOld := 1.0
			for i := 0; i < 5; i++ {
				wOld *= 0.9771599684342459 // 2^(-1/30)
			}
			want := (0.08*wOld + 1.28) / (wOld + 1)
			So(rec.Brier, ShouldAlmostEqual, want, 1e-9)
			So(rec.LogLoss, ShouldBeGreaterThan, 0)
		})

		Convey("Then the record carries the group and window", func() {
			So(rec.ProviderID, ShouldEqual, model.ProviderID("a"))
			So(rec.LeagueID, ShouldEqual, model.LeagueID("epl"))
			So(rec.WindowStart, ShouldEqual, w.Start)
			So(rec.WindowEnd, ShouldEqual, now)
			So(rec.ComputedAt, ShouldEqual, now)
		})
	})

	Convey("Given a provider with no pre-kickoff forecast", t, func() {
		events := []model.ResolvedEvent{
			resolved("e1", k1, model.OutcomeHome, twoWay("a", 0.6, k1.Add(time.Minute))),
		}
		g := scoring.Group{Provider: "a", League: "epl", Market: model.MarketTwoWay}
		_, ok, err := scoring.Evaluate(ctx, g, events, scoring.TrailingWindow(now, 90), scoring.DefaultConfig(), now)
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
	})
}

func TestSupersede(t *testing.T) {
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	Convey("Given an existing performance record", t, func() {
		prev := &model.PerformanceRecord{ID: "rec-1", WindowEnd: end}

		Convey("When the new window ends within the grace period", func() {
			next, replace := scoring.Supersede(prev, model.PerformanceRecord{WindowEnd: end.Add(6 * time.Hour)}, 12*time.Hour)
			So(replace, ShouldBeTrue)
			So(next.ID, ShouldEqual, "rec-1")
		})

		Convey("When the new window ends exactly at the grace boundary", func() {
			_, replace := scoring.Supersede(prev, model.PerformanceRecord{WindowEnd: end.Add(12 * time.Hour)}, 12*time.Hour)
			So(replace, ShouldBeTrue)
		})

		Convey("When the new window ends well after", func() {
			next, replace := scoring.Supersede(prev, model.PerformanceRecord{WindowEnd: end.Add(24 * time.Hour)}, 12*time.Hour)
			So(replace, ShouldBeFalse)
			So(next.ID, ShouldNotEqual, "rec-1")
			So(next.ID, ShouldNotBeEmpty)
		})
	})

	Convey("Given no existing record", t, func() {
		next, replace := scoring.Supersede(nil, model.PerformanceRecord{WindowEnd: end}, 12*time.Hour)
		So(replace, ShouldBeFalse)
		So(next.ID, ShouldNotBeEmpty)
	})
}
