package simulate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/http/api"
	service "github.com/robsheahan/tipping-aggregator-web/internal/app"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/odds"
	. "github.com/smartystreets/goconvey/convey"
)

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:   baseURL,
		Events:    5,
		Providers: 3,
		League:    "afl",
		Market:    model.MarketTwoWay,
		Margin:    0.05,
		Noise:     0.05,
		Seed:      42,
		Workers:   4,
		Timeout:   5 * time.Second,
		Settle:    300 * time.Millisecond,
	}
}

func ptr[T any](v T) *T { return &v }

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a two-way configuration", t, func() {
		cfg := testConfig("")

		Convey("When a batch is generated", func() {
			b, err := Generate(ctx, cfg, now)
			So(err, ShouldBeNil)

			Convey("Then every fixture is quoted by every provider", func() {
				So(len(b.Fixtures), ShouldEqual, 5)
				So(len(b.Snapshots), ShouldEqual, 15)
				for _, f := range b.Fixtures {
					So(len(b.Quoted[f.EventID]), ShouldEqual, 3)
					So(f.Kickoff.After(now), ShouldBeTrue)
				}
			})

			Convey("Then the odds convert back to the quoted probabilities", func() {
				s := b.Snapshots[0]
				p, err := odds.Convert(odds.FormatDecimal, model.MarketTwoWay, s.Odds)
				So(err, ShouldBeNil)
				q := b.Quoted[model.EventID(s.EventID)][0]
				So(p.Home, ShouldAlmostEqual, q.Home, 1e-9)
				So(p.Away, ShouldAlmostEqual, q.Away, 1e-9)
			})

			Convey("Then the odds carry the configured margin", func() {
				m, err := odds.Margin(odds.FormatDecimal, model.MarketTwoWay, b.Snapshots[0].Odds)
				So(err, ShouldBeNil)
				So(m, ShouldAlmostEqual, 5.0, 1e-6)
			})

			Convey("Then the same seed yields the same quotes", func() {
				again, err := Generate(ctx, cfg, now)
				So(err, ShouldBeNil)
				So(again.Fixtures[0].Truth, ShouldEqual, b.Fixtures[0].Truth)
				So(again.Snapshots[2].Odds, ShouldResemble, b.Snapshots[2].Odds)
			})
		})

		Convey("When the market is three-way the quotes are distributions", func() {
			cfg.Market = model.MarketThreeWay
			b, err := Generate(ctx, cfg, now)
			So(err, ShouldBeNil)
			for _, qs := range b.Quoted {
				for _, q := range qs {
					So(q.Sum(model.MarketThreeWay), ShouldAlmostEqual, 1.0, 1e-9)
				}
			}
		})

		Convey("When the market is unknown", func() {
			cfg.Market = "handicap"
			_, err := Generate(ctx, cfg, now)
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestCheckConsensus(t *testing.T) {
	quoted := []model.Probabilities{{Home: 0.6, Away: 0.4}, {Home: 0.7, Away: 0.3}}

	Convey("Given quotes from two providers", t, func() {
		Convey("When the served consensus is their average", func() {
			got := Consensus{EventID: "e1", Home: ptr(0.65), Away: ptr(0.35), Tip: ptr(model.OutcomeHome), ContributingProviders: 2}
			So(checkConsensus(model.MarketTwoWay, got, quoted), ShouldBeNil)
		})

		Convey("When the served home probability is outside the quotes", func() {
			got := Consensus{EventID: "e1", Home: ptr(0.8), Away: ptr(0.2), Tip: ptr(model.OutcomeHome), ContributingProviders: 2}
			So(errors.Is(checkConsensus(model.MarketTwoWay, got, quoted), ErrMismatch), ShouldBeTrue)
		})

		Convey("When the tip disagrees with the probabilities", func() {
			got := Consensus{EventID: "e1", Home: ptr(0.65), Away: ptr(0.35), Tip: ptr(model.OutcomeAway), ContributingProviders: 2}
			So(errors.Is(checkConsensus(model.MarketTwoWay, got, quoted), ErrMismatch), ShouldBeTrue)
		})

		Convey("When a provider is missing", func() {
			got := Consensus{EventID: "e1", Home: ptr(0.6), Away: ptr(0.4), Tip: ptr(model.OutcomeHome), ContributingProviders: 1}
			So(errors.Is(checkConsensus(model.MarketTwoWay, got, quoted), ErrMismatch), ShouldBeTrue)
		})

		Convey("When the consensus is empty", func() {
			got := Consensus{EventID: "e1"}
			So(errors.Is(checkConsensus(model.MarketTwoWay, got, nil), ErrMismatch), ShouldBeFalse)
			So(errors.Is(checkConsensus(model.MarketTwoWay, got, quoted), ErrMismatch), ShouldBeTrue)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running aggregator", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		svc := service.New(service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		srv := httptest.NewServer(api.NewServer(svc).Router(ctx))
		Reset(func() {
			srv.Close()
			svc.Stop()
			cancel()
		})

		Convey("When a simulation runs against it", func() {
			cfg := testConfig(srv.URL)
			cfg.Output = filepath.Join(t.TempDir(), "out", "payloads.json")
			stats, err := Run(ctx, cfg)

			Convey("Then every consensus matches the quotes", func() {
				So(err, ShouldBeNil)
				So(stats.FixturesRegistered, ShouldEqual, 5)
				So(stats.SnapshotsAccepted, ShouldEqual, 15)
				So(stats.SnapshotsFailed, ShouldEqual, 0)
				So(stats.ConsensusChecked, ShouldEqual, 5)
				So(stats.ConsensusMismatch, ShouldEqual, 0)
			})

			Convey("Then the payloads are saved", func() {
				_, statErr := os.Stat(cfg.Output)
				So(statErr, ShouldBeNil)
			})
		})
	})

	Convey("Given an unhealthy service", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		Reset(srv.Close)

		Convey("When a simulation runs it stops at the health check", func() {
			_, err := Run(context.Background(), testConfig(srv.URL))
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})
	})
}
