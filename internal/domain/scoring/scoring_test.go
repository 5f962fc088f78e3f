package scoring_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBrier(t *testing.T) {
	Convey("Given binary forecasts", t, func() {
		Convey("When the forecast is perfect", func() {
			s, err := scoring.Brier(1, 1)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 0)
		})

		Convey("When the forecast is maximally wrong", func() {
			s, err := scoring.Brier(0, 1)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 1)
		})

		Convey("When the forecast is 0.7 and the event happens", func() {
			s, err := scoring.Brier(0.7, 1)
			So(err, ShouldBeNil)
			So(s, ShouldAlmostEqual, 0.09, 1e-12)
		})

		Convey("When the probability is out of range", func() {
			_, err := scoring.Brier(1.2, 1)
			So(errors.Is(err, scoring.ErrOutOfRange), ShouldBeTrue)
		})

		Convey("When the actual value is not binary", func() {
			_, err := scoring.Brier(0.5, 2)
			So(errors.Is(err, scoring.ErrOutOfRange), ShouldBeTrue)
		})
	})
}

func TestBrierMultiClass(t *testing.T) {
	ctx := context.Background()

	Convey("Given a three-way forecast", t, func() {
		p := model.Probabilities{Home: 0.5, Draw: 0.3, Away: 0.2}

		Convey("When home wins", func() {
			s, err := scoring.BrierMultiClass(ctx, p, model.MarketThreeWay, model.OutcomeHome)
			So(err, ShouldBeNil)
			So(s, ShouldAlmostEqual, 0.25+0.09+0.04, 1e-12)
		})

		Convey("When the score stays within [0, 2]", func() {
			for _, o := range model.MarketThreeWay.Outcomes() {
				s, err := scoring.BrierMultiClass(ctx, p, model.MarketThreeWay, o)
				So(err, ShouldBeNil)
				So(s, ShouldBeBetweenOrEqual, 0, 2)
			}
		})

		Convey("When the outcome is not part of the market", func() {
			_, err := scoring.BrierMultiClass(ctx, model.Probabilities{Home: 0.5, Away: 0.5}, model.MarketTwoWay, model.OutcomeDraw)
			So(errors.Is(err, scoring.ErrUnknownOutcome), ShouldBeTrue)
		})

		Convey("When the distribution does not sum to one it is still scored", func() {
			s, err := scoring.BrierMultiClass(ctx, model.Probabilities{Home: 0.6, Away: 0.6}, model.MarketTwoWay, model.OutcomeHome)
			So(err, ShouldBeNil)
			So(s, ShouldAlmostEqual, 0.16+0.36, 1e-12)
		})
	})
}

func TestLogLoss(t *testing.T) {
	Convey("Given binary forecasts", t, func() {
		Convey("When the forecast is 0.5", func() {
			s, err := scoring.LogLoss(0.5, 1)
			So(err, ShouldBeNil)
			So(s, ShouldAlmostEqual, math.Ln2, 1e-12)
		})

		Convey("When the forecast is certain and wrong the loss is finite", func() {
			s, err := scoring.LogLoss(0, 1)
			So(err, ShouldBeNil)
			So(math.IsInf(s, 0), ShouldBeFalse)
			So(s, ShouldAlmostEqual, -math.Log(1e-15), 1e-9)
		})

		Convey("When more mass goes to the true outcome the loss strictly falls", func() {
			prevHit, prevMiss := math.Inf(1), math.Inf(1)
			for _, p := range []float64{0.01, 0.1, 0.3, 0.5, 0.7, 0.9, 0.99} {
				hit, err := scoring.LogLoss(p, 1)
				So(err, ShouldBeNil)
				So(hit, ShouldBeLessThan, prevHit)
				prevHit = hit

				miss, err := scoring.LogLoss(1-p, 0)
				So(err, ShouldBeNil)
				So(miss, ShouldBeLessThan, prevMiss)
				prevMiss = miss
			}
		})

		Convey("When the event does not happen", func() {
			s, err := scoring.LogLoss(0.2, 0)
			So(err, ShouldBeNil)
			So(s, ShouldAlmostEqual, -math.Log(0.8), 1e-12)
		})
	})

	Convey("Given a multi-class forecast", t, func() {
		p := model.Probabilities{Home: 0.25, Draw: 0.0, Away: 0.75}

		Convey("When the actual outcome had some mass", func() {
			s, err := scoring.LogLossMultiClass(p, model.MarketThreeWay, model.OutcomeAway)
			So(err, ShouldBeNil)
			So(s, ShouldAlmostEqual, -math.Log(0.75), 1e-12)
		})

		Convey("When the actual outcome had zero mass the loss is finite", func() {
			s, err := scoring.LogLossMultiClass(p, model.MarketThreeWay, model.OutcomeDraw)
			So(err, ShouldBeNil)
			So(math.IsInf(s, 0), ShouldBeFalse)
		})

		Convey("When the outcome is absent from the market", func() {
			_, err := scoring.LogLossMultiClass(p, model.MarketTwoWay, model.OutcomeDraw)
			So(errors.Is(err, scoring.ErrUnknownOutcome), ShouldBeTrue)
		})
	})
}

func TestTimeWeightedAverage(t *testing.T) {
	t0 := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	Convey("Given scores with timestamps", t, func() {
		Convey("When the older score is exactly one half-life old", func() {
			avg, err := scoring.TimeWeightedAverage([]float64{0, 1}, []time.Time{t0, t0.AddDate(0, 0, -30)}, 30)
			So(err, ShouldBeNil)
			So(avg, ShouldAlmostEqual, 1.0/3.0, 1e-9)
		})

		Convey("When scores are 60, 30 and 5 days old with a 30 day half-life", func() {
			scores := []float64{0.1, 0.2, 0.3}
			stamps := []time.Time{t0.AddDate(0, 0, -60), t0.AddDate(0, 0, -30), t0.AddDate(0, 0, -5)}
			avg, err := scoring.TimeWeightedAverage(scores, stamps, 30)

			Convey("Then the average lies between the oldest and newest, closer to the newest", func() {
				So(err, ShouldBeNil)
				So(avg, ShouldBeGreaterThan, 0.1)
				So(avg, ShouldBeLessThan, 0.3)
				So(0.3-avg, ShouldBeLessThan, avg-0.1)

				w1, w2 := math.Pow(2, -55.0/30), math.Pow(2, -25.0/30)
				So(avg, ShouldAlmostEqual, (0.1*w1+0.2*w2+0.3)/(w1+w2+1), 1e-9)
			})
		})

		Convey("When all timestamps are equal it is a plain mean", func() {
			avg, err := scoring.TimeWeightedAverage([]float64{0.1, 0.2, 0.3}, []time.Time{t0, t0, t0}, 30)
			So(err, ShouldBeNil)
			So(avg, ShouldAlmostEqual, 0.2, 1e-12)
		})

		Convey("When there is a single score", func() {
			avg, err := scoring.TimeWeightedAverage([]float64{0.42}, []time.Time{t0}, 30)
			So(err, ShouldBeNil)
			So(avg, ShouldAlmostEqual, 0.42, 1e-12)
		})

		Convey("When lengths differ", func() {
			_, err := scoring.TimeWeightedAverage([]float64{1, 2}, []time.Time{t0}, 30)
			So(errors.Is(err, scoring.ErrLengthMismatch), ShouldBeTrue)
		})

		Convey("When the input is empty", func() {
			_, err := scoring.TimeWeightedAverage(nil, nil, 30)
			So(errors.Is(err, scoring.ErrEmptyInput), ShouldBeTrue)
		})
	})
}
