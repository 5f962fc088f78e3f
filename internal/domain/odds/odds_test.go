package odds_test

import (
	"errors"
	"testing"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/odds"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDecimalToProbability(t *testing.T) {
	Convey("Given decimal odds", t, func() {
		Convey("When odds are 2.0", func() {
			p, err := odds.DecimalToProbability(2.0)
			So(err, ShouldBeNil)
			So(p, ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("When odds are 1.25", func() {
			p, err := odds.DecimalToProbability(1.25)
			So(err, ShouldBeNil)
			So(p, ShouldAlmostEqual, 0.8, 1e-12)
		})

		Convey("When odds lengthen the probability falls strictly and stays in (0, 1)", func() {
			prev := 1.0
			for _, o := range []float64{1.0001, 1.01, 1.5, 2, 3.25, 10, 101, 1e6} {
				p, err := odds.DecimalToProbability(o)
				So(err, ShouldBeNil)
				So(p, ShouldBeGreaterThan, 0)
				So(p, ShouldBeLessThan, prev)
				prev = p
			}
		})

		Convey("When odds are exactly 1", func() {
			_, err := odds.DecimalToProbability(1.0)
			So(errors.Is(err, odds.ErrInvalidOdds), ShouldBeTrue)
		})

		Convey("When odds are below 1", func() {
			_, err := odds.DecimalToProbability(0.5)
			So(errors.Is(err, odds.ErrInvalidOdds), ShouldBeTrue)
		})
	})
}

func TestAmericanToProbability(t *testing.T) {
	Convey("Given American odds", t, func() {
		Convey("When odds are positive", func() {
			p, err := odds.AmericanToProbability(150)
			So(err, ShouldBeNil)
			So(p, ShouldAlmostEqual, 0.4, 1e-12)
		})

		Convey("When odds are negative", func() {
			p, err := odds.AmericanToProbability(-200)
			So(err, ShouldBeNil)
			So(p, ShouldAlmostEqual, 2.0/3.0, 1e-12)
		})

		Convey("When odds are even money", func() {
			p, err := odds.AmericanToProbability(100)
			So(err, ShouldBeNil)
			So(p, ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("When odds are zero", func() {
			_, err := odds.AmericanToProbability(0)
			So(errors.Is(err, odds.ErrInvalidOdds), ShouldBeTrue)
		})
	})
}

func TestNormalize(t *testing.T) {
	Convey("Given implied probabilities with a margin", t, func() {
		Convey("When normalizing a two-way market", func() {
			h, a, err := odds.NormalizeTwoWay(0.55, 0.50)
			So(err, ShouldBeNil)
			So(h+a, ShouldAlmostEqual, 1.0, 1e-12)
			So(h, ShouldAlmostEqual, 0.55/1.05, 1e-12)
		})

		Convey("When normalizing the home to away ratio is kept", func() {
			for _, in := range [][2]float64{{0.55, 0.50}, {3, 1}, {0.01, 0.97}, {7e-4, 2e-4}} {
				h, a, err := odds.NormalizeTwoWay(in[0], in[1])
				So(err, ShouldBeNil)
				So(h+a, ShouldAlmostEqual, 1.0, 1e-9)
				So(h/a, ShouldAlmostEqual, in[0]/in[1], 1e-9*in[0]/in[1])
			}
		})

		Convey("When normalizing a three-way market", func() {
			h, d, a, err := odds.NormalizeThreeWay(0.5, 0.3, 0.3)
			So(err, ShouldBeNil)
			So(h+d+a, ShouldAlmostEqual, 1.0, 1e-12)
			So(d, ShouldAlmostEqual, 0.3/1.1, 1e-12)
		})

		Convey("When the total is zero", func() {
			_, _, err := odds.NormalizeTwoWay(0, 0)
			So(errors.Is(err, odds.ErrInvalidProbabilityTotal), ShouldBeTrue)

			_, _, _, err = odds.NormalizeThreeWay(0, 0, 0)
			So(errors.Is(err, odds.ErrInvalidProbabilityTotal), ShouldBeTrue)
		})
	})
}

func TestOverround(t *testing.T) {
	Convey("Given implied probabilities", t, func() {
		So(odds.Overround(0.55, 0.50), ShouldAlmostEqual, 5.0, 1e-9)
		So(odds.Overround(0.5, 0.5), ShouldAlmostEqual, 0.0, 1e-12)
		So(odds.Overround(), ShouldAlmostEqual, -100.0, 1e-12)
	})
}

func TestConvert(t *testing.T) {
	Convey("Given a raw decimal quote for a three-way market", t, func() {
		q := odds.Quote{model.OutcomeHome: 2.0, model.OutcomeDraw: 3.5, model.OutcomeAway: 4.0}

		Convey("When converting", func() {
			p, err := odds.Convert(odds.FormatDecimal, model.MarketThreeWay, q)
			So(err, ShouldBeNil)
			So(p.Validate(model.MarketThreeWay), ShouldBeNil)
			So(p.Home, ShouldBeGreaterThan, p.Draw)
			So(p.Draw, ShouldBeGreaterThan, p.Away)
		})

		Convey("When measuring the margin", func() {
			m, err := odds.Margin(odds.FormatDecimal, model.MarketThreeWay, q)
			So(err, ShouldBeNil)
			So(m, ShouldAlmostEqual, (0.5+1/3.5+0.25-1)*100, 1e-9)
		})
	})

	Convey("Given a raw American quote for a two-way market", t, func() {
		q := odds.Quote{model.OutcomeHome: -150, model.OutcomeAway: 130}
		p, err := odds.Convert(odds.FormatAmerican, model.MarketTwoWay, q)
		So(err, ShouldBeNil)
		So(p.Draw, ShouldEqual, 0)
		So(p.Home+p.Away, ShouldAlmostEqual, 1.0, 1e-12)
	})

	Convey("Given an incomplete quote", t, func() {
		q := odds.Quote{model.OutcomeHome: 2.0}
		_, err := odds.Convert(odds.FormatDecimal, model.MarketTwoWay, q)
		So(errors.Is(err, odds.ErrInvalidOdds), ShouldBeTrue)
	})

	Convey("Given an unknown format", t, func() {
		q := odds.Quote{model.OutcomeHome: 2.0, model.OutcomeAway: 2.0}
		_, err := odds.Convert("fractional", model.MarketTwoWay, q)
		So(errors.Is(err, odds.ErrUnknownFormat), ShouldBeTrue)
	})
}
