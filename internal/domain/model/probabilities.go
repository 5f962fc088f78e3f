package model

import (
	"fmt"
	"math"
)

// ProbabilityTolerance is the allowed deviation of a distribution's sum from 1.
const ProbabilityTolerance = 1e-6

// Probabilities is a distribution over the outcomes of a market.
// Draw is always zero for two-way markets.
type Probabilities struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// Get returns the probability assigned to o.
func (p Probabilities) Get(o Outcome) float64 {
	switch o {
	case OutcomeHome:
		return p.Home
	case OutcomeDraw:
		return p.Draw
	case OutcomeAway:
		return p.Away
	default:
		return 0
	}
}

// Set assigns v to outcome o. Unknown outcomes are ignored.
func (p *Probabilities) Set(o Outcome, v float64) {
	switch o {
	case OutcomeHome:
		p.Home = v
	case OutcomeDraw:
		p.Draw = v
	case OutcomeAway:
		p.Away = v
	}
}

// Sum adds the probabilities of the market's outcomes.
func (p Probabilities) Sum(m MarketType) float64 {
	var s float64
	for _, o := range m.Outcomes() {
		s += p.Get(o)
	}
	return s
}

// AsMap returns the distribution keyed by outcome, limited to the market's outcomes.
func (p Probabilities) AsMap(m MarketType) map[Outcome]float64 {
	out := make(map[Outcome]float64, len(m.Outcomes()))
	for _, o := range m.Outcomes() {
		out[o] = p.Get(o)
	}
	return out
}

// Validate checks every populated outcome lies in [0,1], the sum is 1 within
// ProbabilityTolerance, and a two-way market carries no draw mass.
func (p Probabilities) Validate(m MarketType) error {
	if !m.Valid() {
		return fmt.Errorf("unknown market type %q", m)
	}
	for _, o := range m.Outcomes() {
		v := p.Get(o)
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("probability for %s out of range: %v", o, v)
		}
	}
	if m == MarketTwoWay && p.Draw != 0 {
		return fmt.Errorf("two-way market must not carry a draw probability: %v", p.Draw)
	}
	if s := p.Sum(m); math.Abs(s-1) > ProbabilityTolerance {
		return fmt.Errorf("probabilities sum to %v, want 1", s)
	}
	return nil
}
