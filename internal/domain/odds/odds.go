// Package odds converts bookmaker odds into implied probabilities and removes
// the bookmaker margin.
package odds

import (
	"fmt"
	"math"
)

// americanBase is the stake unit American odds are quoted against.
const americanBase = 100.0

// DecimalToProbability returns the implied probability of decimal odds.
// Odds must be strictly greater than 1.
func DecimalToProbability(odds float64) (float64, error) {
	if math.IsNaN(odds) || odds <= 1 {
		return 0, fmt.Errorf("%w: decimal odds must be greater than 1, got %v", ErrInvalidOdds, odds)
	}
	return 1 / odds, nil
}

// AmericanToProbability returns the implied probability of American odds.
// Positive odds are the profit on a 100 stake, negative odds the stake needed
// to win 100.
func AmericanToProbability(odds float64) (float64, error) {
	switch {
	case math.IsNaN(odds) || odds == 0:
		return 0, fmt.Errorf("%w: american odds must be non-zero, got %v", ErrInvalidOdds, odds)
	case odds > 0:
		return americanBase / (odds + americanBase), nil
	default:
		return -odds / (-odds + americanBase), nil
	}
}

// NormalizeTwoWay scales implied probabilities so they sum to 1.
func NormalizeTwoWay(home, away float64) (float64, float64, error) {
	total := home + away
	if total <= 0 {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidProbabilityTotal, total)
	}
	return home / total, away / total, nil
}

// NormalizeThreeWay scales implied probabilities so they sum to 1.
func NormalizeThreeWay(home, draw, away float64) (float64, float64, float64, error) {
	total := home + draw + away
	if total <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrInvalidProbabilityTotal, total)
	}
	return home / total, draw / total, away / total, nil
}

// Overround is the bookmaker margin in percent: (sum - 1) * 100.
func Overround(probs ...float64) float64 {
	var sum float64
	for _, p := range probs {
		sum += p
	}
	return (sum - 1) * 100
}
