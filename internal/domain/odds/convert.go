package odds

import (
	"fmt"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

// Format names how a provider quotes odds.
type Format string

const (
	FormatDecimal  Format = "decimal"
	FormatAmerican Format = "american"
)

// Quote is a provider's raw odds keyed by outcome.
type Quote map[model.Outcome]float64

// ToProbability converts a single quoted price in format f.
func ToProbability(f Format, price float64) (float64, error) {
	switch f {
	case FormatDecimal, "":
		return DecimalToProbability(price)
	case FormatAmerican:
		return AmericanToProbability(price)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Convert turns a raw quote into a normalized distribution over the market's
// outcomes. Every outcome of the market must be quoted.
func Convert(f Format, m model.MarketType, q Quote) (model.Probabilities, error) {
	var implied model.Probabilities
	outcomes := m.Outcomes()
	if outcomes == nil {
		return model.Probabilities{}, fmt.Errorf("unknown market type %q", m)
	}
	for _, o := range outcomes {
		price, ok := q[o]
		if !ok {
			return model.Probabilities{}, fmt.Errorf("%w: missing price for %s", ErrInvalidOdds, o)
		}
		p, err := ToProbability(f, price)
		if err != nil {
			return model.Probabilities{}, fmt.Errorf("%s: %w", o, err)
		}
		implied.Set(o, p)
	}

	if m == model.MarketTwoWay {
		h, a, err := NormalizeTwoWay(implied.Home, implied.Away)
		if err != nil {
			return model.Probabilities{}, err
		}
		return model.Probabilities{Home: h, Away: a}, nil
	}
	h, d, a, err := NormalizeThreeWay(implied.Home, implied.Draw, implied.Away)
	if err != nil {
		return model.Probabilities{}, err
	}
	return model.Probabilities{Home: h, Draw: d, Away: a}, nil
}

// Margin returns the overround of a raw quote, in percent.
func Margin(f Format, m model.MarketType, q Quote) (float64, error) {
	probs := make([]float64, 0, len(m.Outcomes()))
	for _, o := range m.Outcomes() {
		p, err := ToProbability(f, q[o])
		if err != nil {
			return 0, fmt.Errorf("%s: %w", o, err)
		}
		probs = append(probs, p)
	}
	return Overround(probs...), nil
}
