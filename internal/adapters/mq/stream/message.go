package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/dedupe"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/odds"
)

// ErrMalformed marks a message that can never be ingested.
var ErrMalformed = errors.New("malformed message")

// SnapshotMessage is the wire form of a provider snapshot. Exactly one of
// Probabilities or Odds is expected; Odds are converted with OddsFormat.
type SnapshotMessage struct {
	ID            string                    `json:"id,omitempty"`
	ProviderID    string                    `json:"provider_id"`
	EventID       string                    `json:"event_id"`
	Market        string                    `json:"market"`
	CapturedAt    time.Time                 `json:"captured_at"`
	Probabilities *model.Probabilities      `json:"probabilities,omitempty"`
	Odds          map[model.Outcome]float64 `json:"odds,omitempty"`
	OddsFormat    string                    `json:"odds_format,omitempty"`
}

// Snapshot converts the message into a validated snapshot. Raw odds, when
// present, are kept on the snapshot keyed by outcome.
func (m SnapshotMessage) Snapshot() (model.Snapshot, error) {
	s := model.Snapshot{
		ID:         m.ID,
		ProviderID: model.ProviderID(m.ProviderID),
		EventID:    model.EventID(m.EventID),
		Market:     model.MarketType(m.Market),
		CapturedAt: m.CapturedAt,
	}

	switch {
	case m.Probabilities != nil:
		s.Probabilities = *m.Probabilities
	case len(m.Odds) > 0:
		p, err := odds.Convert(odds.Format(m.OddsFormat), s.Market, odds.Quote(m.Odds))
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		s.Probabilities = p
		s.Raw = make(map[string]float64, len(m.Odds))
		for o, v := range m.Odds {
			s.Raw[string(o)] = v
		}
	default:
		return model.Snapshot{}, fmt.Errorf("%w: neither probabilities nor odds given", ErrMalformed)
	}

	if err := s.Validate(); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s.ID == "" {
		s.ID = dedupe.SnapshotID(s.ProviderID, s.EventID, s.Market, s.CapturedAt)
	}
	return s, nil
}

// DecodeSnapshot parses a JSON snapshot message.
func DecodeSnapshot(b []byte) (model.Snapshot, error) {
	var m SnapshotMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m.Snapshot()
}

// PollRequest asks collectors to fetch fresh odds for an event.
type PollRequest struct {
	EventID     model.EventID    `json:"event_id"`
	Market      model.MarketType `json:"market"`
	Interval    time.Duration    `json:"interval"`
	RequestedAt time.Time        `json:"requested_at"`
}
