package model

import (
	"errors"
	"fmt"
	"time"
)

// Snapshot is one provider's normalized view of an event at a moment in time.
// Snapshots are immutable once built.
type Snapshot struct {
	ID            string             `json:"id"`
	ProviderID    ProviderID         `json:"provider_id"`
	EventID       EventID            `json:"event_id"`
	Market        MarketType         `json:"market"`
	CapturedAt    time.Time          `json:"captured_at"`
	Probabilities Probabilities      `json:"probabilities"`
	Raw           map[string]float64 `json:"raw,omitempty"`
}

// Validate checks identity fields and the probability distribution.
func (s Snapshot) Validate() error {
	switch {
	case s.ProviderID == "":
		return errors.New("provider_id is required")
	case s.EventID == "":
		return errors.New("event_id is required")
	case s.CapturedAt.IsZero():
		return errors.New("captured_at is required")
	}
	if err := s.Probabilities.Validate(s.Market); err != nil {
		return fmt.Errorf("snapshot %s/%s: %w", s.ProviderID, s.EventID, err)
	}
	return nil
}
