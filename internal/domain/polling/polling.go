// Package polling decides how often each upcoming event should be refreshed,
// polling more often as kickoff approaches.
package polling

import (
	"sort"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

// Tier names the band an event's time-to-kickoff falls in.
type Tier string

const (
	TierFinal   Tier = "final"
	TierNear    Tier = "near"
	TierDefault Tier = "default"
)

// Policy holds the polling intervals and the thresholds that select them.
type Policy struct {
	DefaultInterval time.Duration
	NearInterval    time.Duration
	FinalInterval   time.Duration
	NearThreshold   time.Duration
	FinalThreshold  time.Duration
	Horizon         time.Duration
}

// DefaultPolicy polls every 15 minutes, every 5 within two hours of kickoff
// and every minute within the last half hour, for events up to 48h ahead.
func DefaultPolicy() Policy {
	return Policy{
		DefaultInterval: 900 * time.Second,
		NearInterval:    300 * time.Second,
		FinalInterval:   60 * time.Second,
		NearThreshold:   120 * time.Minute,
		FinalThreshold:  30 * time.Minute,
		Horizon:         48 * time.Hour,
	}
}

// Tier returns the band for the given minutes to kickoff.
func (p Policy) Tier(minutesToKickoff float64) Tier {
	switch {
	case minutesToKickoff <= p.FinalThreshold.Minutes():
		return TierFinal
	case minutesToKickoff <= p.NearThreshold.Minutes():
		return TierNear
	default:
		return TierDefault
	}
}

// Interval returns the polling interval for the given minutes to kickoff.
func (p Policy) Interval(minutesToKickoff float64) time.Duration {
	switch p.Tier(minutesToKickoff) {
	case TierFinal:
		return p.FinalInterval
	case TierNear:
		return p.NearInterval
	default:
		return p.DefaultInterval
	}
}

// ShouldSkip reports whether the last snapshot is recent enough that another
// poll is not yet due. Without a prior snapshot a poll is always due.
func ShouldSkip(lastSnapshotAge time.Duration, hasPrior bool, required time.Duration) bool {
	if !hasPrior {
		return false
	}
	return lastSnapshotAge < required
}

// Candidates returns the scheduled events kicking off within the horizon,
// ordered by kickoff. Events already past kickoff are excluded.
func (p Policy) Candidates(events []model.Event, now time.Time) []model.Event {
	limit := now.Add(p.Horizon)
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.Status != model.StatusScheduled {
			continue
		}
		if e.Kickoff.Before(now) || e.Kickoff.After(limit) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Kickoff.Before(out[j].Kickoff) })
	return out
}

// Decision is the polling verdict for one event.
type Decision struct {
	EventID          model.EventID    `json:"event_id"`
	Market           model.MarketType `json:"market"`
	MinutesToKickoff float64          `json:"minutes_to_kickoff"`
	Tier             Tier             `json:"tier"`
	Interval         time.Duration    `json:"interval"`
	Skip             bool             `json:"skip"`
}

// Decide evaluates every candidate event. lastCaptured holds the newest
// snapshot capture time per event; missing entries mean no prior snapshot.
func (p Policy) Decide(events []model.Event, lastCaptured map[model.EventID]time.Time, now time.Time) []Decision {
	cands := p.Candidates(events, now)
	out := make([]Decision, 0, len(cands))
	for _, e := range cands {
		out = append(out, p.DecideOne(e, lastCaptured[e.ID], now))
	}
	return out
}

// DecideOne evaluates a single event. A zero last time means no prior snapshot.
func (p Policy) DecideOne(e model.Event, last time.Time, now time.Time) Decision {
	minutes := e.Kickoff.Sub(now).Minutes()
	interval := p.Interval(minutes)
	return Decision{
		EventID:          e.ID,
		Market:           e.Market,
		MinutesToKickoff: minutes,
		Tier:             p.Tier(minutes),
		Interval:         interval,
		Skip:             ShouldSkip(now.Sub(last), !last.IsZero(), interval),
	}
}
