package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/pkg/metrics"
)

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu sync.RWMutex

	snapshots   map[model.EventID][]model.Snapshot
	snapshotIDs map[string]struct{}
	events      map[model.EventID]model.Event
	outcomes    map[model.EventID]model.MatchOutcome
	performance map[Group][]model.PerformanceRecord
	weights     map[Group][]model.ProviderWeight
	count       int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:   make(map[model.EventID][]model.Snapshot),
		snapshotIDs: make(map[string]struct{}),
		events:      make(map[model.EventID]model.Event),
		outcomes:    make(map[model.EventID]model.MatchOutcome),
		performance: make(map[Group][]model.PerformanceRecord),
		weights:     make(map[Group][]model.ProviderWeight),
	}
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap model.Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("%w: snapshot id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshotIDs[snap.ID]; ok {
		return nil
	}
	s.snapshotIDs[snap.ID] = struct{}{}
	s.snapshots[snap.EventID] = append(s.snapshots[snap.EventID], snap)
	s.count++
	metrics.UpdateSnapshotsStored(s.count)
	return nil
}

func (s *MemoryStore) SnapshotsForEvent(_ context.Context, id model.EventID, since time.Time) ([]model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Snapshot
	for _, snap := range s.snapshots[id] {
		if !snap.CapturedAt.Before(since) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *MemoryStore) LatestCaptures(_ context.Context, ids []model.EventID) (map[model.EventID]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.EventID]time.Time, len(ids))
	for _, id := range ids {
		for _, snap := range s.snapshots[id] {
			if snap.CapturedAt.After(out[id]) {
				out[id] = snap.CapturedAt
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveEvent(_ context.Context, e model.Event) error {
	if e.ID == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
	return nil
}

func (s *MemoryStore) Event(_ context.Context, id model.EventID) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (s *MemoryStore) EventsBetween(_ context.Context, from, to time.Time) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Event
	for _, e := range s.events {
		if !e.Kickoff.Before(from) && !e.Kickoff.After(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kickoff.Before(out[j].Kickoff) })
	return out, nil
}

func (s *MemoryStore) SaveOutcome(_ context.Context, o model.MatchOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[o.EventID]
	if !ok {
		return fmt.Errorf("event %s: %w", o.EventID, ErrNotFound)
	}
	e.Status = model.StatusFinished
	s.events[o.EventID] = e
	s.outcomes[o.EventID] = o
	return nil
}

func (s *MemoryStore) ResolvedEvents(_ context.Context, g Group, from, to time.Time) ([]model.ResolvedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ResolvedEvent
	for id, o := range s.outcomes {
		e := s.events[id]
		if e.LeagueID != g.League || e.Market != g.Market {
			continue
		}
		if o.FinalizedAt.Before(from) || !o.FinalizedAt.Before(to) {
			continue
		}
		snaps := make([]model.Snapshot, len(s.snapshots[id]))
		copy(snaps, s.snapshots[id])
		out = append(out, model.ResolvedEvent{Event: e, Outcome: o, Snapshots: snaps})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Outcome.FinalizedAt.Before(out[j].Outcome.FinalizedAt) })
	return out, nil
}

func (s *MemoryStore) Groups(_ context.Context) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[Group]struct{})
	for _, e := range s.events {
		seen[Group{League: e.LeagueID, Market: e.Market}] = struct{}{}
	}
	out := make([]Group, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sortGroups(out)
	return out, nil
}

func (s *MemoryStore) LatestPerformance(_ context.Context, g Group, provider model.ProviderID) (model.PerformanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  model.PerformanceRecord
		found bool
	)
	for _, r := range s.performance[g] {
		if r.ProviderID == provider && (!found || r.WindowEnd.After(best.WindowEnd)) {
			best, found = r, true
		}
	}
	if !found {
		return model.PerformanceRecord{}, ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) SavePerformance(_ context.Context, r model.PerformanceRecord, replace bool) error {
	g := Group{League: r.LeagueID, Market: r.Market}
	s.mu.Lock()
	defer s.mu.Unlock()
	if replace {
		for i, cur := range s.performance[g] {
			if cur.ID == r.ID {
				s.performance[g][i] = r
				return nil
			}
		}
		return fmt.Errorf("performance %s: %w", r.ID, ErrNotFound)
	}
	s.performance[g] = append(s.performance[g], r)
	return nil
}

func (s *MemoryStore) CurrentPerformance(_ context.Context, g Group) ([]model.PerformanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[model.ProviderID]model.PerformanceRecord)
	for _, r := range s.performance[g] {
		if cur, ok := latest[r.ProviderID]; !ok || r.WindowEnd.After(cur.WindowEnd) {
			latest[r.ProviderID] = r
		}
	}
	out := make([]model.PerformanceRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out, nil
}

func (s *MemoryStore) Weights(_ context.Context, g Group) ([]model.ProviderWeight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.weights[g]
	out := make([]model.ProviderWeight, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *MemoryStore) ReplaceWeights(_ context.Context, g Group, rows []model.ProviderWeight) error {
	cp := make([]model.ProviderWeight, len(rows))
	copy(cp, rows)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights[g] = cp
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// SnapshotCount returns the number of stored snapshots.
func (s *MemoryStore) SnapshotCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func sortGroups(gs []Group) {
	sort.Slice(gs, func(i, j int) bool {
		if gs[i].League != gs[j].League {
			return gs[i].League < gs[j].League
		}
		return gs[i].Market < gs[j].Market
	})
}
