// Package snapshot selects the snapshots that feed a consensus or a score.
// Functions never modify their input.
package snapshot

import (
	"sort"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

// FilterFresh keeps snapshots captured at or after reference - maxAge.
func FilterFresh(snaps []model.Snapshot, reference time.Time, maxAge time.Duration) []model.Snapshot {
	cutoff := reference.Add(-maxAge)
	out := make([]model.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if !s.CapturedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// LatestPerProvider keeps the most recent snapshot of each provider.
// On equal capture times the snapshot seen first wins. The result is ordered
// by provider ID.
func LatestPerProvider(snaps []model.Snapshot) []model.Snapshot {
	latest := make(map[model.ProviderID]model.Snapshot, len(snaps))
	for _, s := range snaps {
		cur, ok := latest[s.ProviderID]
		if !ok || s.CapturedAt.After(cur.CapturedAt) {
			latest[s.ProviderID] = s
		}
	}

	out := make([]model.Snapshot, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// LatestBefore returns the provider's latest snapshot of market m captured at
// or before cutoff.
func LatestBefore(snaps []model.Snapshot, provider model.ProviderID, m model.MarketType, cutoff time.Time) (model.Snapshot, bool) {
	var (
		best  model.Snapshot
		found bool
	)
	for _, s := range snaps {
		if s.ProviderID != provider || s.Market != m || s.CapturedAt.After(cutoff) {
			continue
		}
		if !found || s.CapturedAt.After(best.CapturedAt) {
			best, found = s, true
		}
	}
	return best, found
}

// Providers lists the distinct providers present in snaps, sorted.
func Providers(snaps []model.Snapshot) []model.ProviderID {
	seen := make(map[model.ProviderID]struct{}, len(snaps))
	out := make([]model.ProviderID, 0, len(snaps))
	for _, s := range snaps {
		if _, ok := seen[s.ProviderID]; ok {
			continue
		}
		seen[s.ProviderID] = struct{}{}
		out = append(out, s.ProviderID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
