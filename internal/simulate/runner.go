package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/stream"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run executes a complete simulation against cfg.BaseURL: health check,
// fixture registration, snapshot submission, then consensus verification.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Named("simulate")

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("events", cfg.Events),
		logger.Int("providers", cfg.Providers),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	client := NewClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return stats, err
	}

	// Step 2: Generate fixtures and quotes
	batch, err := Generate(ctx, cfg, time.Now())
	if err != nil {
		return stats, fmt.Errorf("generation failed: %w", err)
	}

	// Step 3: Register fixtures before any snapshot references them
	ok, failed := fanOut(ctx, cfg, "fixtures", batch.Fixtures, client.RegisterFixture)
	stats.FixturesRegistered = ok
	if failed > 0 {
		return stats, fmt.Errorf("%w: %d fixtures failed to register", ErrUnexpectedStatus, failed)
	}

	// Step 4: Submit snapshots concurrently
	var dupMu sync.Mutex
	ok, failed = fanOut(ctx, cfg, "snapshots", batch.Snapshots, func(ctx context.Context, s stream.SnapshotMessage) error { //nolint:gocritic // wire payload travels by value
		ack, err := client.PostSnapshot(ctx, s)
		if err == nil && ack.Duplicate {
			dupMu.Lock()
			stats.SnapshotsDuplicate++
			dupMu.Unlock()
		}
		return err
	})
	stats.SnapshotsSubmitted = ok + failed
	stats.SnapshotsAccepted = ok - stats.SnapshotsDuplicate
	stats.SnapshotsFailed = failed

	// Step 5: Wait for processing
	if cfg.Settle > 0 {
		log.Info(ctx, "waiting for snapshots to be processed", logger.Duration("settle", cfg.Settle))
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(cfg.Settle):
		}
	}

	// Step 6: Verify consensus per fixture
	var (
		mismatchMu sync.Mutex
		mismatches []error
	)
	ok, failed = fanOut(ctx, cfg, "consensus", batch.Fixtures, func(ctx context.Context, f Fixture) error {
		got, err := client.Consensus(ctx, f.EventID)
		if err != nil {
			return err
		}
		if err := checkConsensus(f.Market, got, batch.Quoted[f.EventID]); err != nil {
			mismatchMu.Lock()
			mismatches = append(mismatches, err)
			mismatchMu.Unlock()
			return err
		}
		return nil
	})
	stats.ConsensusChecked = ok + failed
	stats.ConsensusMismatch = len(mismatches)

	// Step 7: Save payloads to file
	if cfg.Output != "" {
		if err := saveBatch(cfg.Output, batch); err != nil {
			log.Warn(ctx, "failed to save payloads", logger.Error(err))
		} else {
			log.Info(ctx, "payloads saved", logger.String("file", cfg.Output))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)

	if len(mismatches) > 0 {
		return stats, errors.Join(mismatches...)
	}
	if failed > 0 {
		return stats, fmt.Errorf("%w: %d consensus requests failed", ErrUnexpectedStatus, failed)
	}
	return stats, nil
}

// saveBatch writes the generated payloads as indented JSON.
func saveBatch(filename string, b *Batch) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal payloads: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func logStats(ctx context.Context, log logger.Logger, s *Stats) {
	var perSecond float64
	if s.Duration > 0 {
		perSecond = float64(s.SnapshotsSubmitted) / s.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("fixturesRegistered", s.FixturesRegistered),
		logger.Int("snapshotsSubmitted", s.SnapshotsSubmitted),
		logger.Int("snapshotsAccepted", s.SnapshotsAccepted),
		logger.Int("snapshotsDuplicate", s.SnapshotsDuplicate),
		logger.Int("snapshotsFailed", s.SnapshotsFailed),
		logger.Int("consensusChecked", s.ConsensusChecked),
		logger.Int("consensusMismatch", s.ConsensusMismatch),
		logger.Duration("duration", s.Duration),
		logger.Float64("snapshotsPerSecond", perSecond))
}
