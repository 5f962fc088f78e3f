// Package service ties the domain packages to storage, caching and messaging.
// It implements the dependencies required by the HTTP API and the stream
// consumer.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/cache"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/queue"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/stream"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/worker"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/repository"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/consensus"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/dedupe"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/polling"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/scoring"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/snapshot"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/weighting"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
	"github.com/robsheahan/tipping-aggregator-web/pkg/metrics"
)

const (
	defaultPollEvery        = time.Minute
	defaultPerformanceEvery = time.Hour
	defaultWeightsEvery     = time.Hour
	defaultParallelism      = 4
	shutdownTimeout         = 10 * time.Second
)

// Service implements the consensus pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	cache     cache.ConsensusCache
	publisher stream.Publisher
	deduper   dedupe.Deduper
	queue     queue.Queue
	pool      *worker.Pool
	// stopWork cancels the workers' context once Stop has drained the queue.
	stopWork context.CancelFunc

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	parallelism      int
	consensusCfg     consensus.Config
	scoringCfg       scoring.Config
	weightingCfg     weighting.Config
	policy           polling.Policy
	pollEvery        time.Duration
	performanceEvery time.Duration
	weightsEvery     time.Duration
	now              func() time.Time

	started bool
	logger  logger.Logger
}

// New constructs a Service. Without options it runs on an in-memory store
// with no cache and no publisher.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        10_000,
		dedupeSize:       50_000,
		parallelism:      defaultParallelism,
		consensusCfg:     consensus.DefaultConfig(),
		scoringCfg:       scoring.DefaultConfig(),
		weightingCfg:     weighting.DefaultConfig(),
		policy:           polling.DefaultPolicy(),
		pollEvery:        defaultPollEvery,
		performanceEvery: defaultPerformanceEvery,
		weightsEvery:     defaultWeightsEvery,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.publisher == nil {
		s.publisher = stream.NopPublisher{}
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	return s
}

// Start launches the worker pool. Cancelling ctx does not stop the workers;
// they keep draining the queue until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting consensus service...")
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.ProcessorFunc(s.Process))
	workCtx, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	s.stopWork = stopWork
	s.pool.Start(workCtx)

	s.started = true
	s.logger.Info(ctx, "consensus service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the queue and releases the store, cache and publisher.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping consensus service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.stopWork()
	if err := s.publisher.Close(); err != nil {
		s.logger.Warn(ctx, "closing publisher failed", logger.Error(err))
	}
	if closer, ok := s.cache.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "consensus service stopped")
}

// Ingest validates a snapshot and queues it for processing. A snapshot whose
// ID was already seen is reported as a duplicate and dropped.
func (s *Service) Ingest(ctx context.Context, snap model.Snapshot) (bool, error) { //nolint:gocritic // snapshots travel by value
	if err := snap.Validate(); err != nil {
		metrics.RecordSnapshotRejected("invalid")
		return false, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if snap.ID == "" {
		snap.ID = dedupe.SnapshotID(snap.ProviderID, snap.EventID, snap.Market, snap.CapturedAt)
	}

	if s.deduper.SeenAndRecord(ctx, snap.ID) {
		metrics.RecordSnapshotDuplicate()
		s.logger.Debug(ctx, "duplicate snapshot, skipping", logger.String("snapshot_id", snap.ID))
		return true, nil
	}

	if err := s.queue.Enqueue(ctx, snap); err != nil {
		// Let a retry through once there is room again.
		s.deduper.Unrecord(ctx, snap.ID)
		return false, err
	}
	metrics.RecordSnapshotIngested()
	return false, nil
}

// Process persists one snapshot and refreshes the consensus of its event.
// Snapshots for events the store does not know yet are kept but produce no
// consensus.
func (s *Service) Process(ctx context.Context, snap model.Snapshot) error { //nolint:gocritic // snapshots travel by value
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	if err := s.cache.Invalidate(ctx, snap.EventID); err != nil {
		s.logger.Warn(ctx, "cache invalidation failed",
			logger.String("event_id", string(snap.EventID)),
			logger.Error(err),
		)
	}

	res, err := s.RecomputeEvent(ctx, snap.EventID)
	if errors.Is(err, ErrUnknownEvent) {
		s.logger.Debug(ctx, "snapshot for unregistered event", logger.String("event_id", string(snap.EventID)))
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.publisher.PublishConsensus(ctx, res); err != nil {
		metrics.RecordErrorByComponent("publisher", "consensus")
		s.logger.Warn(ctx, "publishing consensus failed",
			logger.String("event_id", string(res.EventID)),
			logger.Error(err),
		)
	}
	return nil
}

// RegisterEvent stores or updates a fixture.
func (s *Service) RegisterEvent(ctx context.Context, e model.Event) error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	case e.LeagueID == "":
		return fmt.Errorf("%w: league_id is required", ErrInvalidEvent)
	case !e.Market.Valid():
		return fmt.Errorf("%w: unknown market %q", ErrInvalidEvent, e.Market)
	case e.Kickoff.IsZero():
		return fmt.Errorf("%w: kickoff is required", ErrInvalidEvent)
	}
	if e.Status == "" {
		e.Status = model.StatusScheduled
	}
	return s.store.SaveEvent(ctx, e)
}

// RecordOutcome finalizes an event with its result.
func (s *Service) RecordOutcome(ctx context.Context, o model.MatchOutcome) error {
	e, err := s.event(ctx, o.EventID)
	if err != nil {
		return err
	}
	if !e.Market.Has(o.Actual) {
		return fmt.Errorf("%w: outcome %q not in %s", ErrInvalidEvent, o.Actual, e.Market)
	}
	if o.FinalizedAt.IsZero() {
		o.FinalizedAt = s.now()
	}
	return s.store.SaveOutcome(ctx, o)
}

// Consensus returns the current consensus of an event, from cache when possible.
func (s *Service) Consensus(ctx context.Context, id model.EventID) (model.ConsensusResult, error) {
	res, err := s.cache.Get(ctx, id)
	switch {
	case err == nil:
		metrics.RecordConsensusCache(true)
		return res, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		s.logger.Warn(ctx, "cache read failed", logger.String("event_id", string(id)), logger.Error(err))
	}
	metrics.RecordConsensusCache(false)
	return s.RecomputeEvent(ctx, id)
}

// RecomputeEvent aggregates the fresh snapshots of an event with the current
// weights of its league and market, and caches the result.
func (s *Service) RecomputeEvent(ctx context.Context, id model.EventID) (model.ConsensusResult, error) {
	e, err := s.event(ctx, id)
	if err != nil {
		return model.ConsensusResult{}, err
	}

	start := time.Now()
	now := s.now()
	window := s.consensusCfg.FreshnessWindow
	if window <= 0 {
		window = consensus.DefaultFreshnessWindow
	}
	snaps, err := s.store.SnapshotsForEvent(ctx, id, now.Add(-window))
	if err != nil {
		return model.ConsensusResult{}, fmt.Errorf("load snapshots for %s: %w", id, err)
	}
	rows, err := s.store.Weights(ctx, repository.Group{League: e.LeagueID, Market: e.Market})
	if err != nil {
		return model.ConsensusResult{}, fmt.Errorf("load weights for %s: %w", id, err)
	}

	res := consensus.Compute(ctx, id, e.Market, snaps, consensus.Weights(weighting.FromRecords(rows)), now, s.consensusCfg)
	metrics.RecordConsensus(res.Empty(), float64(time.Since(start).Microseconds())/1000)

	if err := s.cache.Set(ctx, res); err != nil {
		s.logger.Warn(ctx, "cache write failed", logger.String("event_id", string(id)), logger.Error(err))
	}
	return res, nil
}

// RecomputePerformance evaluates every provider of every (league, market)
// group over the trailing window ending at now.
func (s *Service) RecomputePerformance(ctx context.Context, now time.Time) error {
	start := time.Now()
	defer func() {
		metrics.RecordPerformanceRecomputeDuration(float64(time.Since(start).Milliseconds()))
	}()

	window := scoring.TrailingWindow(now, s.scoringCfg.WindowDays)
	return s.forEachGroup(ctx, "performance", func(ctx context.Context, g repository.Group) error {
		return s.recomputeGroupPerformance(ctx, g, window, now)
	})
}

func (s *Service) recomputeGroupPerformance(ctx context.Context, g repository.Group, w scoring.Window, now time.Time) error {
	resolved, err := s.store.ResolvedEvents(ctx, g, w.Start, w.End)
	if err != nil {
		return fmt.Errorf("load resolved events: %w", err)
	}

	var snaps []model.Snapshot
	for _, r := range resolved {
		snaps = append(snaps, r.Snapshots...)
	}

	for _, p := range snapshot.Providers(snaps) {
		rec, ok, err := scoring.Evaluate(ctx, scoring.Group{Provider: p, League: g.League, Market: g.Market}, resolved, w, s.scoringCfg, now)
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", p, err)
		}
		if !ok {
			continue
		}

		var prev *model.PerformanceRecord
		latest, err := s.store.LatestPerformance(ctx, g, p)
		switch {
		case err == nil:
			prev = &latest
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("load performance of %s: %w", p, err)
		}

		next, replace := scoring.Supersede(prev, rec, s.scoringCfg.Grace)
		if err := s.store.SavePerformance(ctx, next, replace); err != nil {
			return fmt.Errorf("save performance of %s: %w", p, err)
		}
		metrics.RecordPerformanceRecord(replace)
	}
	return nil
}

// RecomputeWeights derives fresh weights for every group from its current
// performance records. Groups without records are left alone, so consensus
// falls back to equal weighting for them.
func (s *Service) RecomputeWeights(ctx context.Context, now time.Time) error {
	return s.forEachGroup(ctx, "weights", func(ctx context.Context, g repository.Group) error {
		perfs, err := s.store.CurrentPerformance(ctx, g)
		if err != nil {
			metrics.RecordWeightRecompute("error")
			return fmt.Errorf("load performance: %w", err)
		}
		if len(perfs) == 0 {
			metrics.RecordWeightRecompute("equal")
			return nil
		}

		w, err := weighting.DeriveWeights(ctx, perfs, s.weightingCfg)
		if err != nil {
			metrics.RecordWeightRecompute("error")
			return fmt.Errorf("derive weights: %w", err)
		}
		if err := s.store.ReplaceWeights(ctx, g, weighting.Records(g.League, g.Market, w, now)); err != nil {
			metrics.RecordWeightRecompute("error")
			return fmt.Errorf("save weights: %w", err)
		}
		metrics.RecordWeightRecompute("ok")
		return nil
	})
}

// forEachGroup runs fn for every (league, market) group with bounded
// parallelism. A failing group does not stop the others; all failures are
// returned joined.
func (s *Service) forEachGroup(ctx context.Context, job string, fn func(context.Context, repository.Group) error) error {
	groups, err := s.store.Groups(ctx)
	if err != nil {
		return fmt.Errorf("%s: list groups: %w", job, err)
	}
	if job == "weights" {
		metrics.UpdateWeightGroups(len(groups))
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.parallelism)
	for _, grp := range groups {
		g.Go(func() error {
			if err := fn(ctx, grp); err != nil {
				s.logger.Error(ctx, "group recompute failed",
					logger.String("job", job),
					logger.String("league", string(grp.League)),
					logger.String("market", string(grp.Market)),
					logger.Error(err),
				)
				metrics.RecordErrorByComponent(job, "recompute")
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s %s/%s: %w", job, grp.League, grp.Market, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// PollDecisions evaluates every scheduled event kicking off within the
// policy horizon.
func (s *Service) PollDecisions(ctx context.Context, now time.Time) ([]polling.Decision, error) {
	horizon := s.policy.Horizon
	if horizon <= 0 {
		horizon = polling.DefaultPolicy().Horizon
	}
	events, err := s.store.EventsBetween(ctx, now, now.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("load upcoming events: %w", err)
	}
	ids := make([]model.EventID, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	last, err := s.store.LatestCaptures(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load latest captures: %w", err)
	}

	decisions := s.policy.Decide(events, last, now)
	for _, d := range decisions {
		metrics.RecordPollDecision(string(d.Tier), d.Skip)
	}
	return decisions, nil
}

// PollDecision evaluates a single event as of now.
func (s *Service) PollDecision(ctx context.Context, id model.EventID) (polling.Decision, error) {
	e, err := s.event(ctx, id)
	if err != nil {
		return polling.Decision{}, err
	}
	last, err := s.store.LatestCaptures(ctx, []model.EventID{id})
	if err != nil {
		return polling.Decision{}, fmt.Errorf("load latest capture: %w", err)
	}
	return s.policy.DecideOne(e, last[id], s.now()), nil
}

// TriggerPolls publishes a poll request for every event that is due and
// returns how many were sent.
func (s *Service) TriggerPolls(ctx context.Context, now time.Time) (int, error) {
	decisions, err := s.PollDecisions(ctx, now)
	if err != nil {
		return 0, err
	}
	var reqs []stream.PollRequest
	for _, d := range decisions {
		if d.Skip {
			continue
		}
		reqs = append(reqs, stream.PollRequest{
			EventID:     d.EventID,
			Market:      d.Market,
			Interval:    d.Interval,
			RequestedAt: now,
		})
	}
	if err := s.publisher.PublishPollRequests(ctx, reqs); err != nil {
		return 0, err
	}
	return len(reqs), nil
}

// Weights returns the stored weights of a league and market.
func (s *Service) Weights(ctx context.Context, league model.LeagueID, m model.MarketType) ([]model.ProviderWeight, error) {
	return s.store.Weights(ctx, repository.Group{League: league, Market: m})
}

// Run drives the background jobs until ctx is cancelled. Performance is
// always recomputed before weights on the same tick.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.every(ctx, s.pollEvery, "poll", func(ctx context.Context) error {
			n, err := s.TriggerPolls(ctx, s.now())
			if err == nil && n > 0 {
				s.logger.Debug(ctx, "poll requests sent", logger.Int("count", n))
			}
			return err
		})
	})
	g.Go(func() error {
		return s.every(ctx, s.performanceEvery, "performance", func(ctx context.Context) error {
			now := s.now()
			if err := s.RecomputePerformance(ctx, now); err != nil {
				return err
			}
			return s.RecomputeWeights(ctx, now)
		})
	})
	g.Go(func() error {
		return s.every(ctx, s.weightsEvery, "weights", func(ctx context.Context) error {
			return s.RecomputeWeights(ctx, s.now())
		})
	})
	return g.Wait()
}

func (s *Service) every(ctx context.Context, d time.Duration, job string, fn func(context.Context) error) error {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				s.logger.Error(ctx, "scheduled job failed", logger.String("job", job), logger.Error(err))
			}
		}
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queueLen := s.queue.Len()
	stats := map[string]interface{}{
		"started":       s.started,
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"queueLength":   queueLen,
		"dedupeSize":    s.dedupeSize,
		"dedupeEntries": s.deduper.Size(),
	}
	if s.pool != nil {
		stats["processed"] = s.pool.Processed()
		stats["failed"] = s.pool.Failed()
	}
	metrics.UpdateQueueSize(queueLen)
	return stats
}

func (s *Service) event(ctx context.Context, id model.EventID) (model.Event, error) {
	e, err := s.store.Event(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("load event %s: %w", id, err)
	}
	return e, nil
}
