package service

import (
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/cache"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/stream"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/repository"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/consensus"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/polling"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/scoring"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/weighting"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the snapshot queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many snapshot IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the persistence backend.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithCache sets the consensus cache.
func WithCache(c cache.ConsensusCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithPublisher sets where consensus updates and poll requests are sent.
func WithPublisher(p stream.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithConsensusConfig(c consensus.Config) Option {
	return func(s *Service) { s.consensusCfg = c }
}

func WithScoringConfig(c scoring.Config) Option {
	return func(s *Service) { s.scoringCfg = c }
}

func WithWeightingConfig(c weighting.Config) Option {
	return func(s *Service) { s.weightingCfg = c }
}

func WithPollingPolicy(p polling.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithRecomputeParallelism bounds how many (league, market) groups are
// recomputed at once.
func WithRecomputeParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithSchedule sets the periods of the background jobs driven by Run.
// Non-positive values keep the defaults.
func WithSchedule(poll, performance, weights time.Duration) Option {
	return func(s *Service) {
		if poll > 0 {
			s.pollEvery = poll
		}
		if performance > 0 {
			s.performanceEvery = performance
		}
		if weights > 0 {
			s.weightsEvery = weights
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
