// Package worker drains the snapshot queue and hands each snapshot to a
// Processor.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
	"github.com/robsheahan/tipping-aggregator-web/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	poolShutdownTimeout     = 30 * time.Second
)

// Processor persists a snapshot and refreshes everything derived from it.
type Processor interface {
	Process(ctx context.Context, s model.Snapshot) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, s model.Snapshot) error

func (f ProcessorFunc) Process(ctx context.Context, s model.Snapshot) error { return f(ctx, s) }

// Queue is where workers receive snapshots from.
type Queue interface {
	Dequeue() <-chan model.Snapshot
}

// InMemoryWorker processes snapshots until the queue closes or ctx ends.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string
	logger    logger.Logger

	processed *atomic.Int64
	failed    *atomic.Int64
	done      chan struct{}
}

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(q Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "worker",
		processed: &atomic.Int64{},
		failed:    &atomic.Int64{},
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Named(w.name)
	}
	return w
}

// Run loops until the queue channel is closed and drained, or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-items:
			if !ok {
				return
			}
			w.process(ctx, s)
		}
	}
}

// Done is closed once Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, s model.Snapshot) { //nolint:gocritic // snapshots travel by value
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.processor.Process(ctx, s); err != nil {
		w.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "process")
		w.logger.Error(ctx, "snapshot processing failed",
			logger.String("snapshot_id", s.ID),
			logger.String("event_id", string(s.EventID)),
			logger.String("provider_id", string(s.ProviderID)),
			logger.Error(err),
		)
		return
	}
	w.processed.Add(1)
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processed atomic.Int64
	failed    atomic.Int64
	started   sync.Once
	logger    logger.Logger
}

// NewPool creates workerCount workers. A count below 1 uses twice the CPU count.
func NewPool(workerCount int, q Queue, p Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Named("worker-pool"),
	}
	for i := range pool.workers {
		w := NewInMemoryWorker(q, p, WithName("worker-"+strconv.Itoa(i)))
		w.processed = &pool.processed
		w.failed = &pool.failed
		pool.workers[i] = w
	}
	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start launches every worker. Calling it twice has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.started.Do(func() {
		for _, w := range p.workers {
			go w.Run(ctx)
		}
		p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
	})
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns how many snapshots were processed successfully.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns how many snapshots failed processing.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Shutdown closes the queue when it supports it and waits for the workers to
// drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d: %w", i, shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
