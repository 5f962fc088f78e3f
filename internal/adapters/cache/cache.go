// Package cache keeps recently computed consensus results close to readers.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

// ErrCacheMiss is returned when no cached result exists.
var ErrCacheMiss = errors.New("cache miss")

// ConsensusCache stores consensus results per event.
type ConsensusCache interface {
	Get(ctx context.Context, id model.EventID) (model.ConsensusResult, error)
	Set(ctx context.Context, r model.ConsensusResult) error
	Invalidate(ctx context.Context, id model.EventID) error
}

// Nop never caches anything.
type Nop struct{}

func (Nop) Get(context.Context, model.EventID) (model.ConsensusResult, error) {
	return model.ConsensusResult{}, ErrCacheMiss
}

func (Nop) Set(context.Context, model.ConsensusResult) error { return nil }

func (Nop) Invalidate(context.Context, model.EventID) error { return nil }

type memoryEntry struct {
	result  model.ConsensusResult
	expires time.Time
}

// Memory is an in-process TTL cache.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[model.EventID]memoryEntry
}

// NewMemory returns an in-process cache whose entries expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[model.EventID]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, id model.EventID) (model.ConsensusResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return model.ConsensusResult{}, ErrCacheMiss
	}
	if m.now().After(e.expires) {
		delete(m.entries, id)
		return model.ConsensusResult{}, ErrCacheMiss
	}
	return e.result, nil
}

func (m *Memory) Set(_ context.Context, r model.ConsensusResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[r.EventID] = memoryEntry{result: r, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, id model.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}
