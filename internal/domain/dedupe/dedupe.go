// Package dedupe tracks ingested snapshot IDs so a redelivered snapshot is
// processed at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

// snapshotNamespace scopes derived snapshot IDs.
var snapshotNamespace = uuid.MustParse("6f1c3a52-0d7e-4b8a-9c2e-5a4f7b9d1e30")

// Deduper records seen snapshot IDs.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a failed ingest can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps IDs in insertion order and evicts the oldest once
// maxSize is reached. maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			d.order.Remove(oldest)
			delete(d.seen, oldest.Value.(string))
			d.size.Add(-1)
		}
	}
	d.seen[id] = d.order.PushBack(id)
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// SnapshotID derives a stable ID for a snapshot that arrived without one, so
// the same provider quote delivered twice maps to the same ID.
func SnapshotID(provider model.ProviderID, event model.EventID, m model.MarketType, capturedAt time.Time) string {
	key := string(provider) + "|" + string(event) + "|" + string(m) + "|" + capturedAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(snapshotNamespace, []byte(key)).String()
}
