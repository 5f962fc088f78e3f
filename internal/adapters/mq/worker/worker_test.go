package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/queue"
	worker "github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/worker"
	model "github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (p *recordingProcessor) Process(_ context.Context, s model.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[s.ID] {
		return errors.New("store unavailable")
	}
	p.seen = append(p.seen, s.ID)
	return nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func snap(id string) model.Snapshot {
	return model.Snapshot{
		ID: id, ProviderID: "p1", EventID: "e1", Market: model.MarketTwoWay,
		CapturedAt: time.Now(), Probabilities: model.Probabilities{Home: 0.5, Away: 0.5},
	}
}

func TestPool(t *testing.T) {
	convey.Convey("Given a worker pool over a queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		proc := &recordingProcessor{fail: map[string]bool{"bad": true}}
		pool := worker.NewPool(4, q, proc)
		pool.Start(ctx)
		pool.Start(ctx)

		convey.Convey("When snapshots are enqueued and the pool shuts down", func() {
			for _, id := range []string{"a", "b", "bad", "c", "d"} {
				convey.So(q.Enqueue(ctx, snap(id)), convey.ShouldBeNil)
			}
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then every queued snapshot is drained", func() {
				convey.So(proc.count(), convey.ShouldEqual, 4)
				convey.So(pool.Processed(), convey.ShouldEqual, 4)
				convey.So(pool.Failed(), convey.ShouldEqual, 1)
				convey.So(pool.Size(), convey.ShouldEqual, 4)
			})

			convey.Convey("Then the queue refuses new snapshots", func() {
				convey.So(errors.Is(q.Enqueue(ctx, snap("late")), queue.ErrClosed), convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerStopsOnContext(t *testing.T) {
	convey.Convey("Given a single worker", t, func() {
		ch := make(chan model.Snapshot)
		q := chanQueue(ch)
		var calls int
		w := worker.NewInMemoryWorker(q, worker.ProcessorFunc(func(context.Context, model.Snapshot) error {
			calls++
			return nil
		}), worker.WithName("solo"))

		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)
		ch <- snap("a")
		cancel()

		convey.Convey("Then it exits when the context is cancelled", func() {
			select {
			case <-w.Done():
			case <-time.After(time.Second):
				t.Fatal("worker did not stop")
			}
			convey.So(calls, convey.ShouldEqual, 1)
		})
	})
}

type chanQueue chan model.Snapshot

func (c chanQueue) Dequeue() <-chan model.Snapshot { return c }
