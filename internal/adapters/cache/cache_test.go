package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	Convey("Given an in-process cache", t, func() {
		now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
		c := NewMemory(time.Minute)
		c.now = func() time.Time { return now }

		res := model.ConsensusResult{EventID: "e1", Market: model.MarketTwoWay, Probabilities: &model.Probabilities{Home: 0.6, Away: 0.4}}

		Convey("When nothing is cached", func() {
			_, err := c.Get(ctx, "e1")
			So(errors.Is(err, ErrCacheMiss), ShouldBeTrue)
		})

		Convey("When a result is cached", func() {
			So(c.Set(ctx, res), ShouldBeNil)

			got, err := c.Get(ctx, "e1")
			So(err, ShouldBeNil)
			So(got.Probabilities.Home, ShouldEqual, 0.6)

			Convey("And the TTL elapses", func() {
				now = now.Add(2 * time.Minute)
				_, err := c.Get(ctx, "e1")
				So(errors.Is(err, ErrCacheMiss), ShouldBeTrue)
			})

			Convey("And it is invalidated", func() {
				So(c.Invalidate(ctx, "e1"), ShouldBeNil)
				_, err := c.Get(ctx, "e1")
				So(errors.Is(err, ErrCacheMiss), ShouldBeTrue)
			})
		})
	})
}

func TestNopCache(t *testing.T) {
	Convey("Given the no-op cache", t, func() {
		var c ConsensusCache = Nop{}
		So(c.Set(context.Background(), model.ConsensusResult{EventID: "e1"}), ShouldBeNil)
		_, err := c.Get(context.Background(), "e1")
		So(errors.Is(err, ErrCacheMiss), ShouldBeTrue)
		So(c.Invalidate(context.Background(), "e1"), ShouldBeNil)
	})
}

func TestRedisCache(t *testing.T) {
	Convey("Given a Redis cache", t, func() {
		Convey("Then keys are namespaced by event", func() {
			So(consensusKey("e42"), ShouldEqual, "consensus:e42")
		})

		Convey("Then a zero TTL falls back to the default", func() {
			c := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), 0)
			defer func() { _ = c.Close() }()
			So(c.ttl, ShouldEqual, DefaultTTL)
		})
	})
}
