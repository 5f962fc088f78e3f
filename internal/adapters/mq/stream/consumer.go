// Package stream connects the service to Kafka: snapshots come in, consensus
// updates and poll requests go out.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/queue"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
	"github.com/robsheahan/tipping-aggregator-web/pkg/metrics"
)

const (
	readRetryDelay  = 500 * time.Millisecond
	ingestRetryBase = 100 * time.Millisecond
	ingestRetryMax  = 5 * time.Second
)

// Ingester accepts decoded snapshots.
type Ingester interface {
	Ingest(ctx context.Context, s model.Snapshot) (duplicate bool, err error)
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderConfig configures NewReader.
type ReaderConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader builds a consumer-group reader. Offsets are committed by the
// consumer once a message has been handled.
func NewReader(cfg ReaderConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}

// Consumer reads snapshot messages and passes them to an Ingester.
type Consumer struct {
	reader    MessageReader
	ingester  Ingester
	topic     string
	logger    logger.Logger
	retryBase time.Duration
	retryMax  time.Duration
}

// NewConsumer creates a consumer for topic.
func NewConsumer(r MessageReader, in Ingester, topic string) *Consumer {
	return &Consumer{
		reader:    r,
		ingester:  in,
		topic:     topic,
		logger:    logger.Named("stream-consumer"),
		retryBase: ingestRetryBase,
		retryMax:  ingestRetryMax,
	}
}

// Run consumes until ctx is cancelled or the ingest queue is closed.
// A message is committed once it is enqueued, found to be a duplicate or
// rejected as malformed. A full queue is retried with backoff, so the
// offset never moves past a snapshot that was not taken.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn(ctx, "kafka fetch failed", logger.Error(err))
			metrics.RecordStreamMessage(c.topic, "read_error")
			if err := sleep(ctx, readRetryDelay); err != nil {
				return err
			}
			continue
		}

		if err := c.handle(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The message is redelivered and then dropped as a duplicate.
			c.logger.Warn(ctx, "kafka commit failed",
				logger.Int64("offset", m.Offset),
				logger.Error(err),
			)
			metrics.RecordStreamMessage(c.topic, "commit_error")
		}
	}
}

// handle returns nil when m may be committed.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	s, err := DecodeSnapshot(m.Value)
	if err != nil {
		c.logger.Warn(ctx, "invalid snapshot message",
			logger.String("key", string(m.Key)),
			logger.Int64("offset", m.Offset),
			logger.Error(err),
		)
		metrics.RecordStreamMessage(c.topic, "malformed")
		metrics.RecordSnapshotRejected("malformed")
		return nil
	}

	delay := c.retryBase
	for {
		dup, err := c.ingester.Ingest(ctx, s)
		switch {
		case err == nil && dup:
			metrics.RecordStreamMessage(c.topic, "duplicate")
			return nil
		case err == nil:
			metrics.RecordStreamMessage(c.topic, "ok")
			return nil
		case errors.Is(err, queue.ErrFull):
			metrics.RecordStreamMessage(c.topic, "backpressure")
			c.logger.Debug(ctx, "ingest queue full, retrying",
				logger.String("snapshot_id", s.ID),
				logger.Duration("delay", delay),
			)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			delay = min(2*delay, c.retryMax)
		case errors.Is(err, queue.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("ingest snapshot %s: %w", s.ID, err)
		default:
			// Anything else rejects the snapshot itself.
			c.logger.Error(ctx, "snapshot rejected",
				logger.String("snapshot_id", s.ID),
				logger.Error(err),
			)
			metrics.RecordStreamMessage(c.topic, "rejected")
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
