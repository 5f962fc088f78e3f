package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/pkg/metrics"
)

// Publisher announces consensus updates and poll requests.
type Publisher interface {
	PublishConsensus(ctx context.Context, r model.ConsensusResult) error
	PublishPollRequests(ctx context.Context, reqs []PollRequest) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a writer that picks the topic per message.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

// KafkaPublisher writes JSON messages keyed by event ID.
type KafkaPublisher struct {
	writer         MessageWriter
	consensusTopic string
	pollTopic      string
	now            func() time.Time
}

// NewKafkaPublisher creates a publisher over w.
func NewKafkaPublisher(w MessageWriter, consensusTopic, pollTopic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, consensusTopic: consensusTopic, pollTopic: pollTopic, now: time.Now}
}

func (p *KafkaPublisher) PublishConsensus(ctx context.Context, r model.ConsensusResult) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode consensus %s: %w", r.EventID, err)
	}
	msg := kafka.Message{Topic: p.consensusTopic, Key: []byte(r.EventID), Value: b, Time: p.now()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordStreamMessage(p.consensusTopic, "write_error")
		return fmt.Errorf("publish consensus %s: %w", r.EventID, err)
	}
	metrics.RecordStreamMessage(p.consensusTopic, "ok")
	return nil
}

func (p *KafkaPublisher) PublishPollRequests(ctx context.Context, reqs []PollRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(reqs))
	for _, r := range reqs {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode poll request %s: %w", r.EventID, err)
		}
		msgs = append(msgs, kafka.Message{Topic: p.pollTopic, Key: []byte(r.EventID), Value: b, Time: p.now()})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		metrics.RecordStreamMessage(p.pollTopic, "write_error")
		return fmt.Errorf("publish %d poll requests: %w", len(reqs), err)
	}
	for range reqs {
		metrics.RecordPollRequest()
	}
	metrics.RecordStreamMessage(p.pollTopic, "ok")
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops everything.
type NopPublisher struct{}

func (NopPublisher) PublishConsensus(context.Context, model.ConsensusResult) error { return nil }

func (NopPublisher) PublishPollRequests(context.Context, []PollRequest) error { return nil }

func (NopPublisher) Close() error { return nil }
