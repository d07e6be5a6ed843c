package repository

import (
	"context"
	"time"

	"StockPipe/internal/domain/models"
)

// eventProducer is satisfied by *kafka.Producer.
type eventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
	Close() error
}

// Event types carried in the envelope.
const (
	EventRunCompleted    = "run_completed"
	EventUniverseChanged = "universe_changed"
	EventFeaturesReady   = "features_ready"
)

// Topics names the Kafka topic of each event type.
type Topics struct {
	Runs     string
	Universe string
	Features string
}

// Event is the envelope of every published message.
type Event struct {
	Type      string    `json:"type"`
	RunDate   string    `json:"run_date"`
	EmittedAt time.Time `json:"emitted_at"`
	Payload   any       `json:"payload"`
}

// KafkaPublisher announces pipeline milestones on Kafka. Messages are keyed
// by run date so one day's events stay ordered within a partition.
type KafkaPublisher struct {
	producer eventProducer
	topics   Topics
	now      func() time.Time
}

func NewKafkaPublisher(producer eventProducer, topics Topics) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topics: topics, now: time.Now}
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, typ, date string, payload any) error {
	return p.producer.Publish(ctx, topic, []byte(date), Event{
		Type:      typ,
		RunDate:   date,
		EmittedAt: p.now().UTC(),
		Payload:   payload,
	})
}

func (p *KafkaPublisher) PublishRun(ctx context.Context, meta *models.RunMetadata) error {
	return p.publish(ctx, p.topics.Runs, EventRunCompleted, meta.RunDate, meta)
}

// PublishUniverse is a no-op when the universe did not change.
func (p *KafkaPublisher) PublishUniverse(ctx context.Context, diff models.UniverseDiff) error {
	if diff.TotalAdded == 0 && diff.TotalRemoved == 0 {
		return nil
	}
	return p.publish(ctx, p.topics.Universe, EventUniverseChanged, diff.Date, diff)
}

func (p *KafkaPublisher) PublishFeatures(ctx context.Context, meta *models.FeatureRunMetadata) error {
	return p.publish(ctx, p.topics.Features, EventFeaturesReady, meta.RunDate, meta)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher is used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishRun(context.Context, *models.RunMetadata) error { return nil }

func (NopPublisher) PublishUniverse(context.Context, models.UniverseDiff) error { return nil }

func (NopPublisher) PublishFeatures(context.Context, *models.FeatureRunMetadata) error { return nil }

func (NopPublisher) Close() error { return nil }
