// Package events publishes an ingestion-completed message to Kafka after each
// committed run.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/JonMunkholm/esg/internal/core"
	"github.com/JonMunkholm/esg/internal/logging"
)

// IngestionCompleted is the message body.
type IngestionCompleted struct {
	IngestionID       uuid.UUID `json:"ingestion_id"`
	CompaniesInserted int       `json:"companies_inserted"`
	NewsInserted      int       `json:"news_inserted"`
	ReportsInserted   int       `json:"reports_inserted"`
	CompletedAt       time.Time `json:"completed_at"`
}

// PublisherConfig holds Kafka producer settings.
type PublisherConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Publisher sends ingestion events synchronously.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

// NewPublisher connects a sync producer to the configured brokers.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewPublisherWithProducer(producer, cfg.Topic), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic, now: time.Now}
}

// Publish sends one event keyed by ingestion id.
func (p *Publisher) Publish(result core.IngestionResult) error {
	body, err := json.Marshal(IngestionCompleted{
		IngestionID:       result.IngestionID,
		CompaniesInserted: result.CompaniesInserted,
		NewsInserted:      result.NewsInserted,
		ReportsInserted:   result.ReportsInserted,
		CompletedAt:       p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(result.IngestionID.String()),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Hook publishes after each commit. Failures are logged and never reach the
// run's caller.
func (p *Publisher) Hook() core.CommitHook {
	return func(ctx context.Context, run core.CommittedRun) {
		logger := logging.WithFields(ctx, "ingestion_id", run.Result.IngestionID, "topic", p.topic)
		if err := p.Publish(run.Result); err != nil {
			logger.Warn("failed to publish ingestion event", "error", err)
			return
		}
		logger.Debug("ingestion event published")
	}
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
