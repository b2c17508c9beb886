package events

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"gorm.io/gorm"

	"github.com/rsclabs/valve-backend/internal/logger"
	"github.com/rsclabs/valve-backend/internal/models"
)

const outboxBatchSize = 100

// Producer drains the deployment event outbox into Kafka. Rows are marked
// published only after the broker acknowledges, so a crash between send
// and mark can duplicate a record; consumers are expected to dedupe.
type Producer struct {
	db       *gorm.DB
	producer sarama.SyncProducer
	interval time.Duration
	log      *logger.Logger
}

func NewProducer(db *gorm.DB, brokers []string, interval time.Duration, log *logger.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return &Producer{db: db, producer: producer, interval: interval, log: log}, nil
}

// Run drains the outbox on a fixed interval until the context is canceled.
func (p *Producer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Drain(ctx); err != nil {
				p.log.Error("failed to drain outbox", "error", err)
			}
		}
	}
}

// Drain publishes every unpublished outbox row, oldest first.
func (p *Producer) Drain(ctx context.Context) error {
	for {
		var records []models.DeploymentEventRecord
		err := p.db.WithContext(ctx).
			Where("published_at IS NULL").
			Order("id ASC").
			Limit(outboxBatchSize).
			Find(&records).Error
		if err != nil {
			return fmt.Errorf("failed to load outbox records: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		for _, record := range records {
			_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
				Topic: record.Topic,
				Key:   sarama.StringEncoder(record.DeploymentID),
				Value: sarama.ByteEncoder(record.Payload),
			})
			if err != nil {
				return fmt.Errorf("failed to publish outbox record %d: %w", record.ID, err)
			}
			now := time.Now()
			err = p.db.WithContext(ctx).
				Model(&models.DeploymentEventRecord{}).
				Where("id = ?", record.ID).
				Update("published_at", now).Error
			if err != nil {
				return fmt.Errorf("failed to mark outbox record %d published: %w", record.ID, err)
			}
			p.log.Debug("published deployment record", "topic", record.Topic, "deployment_id", record.DeploymentID)
		}
	}
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
