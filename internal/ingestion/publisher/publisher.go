// Package publisher validates documents and publishes them as ingest events
// for a Kafka-driven indexing pass.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/kafka"
)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

const defaultBatchSize = 100

// Publisher batches validated ingest events onto a topic.
type Publisher struct {
	producer  EventPublisher
	batchSize int
	batch     []kafka.Event
	published int
	rejected  int
	logger    *slog.Logger
}

func New(producer EventPublisher) *Publisher {
	return &Publisher{
		producer:  producer,
		batchSize: defaultBatchSize,
		batch:     make([]kafka.Event, 0, defaultBatchSize),
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Add validates event and queues it, publishing a batch when full. Invalid
// events are logged and counted, not returned as errors.
func (p *Publisher) Add(ctx context.Context, event ingestion.IngestEvent) error {
	if err := validator.ValidateEvent(&event); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			p.rejected++
			p.logger.Warn("skipping invalid document", "doc_id", event.DocumentID, "error", err)
			return nil
		}
		return err
	}
	if event.IngestedAt.IsZero() {
		event.IngestedAt = time.Now().UTC()
	}
	p.batch = append(p.batch, kafka.Event{Key: event.DocumentID, Value: event})
	if len(p.batch) >= p.batchSize {
		return p.Flush(ctx)
	}
	return nil
}

// Flush publishes any queued events.
func (p *Publisher) Flush(ctx context.Context) error {
	if len(p.batch) == 0 {
		return nil
	}
	if err := p.producer.Publish(ctx, p.batch...); err != nil {
		return fmt.Errorf("publishing %d documents: %w", len(p.batch), err)
	}
	p.published += len(p.batch)
	p.logger.Debug("batch published", "count", len(p.batch), "total", p.published)
	p.batch = p.batch[:0]
	return nil
}

// Counts returns the number of published and rejected documents so far.
func (p *Publisher) Counts() (published, rejected int) {
	return p.published, p.rejected
}
