// Package consumer reads ingest events from Kafka and adds them to the
// indexing engine.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/kafka"
)

// IndexConsumer wraps a Kafka consumer to drive the indexing pass.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start consumes until ctx is cancelled or the consumer goes idle.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// Indexer is satisfied by *indexer.Engine.
type Indexer interface {
	IndexDocument(docID string, title string, body string) error
}

var _ Indexer = (*indexer.Engine)(nil)

// HandleMessage returns a MessageHandler that indexes every ingest event.
// Undecodable, invalid and duplicate events are logged and acknowledged so
// they do not block the partition.
func HandleMessage(engine Indexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if err := validator.ValidateEvent(&event); err != nil {
			logger.Warn("skipping invalid ingest event",
				"doc_id", event.DocumentID,
				"error", err,
			)
			return nil
		}
		err = engine.IndexDocument(event.DocumentID, event.Title, event.Body)
		if errors.Is(err, apperrors.ErrDocumentExists) {
			logger.Warn("duplicate ingest event", "doc_id", event.DocumentID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
		}
		logger.Debug("document indexed", "doc_id", event.DocumentID)
		return nil
	}
}
