package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/kafka"
)

type eventProducer interface {
	publisher.EventPublisher
	Close() error
}

// newProducer is replaced in tests.
var newProducer = func(cfg config.KafkaConfig, topic string) eventProducer {
	return kafka.NewProducer(cfg, topic)
}

var publishCmd = &cobra.Command{
	Use:   "publish [file.jsonl]",
	Short: "Publish documents to the ingest topic",
	Long: `Reads one JSON document per line ({"document_id", "title", "body"}),
validates it and publishes it to the document-ingest topic consumed by the
indexer. Use '-' to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy the index's document vectors into the configured doc store",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(publishCmd, exportCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}

	producer := newProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	pub := publisher.New(producer)
	err = ingestion.ReadJSONL(r, func(event ingestion.IngestEvent) error {
		return pub.Add(ctx, event)
	})
	if err != nil {
		return err
	}
	if err := pub.Flush(ctx); err != nil {
		return err
	}
	published, rejected := pub.Counts()
	cmd.Printf("Published %d documents to %s (%d rejected)\n", published, cfg.Kafka.Topics.DocumentIngest, rejected)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ix, err := indexer.Open(cfg.Indexer)
	if err != nil {
		return err
	}
	defer ix.Close()
	store, err := docstore.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := docstore.Export(ctx, ix.Segment, store); err != nil {
		return err
	}
	cmd.Printf("Exported %d document vectors to %s\n", ix.Segment.DocumentCount(), cfg.DocStore.Backend)
	return nil
}
