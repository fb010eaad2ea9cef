package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	input := flag.String("input", "", "JSON-lines file of documents to index ('-' for stdin); empty consumes from kafka")
	idle := flag.Duration("idle", 30*time.Second, "stop consuming after this long without a message")
	publish := flag.Bool("publish", true, "announce the built index on the index-complete topic")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *input, *idle, *publish); err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer stopped")
}

func run(ctx context.Context, cfg *config.Config, input string, idle time.Duration, publish bool) error {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port, "indexer")
		defer shutdown(context.Background())
	}

	engine, err := indexer.NewEngine(cfg.Indexer)
	if err != nil {
		return err
	}
	engine.WithMetrics(m)
	slog.Info("starting indexer",
		"data_dir", cfg.Indexer.DataDir,
		"base_name", cfg.Indexer.BaseName,
		"processor", engine.Processor().String(),
	)

	if input != "" {
		if err := loadFile(engine, input); err != nil {
			return err
		}
	} else {
		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, consumer.HandleMessage(engine)).
			StopWhenIdle(idle)
		slog.Info("consuming documents from kafka",
			"topic", cfg.Kafka.Topics.DocumentIngest,
			"group", cfg.Kafka.ConsumerGroup,
			"idle", idle,
		)
		if err := consumer.New(kc).Start(ctx); err != nil {
			return fmt.Errorf("consuming documents: %w", err)
		}
	}

	ix, err := engine.Build()
	if err != nil {
		return err
	}
	defer ix.Close()
	stats := ix.Stats()
	slog.Info("index built",
		"segment", ix.Segment.Path(),
		"documents", stats.Documents,
		"terms", stats.Terms,
		"transform_size", stats.TransformSize,
		"case_anchors", stats.CaseAnchors,
	)

	if cfg.DocStore.Export {
		if err := export(ctx, cfg, ix); err != nil {
			return err
		}
	}
	if publish {
		return announce(ctx, cfg, ix)
	}
	return nil
}

func loadFile(engine *indexer.Engine, path string) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}
	res, err := engine.LoadJSONL(r)
	slog.Info("documents loaded",
		"input", path,
		"indexed", res.Indexed,
		"invalid", res.Invalid,
		"duplicates", res.Duplicates,
	)
	return err
}

func export(ctx context.Context, cfg *config.Config, ix *indexer.Index) error {
	store, err := docstore.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s doc store: %w", cfg.DocStore.Backend, err)
	}
	defer store.Close()
	return docstore.Export(ctx, ix.Segment, store)
}

func announce(ctx context.Context, cfg *config.Config, ix *indexer.Index) error {
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()
	event := ix.BuiltEvent()
	err := resilience.Retry(ctx, "publish index-built", resilience.Backoff{Attempts: 5, Initial: time.Second}, func(ctx context.Context) error {
		return producer.Publish(ctx, kafka.Event{Key: event.BaseName, Value: event})
	})
	if err != nil {
		return err
	}
	slog.Info("index announced", "topic", cfg.Kafka.Topics.IndexComplete)
	return nil
}
