// Package indexer runs an offline indexing pass: documents are tokenised into
// an in-memory corpus, then Build writes the segment, the term-subset
// transform and the case-insensitive store side by side in the data
// directory. Open loads the three back for query time.
package indexer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/caseinsensitive"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/metrics"
)

const transformExtension = ".terms"

type Engine struct {
	memIndex  *index.MemoryIndex
	writer    *segment.Writer
	processor tokenizer.Processor
	cfg       config.IndexerConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewEngine(cfg config.IndexerConfig) (*Engine, error) {
	p, err := tokenizer.ParseProcessor(cfg.TermProcessor)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	return &Engine{
		memIndex:  index.NewMemoryIndex(p),
		writer:    segment.NewWriter(cfg.DataDir),
		processor: p,
		cfg:       cfg,
		logger:    slog.Default().With("component", "indexer"),
	}, nil
}

// WithMetrics records indexing counters on m.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

func (e *Engine) IndexDocument(docID string, title string, body string) error {
	doc, err := e.memIndex.AddDocument(docID, title, body)
	if err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	e.logger.Debug("document indexed in memory",
		"doc_id", docID,
		"doc_index", doc,
		"terms", e.memIndex.NumberOfTerms(),
	)
	return nil
}

// DocumentCount is the number of documents added since the last Build.
func (e *Engine) DocumentCount() int {
	return e.memIndex.DocumentCount()
}

func (e *Engine) Processor() tokenizer.Processor {
	return e.processor
}

// Build persists everything indexed so far and returns the opened Index. The
// in-memory corpus is reset on success.
func (e *Engine) Build() (*Index, error) {
	ix, err := e.build()
	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		e.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	}
	return ix, err
}

func (e *Engine) build() (*Index, error) {
	start := time.Now()
	corpus := e.memIndex.Snapshot()
	if len(corpus.Vectors) == 0 {
		return nil, fmt.Errorf("building index: no documents: %w", apperrors.ErrInvalidInput)
	}

	path, err := e.writer.Write(e.cfg.BaseName, corpus)
	if err != nil {
		return nil, fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening new segment for reading: %w", err)
	}

	transform := termdict.SubsetByFrequency(reader, e.cfg.MinDocFrequency, e.cfg.MaxDocFraction)
	if err := writeTransform(transformPath(e.cfg), transform); err != nil {
		reader.Close()
		return nil, err
	}

	var store *caseinsensitive.Store
	if e.cfg.CaseInsensitive {
		store = caseinsensitive.BuildFromDictionary(reader, e.processor)
		if err := store.Save(e.cfg.DataDir, e.cfg.BaseName); err != nil {
			reader.Close()
			return nil, fmt.Errorf("saving case-insensitive store: %w", err)
		}
	} else {
		store = caseinsensitive.NewEmpty(reader, e.processor)
	}

	e.memIndex.Reset()
	ix := &Index{
		Segment:   reader,
		CaseStore: store,
		Transform: transform,
		Processor: e.processor,
		BaseName:  e.cfg.BaseName,
	}
	e.logger.Info("index built",
		"segment", path,
		"docs", reader.DocumentCount(),
		"terms", reader.NumberOfTerms(),
		"transform_size", transform.TransformedSize(),
		"case_anchors", store.Anchors(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ix, nil
}

func transformPath(cfg config.IndexerConfig) string {
	return filepath.Join(cfg.DataDir, cfg.BaseName+transformExtension)
}

func writeTransform(path string, t *termdict.SubsetTransform) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating transform file: %w", err)
	}
	defer f.Close()
	if _, err := t.WriteTo(f); err != nil {
		return fmt.Errorf("writing transform: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing transform: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming transform file: %w", err)
	}
	return nil
}
