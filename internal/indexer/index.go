package indexer

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/caseinsensitive"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

// Index is a built index opened for querying.
type Index struct {
	Segment   *segment.Reader
	CaseStore *caseinsensitive.Store
	Transform termdict.Transform
	Processor tokenizer.Processor
	BaseName  string
}

// Stats summarises a built index.
type Stats struct {
	BaseName      string `json:"base_name"`
	Documents     int    `json:"documents"`
	Terms         int    `json:"terms"`
	Tokens        int64  `json:"tokens"`
	TransformSize int    `json:"transform_size"`
	CaseAnchors   int    `json:"case_anchors"`
	Processor     string `json:"processor"`
}

// Open loads the index written by Build under cfg.DataDir. A missing
// transform file falls back to iterating every term; a missing case store
// leaves Suggest empty.
func Open(cfg config.IndexerConfig) (*Index, error) {
	logger := slog.Default().With("component", "indexer")
	p, err := tokenizer.ParseProcessor(cfg.TermProcessor)
	if err != nil {
		return nil, err
	}
	path := segment.Path(cfg.DataDir, cfg.BaseName)
	reader, err := segment.OpenReader(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("opening %s: %w", path, apperrors.ErrIndexNotBuilt)
	}
	if err != nil {
		return nil, err
	}

	var transform termdict.Transform
	f, err := os.Open(transformPath(cfg))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("term transform missing, scoring every term", "path", transformPath(cfg))
		transform = termdict.IdentityTransform(reader.NumberOfTerms())
	case err != nil:
		reader.Close()
		return nil, fmt.Errorf("opening transform: %w", err)
	default:
		subset, err := termdict.ReadSubsetTransform(f)
		f.Close()
		if err != nil {
			reader.Close()
			return nil, err
		}
		transform = subset
	}

	store := caseinsensitive.NewEmpty(reader, p)
	if cfg.CaseInsensitive {
		store = caseinsensitive.Load(cfg.DataDir, cfg.BaseName, reader, p)
	}
	ix := &Index{
		Segment:   reader,
		CaseStore: store,
		Transform: transform,
		Processor: p,
		BaseName:  cfg.BaseName,
	}
	logger.Info("index opened",
		"segment", path,
		"docs", reader.DocumentCount(),
		"terms", reader.NumberOfTerms(),
		"transform_size", transform.TransformedSize(),
	)
	return ix, nil
}

func (ix *Index) Stats() Stats {
	return Stats{
		BaseName:      ix.BaseName,
		Documents:     ix.Segment.DocumentCount(),
		Terms:         ix.Segment.NumberOfTerms(),
		Tokens:        ix.Segment.TokenCount(),
		TransformSize: ix.Transform.TransformedSize(),
		CaseAnchors:   ix.CaseStore.Anchors(),
		Processor:     ix.Processor.String(),
	}
}

func (ix *Index) Close() error {
	return ix.Segment.Close()
}
