// Package expansion serves pseudo-relevance feedback over a built index:
// given a query and the ids of its top-ranked documents it proposes
// expansion terms, plus mixed-case alternatives for short lowercase query
// terms.
package expansion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/scoring/feedback"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/scoring/tfidf"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/tracing"
)

// Request asks for expansion terms of Query given its top Documents.
type Request struct {
	Query         string   `json:"query"`
	Documents     []string `json:"documents"`
	Strategy      string   `json:"strategy,omitempty"`
	MaxTerms      int      `json:"max_terms,omitempty"`
	Consensus     bool     `json:"consensus,omitempty"`
	ConsensusDocs int      `json:"consensus_docs,omitempty"`
}

type Result struct {
	Query        string               `json:"query"`
	Strategy     string               `json:"strategy"`
	InitialTerms []string             `json:"initial_terms"`
	Documents    int                  `json:"documents"`
	Missing      []string             `json:"missing_documents,omitempty"`
	Terms        []feedback.QueryTerm `json:"terms"`
	Alternatives map[string][]string  `json:"alternatives,omitempty"`
}

type Service struct {
	index     *indexer.Index
	expanders map[feedback.Strategy]feedback.Expander
	strategy  feedback.Strategy
	cfg       config.ExpansionConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewService scores against source, or against the index's own segment when
// source is nil.
func NewService(ix *indexer.Index, source termdict.VectorSource, cfg config.ExpansionConfig) (*Service, error) {
	strategy, err := feedback.ParseStrategy(cfg.DefaultStrategy)
	if err != nil {
		return nil, err
	}
	if source == nil {
		source = ix.Segment
	}
	pool := tfidf.NewPool(tfidf.NewCorpusStats(ix.Segment), source, ix.Transform)
	s := &Service{
		index:     ix,
		expanders: make(map[feedback.Strategy]feedback.Expander, 2),
		strategy:  strategy,
		cfg:       cfg,
		logger:    slog.Default().With("component", "expansion"),
	}
	for _, st := range []feedback.Strategy{feedback.StrategyTfIdf, feedback.StrategyTermSelection} {
		e, err := feedback.New(st, pool, ix.Segment, feedback.Options{SignificanceThreshold: cfg.SignificanceThreshold})
		if err != nil {
			return nil, err
		}
		s.expanders[st] = e
	}
	return s, nil
}

// WithMetrics records expansion and suggestion metrics on m.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	if m != nil {
		m.VocabularySize.Set(float64(s.index.Segment.NumberOfTerms()))
	}
	return s
}

// Normalize applies defaults and limits to req. Documents are de-duplicated
// in order and capped at the configured maximum.
func (s *Service) Normalize(req Request) (Request, error) {
	req.Query = strings.Join(strings.Fields(req.Query), " ")
	if req.Query == "" {
		return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query is required")
	}
	strategy := s.strategy
	if req.Strategy != "" {
		st, err := feedback.ParseStrategy(req.Strategy)
		if err != nil {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error())
		}
		strategy = st
	}
	req.Strategy = strategy.String()

	switch {
	case req.MaxTerms < 0:
		return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "max_terms must not be negative")
	case req.MaxTerms == 0:
		req.MaxTerms = s.cfg.DefaultMaxTerms
	case req.MaxTerms > s.cfg.MaxTerms:
		req.MaxTerms = s.cfg.MaxTerms
	}
	if req.ConsensusDocs < 0 {
		return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "consensus_docs must not be negative")
	}
	if req.ConsensusDocs == 0 && req.Consensus {
		req.ConsensusDocs = s.cfg.ConsensusDocsThreshold
	}

	seen := make(map[string]struct{}, len(req.Documents))
	docs := make([]string, 0, len(req.Documents))
	for _, id := range req.Documents {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		docs = append(docs, id)
	}
	if len(docs) == 0 {
		return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "at least one document is required")
	}
	if len(docs) > s.cfg.MaxDocuments {
		docs = docs[:s.cfg.MaxDocuments]
	}
	req.Documents = docs
	return req, nil
}

// Expand proposes expansion terms for req.
func (s *Service) Expand(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req, err := s.Normalize(req)
	if err != nil {
		return nil, err
	}
	strategy, _ := feedback.ParseStrategy(req.Strategy)

	ctx, span := tracing.Start(ctx, "expansion.expand")
	defer span.End()
	span.SetAttr("strategy", req.Strategy)
	span.SetAttr("documents", len(req.Documents))

	result, err := s.expand(ctx, req, strategy)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(result.Terms) == 0:
		outcome = "empty"
	}
	if s.metrics != nil {
		s.metrics.ExpansionsTotal.WithLabelValues(req.Strategy, outcome).Inc()
		if err == nil {
			s.metrics.ExpansionTermsCount.WithLabelValues(req.Strategy).Observe(float64(len(result.Terms)))
		}
	}
	span.SetAttr("outcome", outcome)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("expansion computed",
		"strategy", req.Strategy,
		"documents", result.Documents,
		"terms", len(result.Terms),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (s *Service) expand(ctx context.Context, req Request, strategy feedback.Strategy) (*Result, error) {
	docs := make([]int, 0, len(req.Documents))
	var missing []string
	for _, id := range req.Documents {
		doc, ok := s.index.Segment.DocIndex(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound,
			"none of the %d documents is indexed", len(req.Documents))
	}

	initial := uniqueTerms(tokenizer.Terms(req.Query, s.index.Processor))
	expander := s.expanders[strategy]

	_, scoreSpan := tracing.Start(ctx, "expansion.score")
	var terms []feedback.QueryTerm
	var err error
	if req.Consensus {
		terms, err = expander.ExpandConsensus(ctx, docs, initial, req.MaxTerms, req.ConsensusDocs)
	} else {
		terms, err = expander.Expand(ctx, docs, initial, req.MaxTerms)
	}
	scoreSpan.End()
	if err != nil {
		return nil, fmt.Errorf("expanding with %s: %w", strategy, err)
	}

	result := &Result{
		Query:        req.Query,
		Strategy:     req.Strategy,
		InitialTerms: initial,
		Documents:    len(docs),
		Missing:      missing,
		Terms:        terms,
	}
	for _, term := range initial {
		if alts := s.index.CaseStore.Suggest(term); len(alts) > 0 {
			if result.Alternatives == nil {
				result.Alternatives = make(map[string][]string)
			}
			result.Alternatives[term] = alts
		}
	}
	return result, nil
}

// Suggest returns the mixed-case spellings indexed for term.
func (s *Service) Suggest(term string) []string {
	alts := s.index.CaseStore.Suggest(strings.TrimSpace(term))
	if s.metrics != nil {
		outcome := "miss"
		if len(alts) > 0 {
			outcome = "hit"
		}
		s.metrics.SuggestionsTotal.WithLabelValues(outcome).Inc()
	}
	return alts
}

func (s *Service) IndexStats() indexer.Stats {
	return s.index.Stats()
}

// Close releases the index. The vector source is owned by the caller.
func (s *Service) Close() error {
	return s.index.Close()
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
