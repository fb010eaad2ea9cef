package feedback

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/scoring/tfidf"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
)

// TermSelection ranks candidate terms by the Okapi term-selection value.
// Smaller values are more significant; only terms at or below the
// significance threshold are proposed.
type TermSelection struct {
	pool      *tfidf.Pool
	dict      termdict.Dictionary
	threshold float64
	logger    *slog.Logger
}

// NewTermSelection returns a TermSelection expander. A threshold <= 0
// selects DefaultSignificanceThreshold.
func NewTermSelection(pool *tfidf.Pool, dict termdict.Dictionary, threshold float64) *TermSelection {
	if threshold <= 0 {
		threshold = DefaultSignificanceThreshold
	}
	return &TermSelection{
		pool:      pool,
		dict:      dict,
		threshold: threshold,
		logger:    slog.Default().With("component", "feedback", "strategy", StrategyTermSelection.String()),
	}
}

func (e *TermSelection) Threshold() float64 { return e.threshold }

func (e *TermSelection) score(ctx context.Context, docs []int) (evaluation, error) {
	c := e.pool.Get()
	defer e.pool.Put(c)

	ev, err := evaluate(ctx, c, docs)
	if err != nil {
		return evaluation{}, err
	}
	tsv, err := c.TermSelectionValue(docs, ev.numDoc)
	if err != nil {
		return evaluation{}, err
	}
	ev.scores = tsv
	return ev, nil
}

func (e *TermSelection) collect(ev evaluation, best []int, docs []int, initial []string, maxTerms int, consensus bool) []QueryTerm {
	excluded := excludedSet(initial)
	out := make([]QueryTerm, 0, maxTerms)
	for _, t := range best {
		if len(out) == maxTerms {
			break
		}
		score := ev.scores[t]
		if score > e.threshold {
			continue
		}
		text := e.dict.TermAsString(t)
		if _, skip := excluded[text]; skip {
			continue
		}
		qt := NewQueryTerm(text, t, score, ev.numDoc[t], len(docs))
		if consensus {
			qt.NumConsensusDocs = ev.numDoc[t] - 1
		}
		out = append(out, qt)
	}
	return out
}

func (e *TermSelection) Expand(ctx context.Context, docs []int, initial []string, maxTerms int) ([]QueryTerm, error) {
	if maxTerms <= 0 {
		return []QueryTerm{}, nil
	}
	ev, err := e.score(ctx, docs)
	if err != nil {
		return nil, err
	}
	best := tfidf.BestScoresFavorSmall(ev.scores, maxTerms+len(initial))
	return e.collect(ev, best, docs, initial, maxTerms, false), nil
}

func (e *TermSelection) ExpandConsensus(ctx context.Context, docs []int, initial []string, maxTerms int, consensusDocs int) ([]QueryTerm, error) {
	if len(docs) == 1 {
		return e.Expand(ctx, docs, initial, maxTerms)
	}
	if maxTerms <= 0 {
		return []QueryTerm{}, nil
	}
	ev, err := e.score(ctx, docs)
	if err != nil {
		return nil, err
	}
	threshold := consensusThreshold(len(docs), consensusDocs)
	want := maxTerms + len(initial)

	// first pass over-fetches, second pass re-ranks the survivors
	candidates := tfidf.BestScoresFavorSmall(ev.scores, 2*want)
	filtered := make([]float64, len(ev.scores))
	for _, t := range candidates {
		if ev.numDoc[t] > threshold {
			filtered[t] = ev.scores[t]
		}
	}
	best := tfidf.BestScoresFavorSmall(filtered, want)
	out := e.collect(ev, best, docs, initial, maxTerms, true)
	e.logger.Debug("consensus expansion",
		"docs", len(docs),
		"threshold", threshold,
		"candidates", len(candidates),
		"accepted", len(out),
	)
	return out, nil
}
