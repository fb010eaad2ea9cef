package feedback

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/scoring/tfidf"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
)

// consensusOverFetch widens the candidate pool before the consensus filter.
const consensusOverFetch = 100

// TfIdf ranks candidate terms by their tf-idf over the feedback documents,
// largest first.
type TfIdf struct {
	pool   *tfidf.Pool
	dict   termdict.Dictionary
	logger *slog.Logger
}

func NewTfIdf(pool *tfidf.Pool, dict termdict.Dictionary) *TfIdf {
	return &TfIdf{
		pool:   pool,
		dict:   dict,
		logger: slog.Default().With("component", "feedback", "strategy", StrategyTfIdf.String()),
	}
}

func (e *TfIdf) Expand(ctx context.Context, docs []int, initial []string, maxTerms int) ([]QueryTerm, error) {
	if maxTerms <= 0 {
		return []QueryTerm{}, nil
	}
	c := e.pool.Get()
	defer e.pool.Put(c)

	ev, err := evaluate(ctx, c, docs)
	if err != nil {
		return nil, err
	}
	best := tfidf.BestScoresFavorLarge(ev.scores, maxTerms+len(initial))
	excluded := excludedSet(initial)
	out := make([]QueryTerm, 0, maxTerms)
	for _, t := range best {
		if len(out) == maxTerms {
			break
		}
		text := e.dict.TermAsString(t)
		if _, skip := excluded[text]; skip {
			continue
		}
		out = append(out, NewQueryTerm(text, t, ev.scores[t], ev.numDoc[t], len(docs)))
	}
	return out, nil
}

func (e *TfIdf) ExpandConsensus(ctx context.Context, docs []int, initial []string, maxTerms int, consensusDocs int) ([]QueryTerm, error) {
	if len(docs) == 1 {
		return e.Expand(ctx, docs, initial, maxTerms)
	}
	if maxTerms <= 0 {
		return []QueryTerm{}, nil
	}
	c := e.pool.Get()
	defer e.pool.Put(c)

	ev, err := evaluate(ctx, c, docs)
	if err != nil {
		return nil, err
	}
	threshold := consensusThreshold(len(docs), consensusDocs)
	best := tfidf.BestScoresFavorLarge(ev.scores, consensusOverFetch*(maxTerms+len(initial)))
	excluded := excludedSet(initial)
	out := make([]QueryTerm, 0, maxTerms)
	for _, t := range best {
		if len(out) == maxTerms {
			break
		}
		if ev.numDoc[t] <= threshold {
			continue
		}
		text := e.dict.TermAsString(t)
		if _, skip := excluded[text]; skip {
			continue
		}
		qt := NewQueryTerm(text, t, ev.scores[t], ev.numDoc[t], len(docs))
		// discount the document the term came from
		qt.NumConsensusDocs = ev.numDoc[t] - 1
		out = append(out, qt)
	}
	e.logger.Debug("consensus expansion",
		"docs", len(docs),
		"threshold", threshold,
		"candidates", len(best),
		"accepted", len(out),
	)
	return out, nil
}
