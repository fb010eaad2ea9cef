// Package feedback proposes query-expansion terms from the top-ranked
// documents of an initial search (pseudo-relevance feedback).
package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/scoring/tfidf"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
)

// Undefined marks an unset QueryTerm index or consensus count.
const Undefined = -1

// DefaultSignificanceThreshold is the largest term-selection value accepted
// as an expansion term.
const DefaultSignificanceThreshold = 1e-4

// QueryTerm is one proposed expansion term.
type QueryTerm struct {
	Text   string  `json:"term"`
	Index  int     `json:"index"`
	Weight float64 `json:"weight"`
	// Rt is the number of the R examined documents that contain the term.
	Rt int `json:"rt"`
	R  int `json:"r"`
	// NumConsensusDocs is the number of other examined documents that
	// contain the term, set only by consensus expansion.
	NumConsensusDocs int `json:"numConsensusDocs"`
}

// NewQueryTerm builds a QueryTerm with rt clamped to [0, r].
func NewQueryTerm(text string, index int, weight float64, rt, r int) QueryTerm {
	return QueryTerm{
		Text:             text,
		Index:            index,
		Weight:           weight,
		Rt:               max(0, min(rt, r)),
		R:                r,
		NumConsensusDocs: Undefined,
	}
}

// Expander proposes up to maxTerms expansion terms from docs, never repeating
// a term of initial. Results are ordered most relevant first.
type Expander interface {
	Expand(ctx context.Context, docs []int, initial []string, maxTerms int) ([]QueryTerm, error)
	// ExpandConsensus keeps only terms found in more than consensusDocs of
	// docs. consensusDocs <= 0 selects the default of max(1, len(docs)/10).
	ExpandConsensus(ctx context.Context, docs []int, initial []string, maxTerms int, consensusDocs int) ([]QueryTerm, error)
}

// Strategy selects an Expander implementation.
type Strategy int

const (
	StrategyTfIdf Strategy = iota
	StrategyTermSelection
)

// ParseStrategy maps a configuration or request value to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tfidf", "tf-idf":
		return StrategyTfIdf, nil
	case "tsv", "term-selection":
		return StrategyTermSelection, nil
	default:
		return 0, fmt.Errorf("unknown expansion strategy %q", name)
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategyTfIdf:
		return "tfidf"
	case StrategyTermSelection:
		return "tsv"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Options tune the expanders built by New.
type Options struct {
	SignificanceThreshold float64
}

// New returns the Expander for strategy.
func New(strategy Strategy, pool *tfidf.Pool, dict termdict.Dictionary, opts Options) (Expander, error) {
	switch strategy {
	case StrategyTfIdf:
		return NewTfIdf(pool, dict), nil
	case StrategyTermSelection:
		return NewTermSelection(pool, dict, opts.SignificanceThreshold), nil
	default:
		return nil, fmt.Errorf("unknown expansion strategy %d", int(strategy))
	}
}

func consensusThreshold(numDocs, requested int) int {
	if requested > 0 {
		return requested
	}
	return max(1, numDocs/10)
}

func excludedSet(initial []string) map[string]struct{} {
	set := make(map[string]struct{}, len(initial))
	for _, term := range initial {
		set[term] = struct{}{}
	}
	return set
}

// evaluation is the shared first step of both strategies.
type evaluation struct {
	scores []float64
	numDoc []int
}

func evaluate(ctx context.Context, c *tfidf.Calculator, docs []int) (evaluation, error) {
	numDoc := make([]int, c.Stats().NumberOfTerms())
	scores, err := c.Evaluate(ctx, docs, nil, numDoc)
	if err != nil {
		return evaluation{}, err
	}
	return evaluation{scores: scores, numDoc: numDoc}, nil
}
