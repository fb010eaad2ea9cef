// Package tfidf scores terms over a set of documents. Evaluate produces a
// dense tf-idf vector, TermSelectionValue the Okapi term-selection value, and
// BestScoresFavorLarge/BestScoresFavorSmall pick the top entries of either.
//
// A score vector is indexed by term index and has one spare slot at the end.
// A zero entry means the term is absent from the evaluated documents; it is
// never a valid score.
package tfidf

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

// CorpusStats caches the document frequency of every term. It is read-only
// after construction and may be shared by any number of Calculators.
type CorpusStats struct {
	docFreq []int
	numDocs int
}

// NewCorpusStats reads the document frequency of every term in dict.
func NewCorpusStats(dict termdict.Dictionary) *CorpusStats {
	n := dict.NumberOfTerms()
	s := &CorpusStats{
		docFreq: make([]int, n),
		numDocs: dict.DocumentCount(),
	}
	for t := 0; t < n; t++ {
		s.docFreq[t] = dict.Frequency(t)
	}
	return s
}

func (s *CorpusStats) NumberOfTerms() int { return len(s.docFreq) }

func (s *CorpusStats) DocumentCount() int { return s.numDocs }

func (s *CorpusStats) Frequency(termIndex int) int {
	if termIndex < 0 || termIndex >= len(s.docFreq) {
		return 0
	}
	return s.docFreq[termIndex]
}

// Workspace is the term-frequency scratch buffer reused between calls. It
// has a single writer: the Calculator that owns it.
type Workspace struct {
	freqs []int
}

func NewWorkspace(numTerms int) *Workspace {
	return &Workspace{freqs: make([]int, numTerms+1)}
}

func (w *Workspace) reset() {
	clear(w.freqs)
}

// Calculator evaluates document sets against shared CorpusStats. A
// Calculator owns its Workspace and must not be used from more than one
// goroutine at a time; use a Pool to share scoring across goroutines.
type Calculator struct {
	stats     *CorpusStats
	source    termdict.VectorSource
	transform termdict.Transform
	ws        *Workspace
}

// NewCalculator returns a Calculator with its own Workspace. transform may be
// nil, in which case every scoring call fails with ErrNoTransform.
func NewCalculator(stats *CorpusStats, source termdict.VectorSource, transform termdict.Transform) *Calculator {
	return &Calculator{
		stats:     stats,
		source:    source,
		transform: transform,
		ws:        NewWorkspace(stats.NumberOfTerms()),
	}
}

func (c *Calculator) Stats() *CorpusStats { return c.stats }

// Evaluate accumulates the term frequencies of docs and returns the tf-idf
// score of every term that occurs in them, where tf is the term's share of
// all tokens in docs and idf is ln(N/df).
//
// When reference is non-nil, terms whose reference entry is zero are left at
// zero. When numDocForTerm is non-nil it receives, for every term, the number
// of docs that contain it; it must have at least NumberOfTerms entries and is
// added to, not overwritten.
func (c *Calculator) Evaluate(ctx context.Context, docs []int, reference []float64, numDocForTerm []int) ([]float64, error) {
	if c.transform == nil {
		return nil, apperrors.ErrNoTransform
	}
	n := c.stats.NumberOfTerms()
	if numDocForTerm != nil && len(numDocForTerm) < n {
		return nil, fmt.Errorf("numDocForTerm has %d entries, need %d: %w", len(numDocForTerm), n, apperrors.ErrInvalidInput)
	}

	c.ws.reset()
	sum := 0
	for _, doc := range docs {
		tokens, err := c.source.ReadTermFrequencies(ctx, doc, c.ws.freqs, numDocForTerm)
		if err != nil {
			return nil, fmt.Errorf("reading term frequencies of document %d: %w", doc, err)
		}
		sum += tokens
	}

	scores := make([]float64, n+1)
	if sum == 0 {
		return scores, nil
	}
	numDocs := float64(c.stats.DocumentCount())
	total := float64(sum)
	for i := 0; i < c.transform.TransformedSize(); i++ {
		t := c.transform.InitialTermIndex(i)
		if t < 0 || t >= n {
			continue
		}
		freq := c.ws.freqs[t]
		if freq == 0 {
			continue
		}
		if reference != nil && (t >= len(reference) || reference[t] == 0) {
			continue
		}
		df := c.stats.docFreq[t]
		if df == 0 {
			continue
		}
		scores[t] = float64(freq) / total * math.Log(numDocs/float64(df))
	}
	return scores, nil
}

// TermSelectionValue returns (nt/N)^rt * C(R, rt) for every term with a
// nonzero corpus frequency, where nt is the term's document frequency, N the
// corpus size, R = len(docs) and rt = numDocForTerm[t] clamped to R.
// numDocForTerm must have been filled by a prior Evaluate over the same docs.
// Smaller values mark more significant terms.
func (c *Calculator) TermSelectionValue(docs []int, numDocForTerm []int) ([]float64, error) {
	if c.transform == nil {
		return nil, apperrors.ErrNoTransform
	}
	n := c.stats.NumberOfTerms()
	if len(numDocForTerm) < n {
		return nil, fmt.Errorf("numDocForTerm has %d entries, need %d: %w", len(numDocForTerm), n, apperrors.ErrInvalidInput)
	}
	numDocs := float64(c.stats.DocumentCount())
	r := len(docs)

	tsv := make([]float64, n+1)
	for i := 0; i < c.transform.TransformedSize(); i++ {
		t := c.transform.InitialTermIndex(i)
		if t < 0 || t >= n {
			continue
		}
		nt := c.stats.docFreq[t]
		if nt == 0 {
			continue
		}
		rt := min(numDocForTerm[t], r)
		tsv[t] = math.Pow(float64(nt)/numDocs, float64(rt)) * Binomial(r, rt)
	}
	return tsv, nil
}

// Score is the dot product of a single-document vector si with a reference
// vector, taken over the transform's terms where si is nonzero.
func (c *Calculator) Score(si, reference []float64) (float64, error) {
	if c.transform == nil {
		return 0, apperrors.ErrNoTransform
	}
	var total float64
	for i := 0; i < c.transform.TransformedSize(); i++ {
		t := c.transform.InitialTermIndex(i)
		if t < 0 || t >= len(si) || t >= len(reference) || si[t] == 0 {
			continue
		}
		total += si[t] * reference[t]
	}
	return total, nil
}

// Binomial returns C(n, k) computed multiplicatively. It returns 0 when k is
// outside [0, n].
func Binomial(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	k = min(k, n-k)
	result := 1.0
	for i := 1; i <= k; i++ {
		result = result * float64(n-k+i) / float64(i)
	}
	return result
}

// Pool hands out Calculators that share one CorpusStats, source and
// transform. Each Calculator returned by Get is owned by the caller until it
// is handed back with Put.
type Pool struct {
	stats     *CorpusStats
	source    termdict.VectorSource
	transform termdict.Transform
	pool      sync.Pool
}

func NewPool(stats *CorpusStats, source termdict.VectorSource, transform termdict.Transform) *Pool {
	p := &Pool{stats: stats, source: source, transform: transform}
	p.pool.New = func() any {
		return NewCalculator(p.stats, p.source, p.transform)
	}
	return p
}

func (p *Pool) Get() *Calculator { return p.pool.Get().(*Calculator) }

func (p *Pool) Put(c *Calculator) { p.pool.Put(c) }

func (p *Pool) Stats() *CorpusStats { return p.stats }
