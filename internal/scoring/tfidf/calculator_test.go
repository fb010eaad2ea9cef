package tfidf

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

func newCorpus(t *testing.T, bodies ...string) *index.MemoryIndex {
	t.Helper()
	m := index.NewMemoryIndex(tokenizer.ProcessorLowercase)
	for i, body := range bodies {
		_, err := m.AddDocument(string(rune('a'+i)), "", body)
		require.NoError(t, err)
	}
	return m
}

func newCalculator(m *index.MemoryIndex) *Calculator {
	return NewCalculator(NewCorpusStats(m), m, termdict.IdentityTransform(m.NumberOfTerms()))
}

func TestEvaluateIdfZeroForUbiquitousTerm(t *testing.T) {
	m := newCorpus(t, "cat dog cat", "dog bird")
	c := newCalculator(m)
	numDoc := make([]int, m.NumberOfTerms())

	scores, err := c.Evaluate(context.Background(), []int{0, 1}, nil, numDoc)
	require.NoError(t, err)

	cat, dog, bird := m.FindTermIndex("cat"), m.FindTermIndex("dog"), m.FindTermIndex("bird")
	assert.InDelta(t, 2.0/5.0*math.Log(2), scores[cat], 1e-12)
	assert.Zero(t, scores[dog])
	assert.InDelta(t, 1.0/5.0*math.Log(2), scores[bird], 1e-12)
	assert.Len(t, scores, m.NumberOfTerms()+1)

	assert.Equal(t, 1, numDoc[cat])
	assert.Equal(t, 2, numDoc[dog])
	assert.Equal(t, 1, numDoc[bird])
}

func TestEvaluateTermFrequenciesFormDistribution(t *testing.T) {
	m := newCorpus(t, "cat dog cat", "dog bird", "fish")
	c := newCalculator(m)

	scores, err := c.Evaluate(context.Background(), []int{0, 1}, nil, nil)
	require.NoError(t, err)

	var tfSum float64
	for term := 0; term < m.NumberOfTerms(); term++ {
		if scores[term] == 0 {
			continue
		}
		tfSum += scores[term] / math.Log(3/float64(m.Frequency(term)))
	}
	assert.InDelta(t, 1.0, tfSum, 1e-12)
	assert.Zero(t, scores[m.FindTermIndex("fish")])
}

func TestEvaluateNonzeroOnlyForOccurringTerms(t *testing.T) {
	m := newCorpus(t, "alpha beta", "gamma delta", "epsilon alpha", "zeta")
	c := newCalculator(m)
	docs := []int{0, 2}

	scores, err := c.Evaluate(context.Background(), docs, nil, nil)
	require.NoError(t, err)

	occurring := map[string]bool{"alpha": true, "beta": true, "epsilon": true}
	for term := 0; term < m.NumberOfTerms(); term++ {
		if !occurring[m.TermAsString(term)] {
			assert.Zero(t, scores[term], m.TermAsString(term))
		}
	}
	assert.NotZero(t, scores[m.FindTermIndex("beta")])
}

func TestEvaluateReferenceSkipsZeroEntries(t *testing.T) {
	m := newCorpus(t, "cat dog cat", "dog bird", "fish")
	c := newCalculator(m)
	reference := make([]float64, m.NumberOfTerms()+1)
	reference[m.FindTermIndex("bird")] = 1

	scores, err := c.Evaluate(context.Background(), []int{0, 1}, reference, nil)
	require.NoError(t, err)
	assert.Zero(t, scores[m.FindTermIndex("cat")])
	assert.NotZero(t, scores[m.FindTermIndex("bird")])
}

func TestEvaluateResetsWorkspaceBetweenCalls(t *testing.T) {
	m := newCorpus(t, "cat dog cat", "dog bird", "fish")
	c := newCalculator(m)

	first, err := c.Evaluate(context.Background(), []int{0}, nil, nil)
	require.NoError(t, err)
	_, err = c.Evaluate(context.Background(), []int{1, 2}, nil, nil)
	require.NoError(t, err)
	again, err := c.Evaluate(context.Background(), []int{0}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestEvaluateWithoutTransform(t *testing.T) {
	m := newCorpus(t, "cat dog")
	c := NewCalculator(NewCorpusStats(m), m, nil)

	_, err := c.Evaluate(context.Background(), []int{0}, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrNoTransform)
	_, err = c.TermSelectionValue([]int{0}, make([]int, 2))
	assert.ErrorIs(t, err, apperrors.ErrNoTransform)
	_, err = c.Score([]float64{1}, []float64{1})
	assert.ErrorIs(t, err, apperrors.ErrNoTransform)
}

type failingSource struct{}

func (failingSource) ReadTermFrequencies(context.Context, int, []int, []int) (int, error) {
	return 0, errors.New("disk gone")
}

func TestEvaluatePropagatesReadErrors(t *testing.T) {
	m := newCorpus(t, "cat dog")
	c := NewCalculator(NewCorpusStats(m), failingSource{}, termdict.IdentityTransform(2))

	_, err := c.Evaluate(context.Background(), []int{0}, nil, nil)
	assert.ErrorContains(t, err, "disk gone")
}

func TestEvaluateRejectsShortCounter(t *testing.T) {
	m := newCorpus(t, "cat dog")
	_, err := newCalculator(m).Evaluate(context.Background(), []int{0}, nil, make([]int, 1))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestEvaluateRespectsSubsetTransform(t *testing.T) {
	m := newCorpus(t, "cat dog cat", "dog bird", "fish")
	cat := m.FindTermIndex("cat")
	c := NewCalculator(NewCorpusStats(m), m, termdict.NewSubsetTransform([]int{cat}))

	scores, err := c.Evaluate(context.Background(), []int{0, 1}, nil, nil)
	require.NoError(t, err)
	assert.NotZero(t, scores[cat])
	assert.Zero(t, scores[m.FindTermIndex("bird")])
}

func TestTermSelectionValueWithoutOccurrencesIsOne(t *testing.T) {
	m := newCorpus(t, "cat dog cat", "dog bird", "fish")
	c := newCalculator(m)

	tsv, err := c.TermSelectionValue([]int{0, 1}, make([]int, m.NumberOfTerms()))
	require.NoError(t, err)
	for term := 0; term < m.NumberOfTerms(); term++ {
		assert.Equal(t, 1.0, tsv[term], m.TermAsString(term))
	}
}

func TestTermSelectionValue(t *testing.T) {
	m := newCorpus(t, "cat dog cat", "dog bird", "fish")
	c := newCalculator(m)
	docs := []int{0, 1}
	numDoc := make([]int, m.NumberOfTerms())
	_, err := c.Evaluate(context.Background(), docs, nil, numDoc)
	require.NoError(t, err)

	tsv, err := c.TermSelectionValue(docs, numDoc)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, tsv[m.FindTermIndex("cat")], 1e-12)
	assert.InDelta(t, 4.0/9.0, tsv[m.FindTermIndex("dog")], 1e-12)
	assert.InDelta(t, 2.0/3.0, tsv[m.FindTermIndex("bird")], 1e-12)
	assert.Equal(t, 1.0, tsv[m.FindTermIndex("fish")])
}

func TestTermSelectionValueClampsRt(t *testing.T) {
	m := newCorpus(t, "cat", "cat", "dog")
	c := newCalculator(m)
	numDoc := make([]int, m.NumberOfTerms())
	numDoc[m.FindTermIndex("cat")] = 5

	tsv, err := c.TermSelectionValue([]int{0}, numDoc)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, tsv[m.FindTermIndex("cat")], 1e-12)
}

func TestScore(t *testing.T) {
	m := newCorpus(t, "cat dog bird")
	c := newCalculator(m)
	si := []float64{0.5, 0, 2, 0}
	ref := []float64{4, 100, 0.25, 0}

	got, err := c.Score(si, ref)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got, 1e-12)
}

func TestBinomial(t *testing.T) {
	assert.Equal(t, 10.0, Binomial(5, 2))
	assert.Equal(t, 1.0, Binomial(10, 0))
	assert.Equal(t, 1.0, Binomial(10, 10))
	assert.Equal(t, 0.0, Binomial(3, 4))
	assert.InEpsilon(t, 1.008913445455642e29, Binomial(100, 50), 1e-9)
}

func TestPoolConcurrentEvaluate(t *testing.T) {
	m := newCorpus(t, "cat dog cat", "dog bird", "fish bird", "cat fish")
	pool := NewPool(NewCorpusStats(m), m, termdict.IdentityTransform(m.NumberOfTerms()))

	c := pool.Get()
	want, err := c.Evaluate(context.Background(), []int{0, 1, 3}, nil, nil)
	require.NoError(t, err)
	pool.Put(c)

	var wg sync.WaitGroup
	results := make([][]float64, 16)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := pool.Get()
			defer pool.Put(c)
			results[i], errs[i] = c.Evaluate(context.Background(), []int{0, 1, 3}, nil, nil)
		}(i)
	}
	wg.Wait()
	for i, got := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, want, got)
	}
}
