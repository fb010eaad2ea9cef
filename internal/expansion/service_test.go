package expansion

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/metrics"
)

func testExpansionConfig() config.ExpansionConfig {
	return config.ExpansionConfig{
		DefaultStrategy:       "tfidf",
		DefaultMaxTerms:       2,
		MaxTerms:              5,
		MaxDocuments:          3,
		SignificanceThreshold: 1e-4,
	}
}

func buildIndex(t *testing.T) *indexer.Index {
	t.Helper()
	e, err := indexer.NewEngine(config.IndexerConfig{
		DataDir:         t.TempDir(),
		BaseName:        "fixture",
		TermProcessor:   "short-term-case",
		CaseInsensitive: true,
		MinDocFrequency: 1,
	})
	require.NoError(t, err)
	docs := [][2]string{
		{"a", "kinase pathway signaling kinase"},
		{"b", "kinase pathway receptor"},
		{"c", "receptor binding assay"},
		{"d", "unrelated text here"},
		{"e", "more filler words"},
		{"f", "APC mutation assay"},
	}
	for _, d := range docs {
		require.NoError(t, e.IndexDocument(d[0], "", d[1]))
	}
	ix, err := e.Build()
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(buildIndex(t), nil, testExpansionConfig())
	require.NoError(t, err)
	return s
}

func termTexts(r *Result) []string {
	out := make([]string, len(r.Terms))
	for i, qt := range r.Terms {
		out[i] = qt.Text
	}
	return out
}

func TestServiceExpand(t *testing.T) {
	s := newTestService(t)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	s.WithMetrics(m)

	res, err := s.Expand(context.Background(), Request{
		Query:     "apc kinase",
		Documents: []string{"a", "b", "zz"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tfidf", res.Strategy)
	assert.Equal(t, []string{"apc", "kinase"}, res.InitialTerms)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, []string{"zz"}, res.Missing)
	assert.Equal(t, []string{"pathway", "signaling"}, termTexts(res))
	assert.Equal(t, map[string][]string{"apc": {"APC"}}, res.Alternatives)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExpansionsTotal.WithLabelValues("tfidf", "ok")))
}

func TestServiceExpandTermSelection(t *testing.T) {
	s := newTestService(t)
	res, err := s.Expand(context.Background(), Request{
		Query:     "kinase",
		Documents: []string{"a", "b"},
		Strategy:  "tsv",
		MaxTerms:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, "tsv", res.Strategy)
	assert.NotContains(t, termTexts(res), "kinase")
	assert.LessOrEqual(t, len(res.Terms), 5)
}

func TestServiceConsensus(t *testing.T) {
	s := newTestService(t)
	res, err := s.Expand(context.Background(), Request{
		Query:     "kinase",
		Documents: []string{"a", "b"},
		Consensus: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pathway"}, termTexts(res))
	assert.Equal(t, 1, res.Terms[0].NumConsensusDocs)
}

func TestServiceNormalize(t *testing.T) {
	s := newTestService(t)

	req, err := s.Normalize(Request{
		Query:     "  kinase   pathway ",
		Documents: []string{"b", " a ", "b", "", "c", "d"},
		MaxTerms:  50,
	})
	require.NoError(t, err)
	assert.Equal(t, "kinase pathway", req.Query)
	assert.Equal(t, []string{"b", "a", "c"}, req.Documents)
	assert.Equal(t, 5, req.MaxTerms)
	assert.Equal(t, "tfidf", req.Strategy)

	again, err := s.Normalize(req)
	require.NoError(t, err)
	assert.Equal(t, req, again)

	req, err = s.Normalize(Request{Query: "x", Documents: []string{"a"}, Strategy: "term-selection"})
	require.NoError(t, err)
	assert.Equal(t, "tsv", req.Strategy)
	assert.Equal(t, 2, req.MaxTerms)
}

func TestServiceRejectsBadRequests(t *testing.T) {
	s := newTestService(t)
	cases := map[string]Request{
		"empty query":     {Documents: []string{"a"}},
		"no documents":    {Query: "kinase"},
		"bad strategy":    {Query: "kinase", Documents: []string{"a"}, Strategy: "bm25"},
		"negative max":    {Query: "kinase", Documents: []string{"a"}, MaxTerms: -1},
		"negative quorum": {Query: "kinase", Documents: []string{"a"}, ConsensusDocs: -2},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Expand(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
		})
	}
}

func TestServiceUnknownDocuments(t *testing.T) {
	s := newTestService(t)
	_, err := s.Expand(context.Background(), Request{Query: "kinase", Documents: []string{"nope"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatusCode(err))
}

func TestServiceSuggest(t *testing.T) {
	s := newTestService(t)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	s.WithMetrics(m)

	assert.Equal(t, []string{"APC"}, s.Suggest(" apc "))
	assert.Empty(t, s.Suggest("kinase"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuggestionsTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuggestionsTotal.WithLabelValues("miss")))
	assert.Equal(t, float64(s.IndexStats().Terms), testutil.ToFloat64(m.VocabularySize))
}

func TestNewServiceRejectsUnknownStrategy(t *testing.T) {
	cfg := testExpansionConfig()
	cfg.DefaultStrategy = "bm25"
	_, err := NewService(buildIndex(t), nil, cfg)
	assert.Error(t, err)
}
