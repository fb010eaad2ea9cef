// Package e2e runs the whole pipeline in process: documents are loaded from
// JSON lines, indexed, exported to an embedded doc store and served over the
// expansion HTTP API, then reloaded after a rebuild.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/middleware"
)

const abstracts = `{"document_id":"pmid-1","title":"APC and colorectal cancer","body":"Germline APC mutations cause familial adenomatous polyposis and colorectal adenomas"}
{"document_id":"pmid-2","title":"Beta-catenin signalling","body":"Loss of APC stabilises catenin and activates Wnt signalling in colorectal adenomas"}
{"document_id":"pmid-3","title":"Ras in tumours","body":"Activating Ras mutations occur in pancreatic tumours and colorectal carcinoma"}
{"document_id":"pmid-4","title":"Unrelated","body":"Photosynthesis in leaves converts light into chemical energy"}
{"document_id":"pmid-5","title":"Polyposis registry","body":"Registry of familial polyposis families with adenomas and APC testing"}
`

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Indexer.DataDir = filepath.Join(dir, "index")
	cfg.Indexer.BaseName = "abstracts"
	cfg.DocStore.Backend = "sqlite"
	cfg.SQLite.Path = filepath.Join(dir, "vectors.db")
	return cfg
}

func build(t *testing.T, cfg *config.Config, jsonl string) {
	t.Helper()
	e, err := indexer.NewEngine(cfg.Indexer)
	require.NoError(t, err)
	res, err := e.LoadJSONL(strings.NewReader(jsonl))
	require.NoError(t, err)
	require.Positive(t, res.Indexed)
	ix, err := e.Build()
	require.NoError(t, err)
	defer ix.Close()

	store, err := docstore.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, docstore.Export(context.Background(), ix.Segment, store))
}

type pipeline struct {
	server  *httptest.Server
	handler *expansion.Handler
	open    expansion.OpenFunc
}

func serve(t *testing.T, cfg *config.Config) pipeline {
	t.Helper()
	store, err := docstore.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	open := expansion.Opener(cfg, store, m)
	svc, err := open(context.Background())
	require.NoError(t, err)

	h := expansion.NewHandler(svc, nil, nil, expansion.NewStats(), m)
	mux := http.NewServeMux()
	h.Register(mux)
	var chain http.Handler = mux
	chain = middleware.Timeout(5 * time.Second)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)
	return pipeline{server: srv, handler: h, open: open}
}

func getJSON(t *testing.T, target string, v any) int {
	t.Helper()
	resp, err := http.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestPipelineExpand(t *testing.T) {
	cfg := newConfig(t)
	build(t, cfg, abstracts)
	p := serve(t, cfg)

	q := url.Values{"q": {"apc polyposis"}, "docs": {"pmid-1,pmid-5"}, "max": {"3"}}
	var res expansion.Result
	status := getJSON(t, p.server.URL+"/api/v1/expand?"+q.Encode(), &res)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, []string{"apc", "polyposis"}, res.InitialTerms)
	require.Len(t, res.Terms, 3)
	assert.NotContains(t, texts(res), "polyposis")
	for i, term := range res.Terms {
		assert.Positive(t, term.Weight)
		if i > 0 {
			assert.GreaterOrEqual(t, res.Terms[i-1].Weight, term.Weight)
		}
	}
	assert.Equal(t, []string{"APC"}, res.Alternatives["apc"])

	q.Set("consensus", "true")
	res = expansion.Result{}
	require.Equal(t, http.StatusOK, getJSON(t, p.server.URL+"/api/v1/expand?"+q.Encode(), &res))
	require.NotEmpty(t, res.Terms)
	for _, term := range res.Terms {
		assert.Equal(t, 2, term.Rt, term.Text)
		assert.Equal(t, 1, term.NumConsensusDocs, term.Text)
	}

	q.Set("docs", "pmid-404")
	var failure map[string]any
	assert.Equal(t, http.StatusNotFound, getJSON(t, p.server.URL+"/api/v1/expand?"+q.Encode(), &failure))
}

func TestPipelineSuggest(t *testing.T) {
	cfg := newConfig(t)
	build(t, cfg, abstracts)
	p := serve(t, cfg)

	var body struct {
		Alternatives []string `json:"alternatives"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, p.server.URL+"/api/v1/suggest?term=ras", &body))
	assert.Equal(t, []string{"Ras"}, body.Alternatives)
}

func TestPipelineReload(t *testing.T) {
	cfg := newConfig(t)
	build(t, cfg, abstracts)
	p := serve(t, cfg)

	var stats struct {
		Index indexer.Stats `json:"index"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, p.server.URL+"/api/v1/stats", &stats))
	assert.Equal(t, 5, stats.Index.Documents)

	extra := `{"document_id":"pmid-6","title":"KRAS","body":"KRAS and APC mutations in adenomas"}` + "\n"
	build(t, cfg, abstracts+extra)

	event := fmt.Sprintf(`{"base_name":%q,"documents":6}`, cfg.Indexer.BaseName)
	handle := expansion.HandleIndexBuilt(cfg.Indexer.BaseName, p.handler, p.open)
	require.NoError(t, handle(context.Background(), nil, []byte(event)))

	require.Equal(t, http.StatusOK, getJSON(t, p.server.URL+"/api/v1/stats", &stats))
	assert.Equal(t, 6, stats.Index.Documents)
}

func texts(res expansion.Result) []string {
	out := make([]string, len(res.Terms))
	for i, term := range res.Terms {
		out[i] = term.Text
	}
	return out
}
