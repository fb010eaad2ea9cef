package expansion

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

func indexBuiltPayload(t *testing.T, baseName string) []byte {
	t.Helper()
	data, err := json.Marshal(ingestion.IndexBuiltEvent{BaseName: baseName, Documents: 6, BuiltAt: time.Now()})
	require.NoError(t, err)
	return data
}

func TestHandleIndexBuiltSwapsService(t *testing.T) {
	first := newTestService(t)
	backend := newMemoryBackend()
	cache := NewCache(backend, "fixture", time.Minute)
	h := NewHandler(first, cache, nil, nil, nil)
	cache.Set(context.Background(), sampleRequest(), sampleResult())

	second := newTestService(t)
	opened := 0
	handle := HandleIndexBuilt("fixture", h, func(context.Context) (*Service, error) {
		opened++
		return second, nil
	})

	require.NoError(t, handle(context.Background(), nil, indexBuiltPayload(t, "other")))
	assert.Zero(t, opened)
	assert.Same(t, first, h.service.Load())

	require.NoError(t, handle(context.Background(), nil, indexBuiltPayload(t, "fixture")))
	assert.Equal(t, 1, opened)
	assert.Same(t, second, h.service.Load())
	assert.Empty(t, backend.data)
}

func TestHandleIndexBuiltKeepsServiceOnFailure(t *testing.T) {
	current := newTestService(t)
	h := NewHandler(current, nil, nil, nil, nil)
	handle := HandleIndexBuilt("fixture", h, func(context.Context) (*Service, error) {
		return nil, errors.New("segment checksum mismatch")
	})

	require.NoError(t, handle(context.Background(), nil, indexBuiltPayload(t, "fixture")))
	require.NoError(t, handle(context.Background(), nil, []byte("{")))
	assert.Same(t, current, h.service.Load())
}

func rebuild(t *testing.T, cfg *config.Config, bodies ...string) *indexer.Index {
	t.Helper()
	e, err := indexer.NewEngine(cfg.Indexer)
	require.NoError(t, err)
	for i, body := range bodies {
		require.NoError(t, e.IndexDocument(string(rune('a'+i)), "", body))
	}
	ix, err := e.Build()
	require.NoError(t, err)
	return ix
}

func TestOpenerRejectsStaleStore(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Indexer: config.IndexerConfig{
			DataDir:         filepath.Join(dir, "index"),
			BaseName:        "fixture",
			TermProcessor:   "short-term-case",
			CaseInsensitive: true,
			MinDocFrequency: 1,
		},
		DocStore:  config.DocStoreConfig{Backend: "bolt"},
		Bolt:      config.BoltConfig{Path: filepath.Join(dir, "v.bolt"), Timeout: time.Second},
		Expansion: testExpansionConfig(),
	}
	ctx := context.Background()
	store, err := docstore.Open(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	bodies := []string{"kinase pathway signaling kinase", "kinase pathway receptor", "receptor binding assay"}
	ix := rebuild(t, cfg, bodies...)
	require.NoError(t, docstore.Export(ctx, ix.Segment, store))
	require.NoError(t, ix.Close())

	open := Opener(cfg, store, nil)
	current, err := open(ctx)
	require.NoError(t, err)
	defer current.Close()

	// rebuilt without re-exporting the vectors
	require.NoError(t, rebuild(t, cfg, append(bodies, "APC mutation assay")...).Close())
	_, err = open(ctx)
	assert.ErrorIs(t, err, apperrors.ErrStoreMismatch)

	h := NewHandler(current, nil, nil, nil, nil)
	handle := HandleIndexBuilt("fixture", h, open)
	require.NoError(t, handle(ctx, nil, indexBuiltPayload(t, "fixture")))
	assert.Same(t, current, h.service.Load())
}
