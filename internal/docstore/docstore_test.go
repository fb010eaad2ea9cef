package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

func TestParseBackend(t *testing.T) {
	for name, want := range map[string]Backend{
		"":         BackendSegment,
		"segment":  BackendSegment,
		"Postgres": BackendPostgres,
		"sqlite":   BackendSQLite,
		"bolt":     BackendBolt,
	} {
		got, err := ParseBackend(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseBackend("mongo")
	assert.Error(t, err)
}

func memoryCorpus(t *testing.T) *index.MemoryIndex {
	t.Helper()
	m := index.NewMemoryIndex(tokenizer.ProcessorShortTermCase)
	for i, body := range []string{"APC mutation cancer", "colon cancer screening", "APC protein"} {
		_, err := m.AddDocument(string(rune('a'+i)), "", body)
		require.NoError(t, err)
	}
	return m
}

func TestCopyIntoBackends(t *testing.T) {
	dir := t.TempDir()
	configs := map[string]*config.Config{
		"sqlite": {DocStore: config.DocStoreConfig{Backend: "sqlite"}, SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "v.db")}},
		"bolt":   {DocStore: config.DocStoreConfig{Backend: "bolt"}, Bolt: config.BoltConfig{Path: filepath.Join(dir, "v.bolt"), Timeout: time.Second}},
	}
	src := memoryCorpus(t)
	ctx := context.Background()

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			dst, err := Open(ctx, cfg)
			require.NoError(t, err)
			defer dst.Close()

			require.NoError(t, Copy(ctx, src, src.DocumentCount(), dst))

			want := make([]int, src.NumberOfTerms())
			got := make([]int, src.NumberOfTerms())
			for doc := 0; doc < src.DocumentCount(); doc++ {
				wn, err := src.ReadTermFrequencies(ctx, doc, want, nil)
				require.NoError(t, err)
				gn, err := dst.ReadTermFrequencies(ctx, doc, got, nil)
				require.NoError(t, err)
				assert.Equal(t, wn, gn)
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestOpenSegmentBackendRejected(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{DocStore: config.DocStoreConfig{Backend: "segment"}})
	assert.Error(t, err)
}

func writeSegment(t *testing.T, dir, name string, bodies ...string) *segment.Reader {
	t.Helper()
	m := index.NewMemoryIndex(tokenizer.ProcessorShortTermCase)
	for i, body := range bodies {
		_, err := m.AddDocument(string(rune('a'+i)), "", body)
		require.NoError(t, err)
	}
	path, err := segment.NewWriter(dir).Write(name, m.Snapshot())
	require.NoError(t, err)
	r, err := segment.OpenReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestExportStampsAndVerify(t *testing.T) {
	dir := t.TempDir()
	configs := map[string]*config.Config{
		"sqlite": {DocStore: config.DocStoreConfig{Backend: "sqlite"}, SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "v.db")}},
		"bolt":   {DocStore: config.DocStoreConfig{Backend: "bolt"}, Bolt: config.BoltConfig{Path: filepath.Join(dir, "v.bolt"), Timeout: time.Second}},
	}
	old := writeSegment(t, dir, "old", "APC mutation cancer", "colon cancer screening")
	rebuilt := writeSegment(t, dir, "new", "APC mutation cancer", "colon cancer screening", "APC protein")
	ctx := context.Background()

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			store, err := Open(ctx, cfg)
			require.NoError(t, err)
			defer store.Close()

			err = Verify(ctx, store, old.Fingerprint())
			assert.ErrorIs(t, err, apperrors.ErrStoreMismatch, "never exported")

			require.NoError(t, Export(ctx, old, store))
			assert.NoError(t, Verify(ctx, store, old.Fingerprint()))
			err = Verify(ctx, store, rebuilt.Fingerprint())
			assert.ErrorIs(t, err, apperrors.ErrStoreMismatch, "stale export")

			require.NoError(t, Export(ctx, rebuilt, store))
			assert.NoError(t, Verify(ctx, store, rebuilt.Fingerprint()))
			assert.ErrorIs(t, Verify(ctx, store, old.Fingerprint()), apperrors.ErrStoreMismatch)
		})
	}
}

type failingWriter struct {
	Store
	after int
}

func (w *failingWriter) Put(ctx context.Context, doc int, vec index.DocVector) error {
	if doc >= w.after {
		return errors.New("disk full")
	}
	return w.Store.Put(ctx, doc, vec)
}

func TestInterruptedExportClearsStamp(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := Open(ctx, &config.Config{
		DocStore: config.DocStoreConfig{Backend: "bolt"},
		Bolt:     config.BoltConfig{Path: filepath.Join(dir, "v.bolt"), Timeout: time.Second},
	})
	require.NoError(t, err)
	defer store.Close()

	old := writeSegment(t, dir, "old", "APC mutation cancer", "colon cancer screening")
	rebuilt := writeSegment(t, dir, "new", "APC protein", "colon cancer", "kinase pathway")
	require.NoError(t, Export(ctx, old, store))

	err = Export(ctx, rebuilt, &failingWriter{Store: store, after: 1})
	require.Error(t, err)
	assert.ErrorIs(t, Verify(ctx, store, old.Fingerprint()), apperrors.ErrStoreMismatch)
	assert.ErrorIs(t, Verify(ctx, store, rebuilt.Fingerprint()), apperrors.ErrStoreMismatch)
}
