package segment

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

var _ termdict.Dictionary = (*Reader)(nil)
var _ termdict.VectorSource = (*Reader)(nil)

func writeCorpus(t *testing.T) string {
	t.Helper()
	m := index.NewMemoryIndex(tokenizer.ProcessorShortTermCase)
	for _, d := range []struct{ id, body string }{
		{"p1", "APC mutation in colorectal cancer"},
		{"p2", "apc protein binds beta catenin"},
		{"p3", "colorectal cancer screening"},
	} {
		_, err := m.AddDocument(d.id, "", d.body)
		require.NoError(t, err)
	}
	path, err := NewWriter(t.TempDir()).Write("corpus", m.Snapshot())
	require.NoError(t, err)
	return path
}

func TestWriteAndRead(t *testing.T) {
	path := writeCorpus(t)
	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 3, r.DocumentCount())
	assert.Equal(t, 10, r.NumberOfTerms())

	apc := r.FindTermIndex("APC")
	lower := r.FindTermIndex("apc")
	require.NotEqual(t, termdict.NotFound, apc)
	require.NotEqual(t, termdict.NotFound, lower)
	assert.NotEqual(t, apc, lower)
	assert.Equal(t, "APC", r.TermAsString(apc))
	assert.Equal(t, 2, r.Frequency(r.FindTermIndex("colorectal")))
	assert.Equal(t, termdict.NotFound, r.FindTermIndex("missing"))

	doc, ok := r.DocIndex("p3")
	require.True(t, ok)
	assert.Equal(t, "p3", r.ExternalID(doc))
	assert.Equal(t, int64(12), r.TokenCount())
}

func TestReadTermFrequencies(t *testing.T) {
	r, err := OpenReader(writeCorpus(t))
	require.NoError(t, err)
	defer r.Close()

	freqs := make([]int, r.NumberOfTerms())
	counter := make([]int, r.NumberOfTerms())
	for doc := 0; doc < r.DocumentCount(); doc++ {
		_, err := r.ReadTermFrequencies(context.Background(), doc, freqs, counter)
		require.NoError(t, err)
	}
	cancer := r.FindTermIndex("cancer")
	assert.Equal(t, 2, freqs[cancer])
	assert.Equal(t, 2, counter[cancer])

	_, err = r.ReadTermFrequencies(context.Background(), 9, freqs, nil)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestCorruptedDictionaryRejected(t *testing.T) {
	path := writeCorpus(t)
	r, err := OpenReader(path)
	require.NoError(t, err)
	offset := r.header.DictOffset
	r.Close()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("X"), offset+3)
	require.NoError(t, err)
	f.Close()

	_, err = OpenReader(path)
	assert.ErrorContains(t, err, "checksum")
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	m := index.NewMemoryIndex(tokenizer.ProcessorShortTermCase)
	_, err := m.AddDocument("p1", "", "apc mutation")
	require.NoError(t, err)
	first, err := NewWriter(dir).Write("a", m.Snapshot())
	require.NoError(t, err)
	again, err := NewWriter(dir).Write("b", m.Snapshot())
	require.NoError(t, err)
	_, err = m.AddDocument("p2", "", "apc screening")
	require.NoError(t, err)
	grown, err := NewWriter(dir).Write("c", m.Snapshot())
	require.NoError(t, err)

	fingerprint := func(path string) string {
		r, err := OpenReader(path)
		require.NoError(t, err)
		defer r.Close()
		return r.Fingerprint()
	}
	assert.NotEmpty(t, fingerprint(first))
	assert.Equal(t, fingerprint(first), fingerprint(again))
	assert.NotEqual(t, fingerprint(first), fingerprint(grown))
}

func TestBadMagic(t *testing.T) {
	path := t.TempDir() + "/bad.spdx"
	require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize+FooterSize), 0644))
	_, err := OpenReader(path)
	assert.ErrorContains(t, err, "bad magic")
}

func TestWriteRejectsInconsistentCorpus(t *testing.T) {
	_, err := NewWriter(t.TempDir()).Write("x", index.Corpus{Terms: []string{"a"}})
	assert.Error(t, err)
}

func TestReadTermFrequenciesRejectsForeignTerms(t *testing.T) {
	corpus := index.Corpus{
		Terms:       []string{"apc", "cancer"},
		DocFreq:     []int{1, 1},
		ExternalIDs: []string{"p1", "p2"},
		Vectors: []index.DocVector{
			{Length: 1, Terms: []index.TermCount{{Term: 9, Count: 1}}},
			{Length: 1, Terms: []index.TermCount{{Term: -1, Count: 1}}},
		},
	}
	path, err := NewWriter(t.TempDir()).Write("foreign", corpus)
	require.NoError(t, err)
	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	freqs := make([]int, r.NumberOfTerms())
	for doc := 0; doc < r.DocumentCount(); doc++ {
		assert.NotPanics(t, func() {
			_, err := r.ReadTermFrequencies(context.Background(), doc, freqs, nil)
			assert.ErrorIs(t, err, apperrors.ErrInternal)
		})
	}
	assert.Equal(t, []int{0, 0}, freqs)
}
