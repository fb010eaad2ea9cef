package boltstore

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.BoltConfig{Path: filepath.Join(t.TempDir(), "v.bolt"), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndRead(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	vec := index.DocVector{Length: 300, Terms: []index.TermCount{{Term: 1, Count: 200}, {Term: 70000, Count: 100}}}
	require.NoError(t, s.Put(ctx, 3, vec))

	got, err := s.Vector(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	freqs := make([]int, 70001)
	counter := make([]int, 70001)
	n, err := s.ReadTermFrequencies(ctx, 3, freqs, counter)
	require.NoError(t, err)
	assert.Equal(t, 300, n)
	assert.Equal(t, 100, freqs[70000])
	assert.Equal(t, 1, counter[1])

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestVectorMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.Vector(context.Background(), 1)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestDecodeRejectsTruncatedRecord(t *testing.T) {
	data := encode(index.DocVector{Length: 5, Terms: []index.TermCount{{Term: 1, Count: 5}}})
	_, err := decode(data[:len(data)-1])
	assert.ErrorIs(t, err, errCorrupt)
}

func putRaw(t *testing.T, s *Store, doc int, raw []byte) {
	t.Helper()
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVectors).Put(docKey(doc), raw)
	}))
}

func TestCorruptRecordsFailCleanly(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		raw  []byte
		want error
	}{
		{
			name: "term index overflows int",
			raw:  binary.AppendUvarint(binary.AppendUvarint(binary.AppendUvarint(binary.AppendUvarint(nil, 1), 1), 1<<63+5), 1),
			want: errCorrupt,
		},
		{
			name: "term count larger than record",
			raw:  binary.AppendUvarint(binary.AppendUvarint(nil, 1), 1<<62),
			want: errCorrupt,
		},
		{
			name: "term outside dictionary",
			raw:  encode(index.DocVector{Length: 1, Terms: []index.TermCount{{Term: 40, Count: 1}}}),
			want: apperrors.ErrInternal,
		},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := openStore(t)
			putRaw(t, s, i, tc.raw)
			freqs := make([]int, 8)
			counter := make([]int, 8)
			assert.NotPanics(t, func() {
				_, err := s.ReadTermFrequencies(ctx, i, freqs, counter)
				assert.ErrorIs(t, err, tc.want)
			})
			assert.Equal(t, make([]int, 8), freqs)
		})
	}
}

func TestReadTermFrequenciesShortCounter(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, 0, index.DocVector{Length: 2, Terms: []index.TermCount{{Term: 5, Count: 2}}}))
	_, err := s.ReadTermFrequencies(ctx, 0, make([]int, 8), make([]int, 3))
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}
