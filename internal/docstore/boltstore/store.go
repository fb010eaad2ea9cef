// Package boltstore keeps document term vectors in an embedded bolt file.
// Keys are big-endian document indices; values are uvarint-encoded: the
// token count, the number of terms, then (term index, count) pairs.
package boltstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

var (
	bucketVectors  = []byte("vectors")
	bucketMeta     = []byte("meta")
	keyFingerprint = []byte("fingerprint")
)

var errCorrupt = errors.New("corrupt vector record")

type Store struct {
	db *bolt.DB
}

func Open(cfg config.BoltConfig) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("creating bolt directory: %w", err)
	}
	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database %s: %w", cfg.Path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func docKey(doc int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(doc))
	return key
}

func encode(vec index.DocVector) []byte {
	buf := make([]byte, 0, 2*binary.MaxVarintLen64+len(vec.Terms)*4)
	buf = binary.AppendUvarint(buf, uint64(vec.Length))
	buf = binary.AppendUvarint(buf, uint64(len(vec.Terms)))
	for _, tc := range vec.Terms {
		buf = binary.AppendUvarint(buf, uint64(tc.Term))
		buf = binary.AppendUvarint(buf, uint64(tc.Count))
	}
	return buf
}

func decode(data []byte) (index.DocVector, error) {
	next := func() (int, error) {
		v, n := binary.Uvarint(data)
		if n <= 0 || v > math.MaxInt {
			return 0, errCorrupt
		}
		data = data[n:]
		return int(v), nil
	}
	length, err := next()
	if err != nil {
		return index.DocVector{}, err
	}
	count, err := next()
	if err != nil {
		return index.DocVector{}, err
	}
	// every pair takes at least two bytes
	if count > len(data)/2 {
		return index.DocVector{}, errCorrupt
	}
	vec := index.DocVector{Length: length, Terms: make([]index.TermCount, 0, count)}
	for i := 0; i < count; i++ {
		term, err := next()
		if err != nil {
			return index.DocVector{}, err
		}
		c, err := next()
		if err != nil {
			return index.DocVector{}, err
		}
		vec.Terms = append(vec.Terms, index.TermCount{Term: term, Count: c})
	}
	return vec, nil
}

func (s *Store) Put(ctx context.Context, doc int, vec index.DocVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVectors).Put(docKey(doc), encode(vec))
	})
}

func (s *Store) Vector(ctx context.Context, doc int) (index.DocVector, error) {
	if err := ctx.Err(); err != nil {
		return index.DocVector{}, err
	}
	var vec index.DocVector
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVectors).Get(docKey(doc))
		if data == nil {
			return fmt.Errorf("document %d: %w", doc, apperrors.ErrDocumentNotFound)
		}
		var err error
		vec, err = decode(data)
		if err != nil {
			return fmt.Errorf("document %d: %w", doc, err)
		}
		return nil
	})
	return vec, err
}

func (s *Store) ReadTermFrequencies(ctx context.Context, doc int, freqs []int, docCounter []int) (int, error) {
	vec, err := s.Vector(ctx, doc)
	if err != nil {
		return 0, err
	}
	space := len(freqs)
	if docCounter != nil {
		space = min(space, len(docCounter))
	}
	if err := vec.CheckTerms(space); err != nil {
		return 0, fmt.Errorf("document %d: %w", doc, err)
	}
	return vec.Accumulate(freqs, docCounter), nil
}

// Fingerprint returns the fingerprint of the segment the vectors were
// exported from, or "" when none was recorded.
func (s *Store) Fingerprint(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var fp string
	err := s.db.View(func(tx *bolt.Tx) error {
		fp = string(tx.Bucket(bucketMeta).Get(keyFingerprint))
		return nil
	})
	return fp, err
}

func (s *Store) SetFingerprint(ctx context.Context, fp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyFingerprint, []byte(fp))
	})
}

// Count returns the number of stored documents.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketVectors).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
