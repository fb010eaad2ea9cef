package termdict

import (
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring"
)

// IdentityTransform iterates over every term index in [0, n).
type IdentityTransform int

func (t IdentityTransform) TransformedSize() int       { return int(t) }
func (t IdentityTransform) InitialTermIndex(i int) int { return i }

// SubsetTransform iterates over an explicit set of term indices in ascending
// order. The set is held in a roaring bitmap; the compact-to-term mapping is
// materialised once so InitialTermIndex is O(1).
type SubsetTransform struct {
	bitmap *roaring.Bitmap
	terms  []uint32
}

// NewSubsetTransform builds a transform over the given term indices.
// Negative indices are ignored and duplicates collapse.
func NewSubsetTransform(termIndices []int) *SubsetTransform {
	bm := roaring.New()
	for _, t := range termIndices {
		if t >= 0 {
			bm.Add(uint32(t))
		}
	}
	return fromBitmap(bm)
}

func fromBitmap(bm *roaring.Bitmap) *SubsetTransform {
	bm.RunOptimize()
	return &SubsetTransform{bitmap: bm, terms: bm.ToArray()}
}

// SubsetByFrequency keeps the terms whose document frequency is at least
// minDocFreq and whose share of documents is at most maxDocFraction. A
// maxDocFraction of zero or less disables the upper bound.
func SubsetByFrequency(dict Dictionary, minDocFreq int, maxDocFraction float64) *SubsetTransform {
	if minDocFreq < 1 {
		minDocFreq = 1
	}
	n := dict.DocumentCount()
	bm := roaring.New()
	for t := 0; t < dict.NumberOfTerms(); t++ {
		df := dict.Frequency(t)
		if df < minDocFreq {
			continue
		}
		if maxDocFraction > 0 && n > 0 && float64(df)/float64(n) > maxDocFraction {
			continue
		}
		bm.Add(uint32(t))
	}
	return fromBitmap(bm)
}

func (s *SubsetTransform) TransformedSize() int { return len(s.terms) }

func (s *SubsetTransform) InitialTermIndex(i int) int { return int(s.terms[i]) }

// Contains reports whether termIndex is part of the subset.
func (s *SubsetTransform) Contains(termIndex int) bool {
	return termIndex >= 0 && s.bitmap.Contains(uint32(termIndex))
}

// WriteTo serialises the subset in the portable roaring format.
func (s *SubsetTransform) WriteTo(w io.Writer) (int64, error) {
	return s.bitmap.WriteTo(w)
}

// ReadSubsetTransform reads a subset written by WriteTo.
func ReadSubsetTransform(r io.Reader) (*SubsetTransform, error) {
	bm := roaring.New()
	if _, err := bm.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("reading term subset: %w", err)
	}
	return fromBitmap(bm), nil
}
