package index

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

// TermCount is one entry of a document's term-frequency vector.
type TermCount struct {
	Term  int `json:"t"`
	Count int `json:"c"`
}

// DocVector is a document's term-frequency vector, ordered by term index.
// Length is the number of tokens in the document.
type DocVector struct {
	Length int         `json:"n"`
	Terms  []TermCount `json:"v"`
}

// Corpus is a complete, immutable snapshot of an index ready to be written
// to a segment file. Term i has text Terms[i] and document frequency
// DocFreq[i]; document d has external id ExternalIDs[d] and vector
// Vectors[d].
type Corpus struct {
	Terms       []string
	DocFreq     []int
	ExternalIDs []string
	Vectors     []DocVector
}

// CheckTerms fails when v references a term index outside [0, numTerms),
// which only happens when the stored vector is corrupt or belongs to another
// dictionary.
func (v DocVector) CheckTerms(numTerms int) error {
	for _, tc := range v.Terms {
		if tc.Term < 0 || tc.Term >= numTerms {
			return fmt.Errorf("term %d outside the dictionary of %d terms: %w", tc.Term, numTerms, apperrors.ErrInternal)
		}
	}
	return nil
}

// Accumulate adds v into freqs and, when docCounter is non-nil, counts v's
// document once for each of its terms. It returns v.Length. Callers reading
// untrusted vectors run CheckTerms first.
func (v DocVector) Accumulate(freqs []int, docCounter []int) int {
	for _, tc := range v.Terms {
		freqs[tc.Term] += tc.Count
		if docCounter != nil && tc.Count > 0 {
			docCounter[tc.Term]++
		}
	}
	return v.Length
}
