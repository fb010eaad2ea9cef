// Package termdict defines the contracts the scoring engine and the
// case-insensitive store consume from a built index: the term dictionary,
// the per-document term-vector source, and term-subset transforms.
package termdict

import "context"

// NotFound is returned by FindTermIndex for terms absent from the dictionary.
const NotFound = -1

// Dictionary maps terms to dense indices in [0, NumberOfTerms()) and reports
// corpus-wide statistics.
type Dictionary interface {
	NumberOfTerms() int
	DocumentCount() int
	// Frequency is the number of documents containing the term.
	Frequency(termIndex int) int
	FindTermIndex(term string) int
	TermAsString(termIndex int) string
}

// VectorSource materialises one document's term-frequency vector on demand.
type VectorSource interface {
	// ReadTermFrequencies adds the counts of every term of document docID
	// into freqs, indexed by term index. When docCounter is non-nil it is
	// incremented once for every distinct term present in the document.
	// The return value is the document's token count.
	ReadTermFrequencies(ctx context.Context, docID int, freqs []int, docCounter []int) (int, error)
}

// Transform compacts the dense term-index space to the subset of terms worth
// iterating over.
type Transform interface {
	TransformedSize() int
	// InitialTermIndex maps a compact index in [0, TransformedSize()) back
	// to its term index.
	InitialTermIndex(compactIndex int) int
}
