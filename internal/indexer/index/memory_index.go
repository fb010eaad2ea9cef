// Package index holds the in-memory corpus built during an indexing pass.
// Terms and documents receive dense integer indices in arrival order; each
// document keeps its term-frequency vector.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

// MemoryIndex implements termdict.Dictionary and termdict.VectorSource over
// documents added since the last Reset.
type MemoryIndex struct {
	mu        sync.RWMutex
	processor tokenizer.Processor
	terms     []string
	termIDs   map[string]int
	docFreq   []int
	docIDs    map[string]int
	extIDs    []string
	vectors   []DocVector
	tokens    int64
}

func NewMemoryIndex(p tokenizer.Processor) *MemoryIndex {
	return &MemoryIndex{
		processor: p,
		termIDs:   make(map[string]int),
		docIDs:    make(map[string]int),
	}
}

// AddDocument tokenises title and body and appends the document, returning
// its document index.
func (m *MemoryIndex) AddDocument(docID string, title string, body string) (int, error) {
	tokens := tokenizer.Tokenize(title+" "+body, m.processor)

	// first-occurrence order keeps term index assignment deterministic
	counts := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if counts[token.Term] == 0 {
			order = append(order, token.Term)
		}
		counts[token.Term]++
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.docIDs[docID]; exists {
		return 0, fmt.Errorf("adding %q: %w", docID, apperrors.ErrDocumentExists)
	}

	vec := DocVector{Length: len(tokens), Terms: make([]TermCount, 0, len(counts))}
	for _, term := range order {
		count := counts[term]
		id, exists := m.termIDs[term]
		if !exists {
			id = len(m.terms)
			m.termIDs[term] = id
			m.terms = append(m.terms, term)
			m.docFreq = append(m.docFreq, 0)
		}
		m.docFreq[id]++
		vec.Terms = append(vec.Terms, TermCount{Term: id, Count: count})
	}
	sort.Slice(vec.Terms, func(i, j int) bool {
		return vec.Terms[i].Term < vec.Terms[j].Term
	})

	doc := len(m.vectors)
	m.docIDs[docID] = doc
	m.extIDs = append(m.extIDs, docID)
	m.vectors = append(m.vectors, vec)
	m.tokens += int64(vec.Length)
	return doc, nil
}

// Snapshot copies the current state into a Corpus.
func (m *MemoryIndex) Snapshot() Corpus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := Corpus{
		Terms:       append([]string(nil), m.terms...),
		DocFreq:     append([]int(nil), m.docFreq...),
		ExternalIDs: append([]string(nil), m.extIDs...),
		Vectors:     make([]DocVector, len(m.vectors)),
	}
	for i, v := range m.vectors {
		c.Vectors[i] = DocVector{Length: v.Length, Terms: append([]TermCount(nil), v.Terms...)}
	}
	return c
}

func (m *MemoryIndex) NumberOfTerms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.terms)
}

func (m *MemoryIndex) DocumentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func (m *MemoryIndex) Frequency(termIndex int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if termIndex < 0 || termIndex >= len(m.docFreq) {
		return 0
	}
	return m.docFreq[termIndex]
}

func (m *MemoryIndex) FindTermIndex(term string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.termIDs[term]; ok {
		return id
	}
	return termdict.NotFound
}

func (m *MemoryIndex) TermAsString(termIndex int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if termIndex < 0 || termIndex >= len(m.terms) {
		return ""
	}
	return m.terms[termIndex]
}

func (m *MemoryIndex) ReadTermFrequencies(_ context.Context, docID int, freqs []int, docCounter []int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if docID < 0 || docID >= len(m.vectors) {
		return 0, fmt.Errorf("document %d: %w", docID, apperrors.ErrDocumentNotFound)
	}
	return m.vectors[docID].Accumulate(freqs, docCounter), nil
}

// Vector returns a copy of one document's term vector.
func (m *MemoryIndex) Vector(_ context.Context, doc int) (DocVector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if doc < 0 || doc >= len(m.vectors) {
		return DocVector{}, fmt.Errorf("document %d: %w", doc, apperrors.ErrDocumentNotFound)
	}
	v := m.vectors[doc]
	return DocVector{Length: v.Length, Terms: append([]TermCount(nil), v.Terms...)}, nil
}

// DocIndex returns the document index assigned to an external id.
func (m *MemoryIndex) DocIndex(docID string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docIDs[docID]
	return doc, ok
}

func (m *MemoryIndex) TokenCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms = nil
	m.termIDs = make(map[string]int)
	m.docFreq = nil
	m.docIDs = make(map[string]int)
	m.extIDs = nil
	m.vectors = nil
	m.tokens = 0
}
