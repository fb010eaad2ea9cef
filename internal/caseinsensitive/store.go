// Package caseinsensitive records which mixed-case spellings of short terms
// collapse to the same lowercase form, so that a lowercase query term such as
// "apc" can be widened to the indexed symbol "APC".
//
// A Store is built once while indexing, saved, and then loaded read-only at
// query time.
package caseinsensitive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/termdict"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

const (
	wordsMapSuffix = "-cis-wordsMap.dat"
	newWordsSuffix = "-cis-newWords.dat"
)

// Store maps a lowercase anchor index to the dictionary indices of its
// mixed-case spellings. Anchors are dictionary indices, or synthetic indices
// starting at NumberOfTerms() for lowercase forms the dictionary lacks.
//
// A building Store is not safe for concurrent use. A loaded Store is
// read-only and may be shared.
type Store struct {
	dict          termdict.Dictionary
	processor     tokenizer.Processor
	numberOfTerms int
	canAdd        bool
	wordsMap      map[int][]int
	newWords      map[string]int
	logger        *slog.Logger
}

// NewBuilder returns an empty Store accepting AddTerm calls.
func NewBuilder(dict termdict.Dictionary, p tokenizer.Processor) *Store {
	return &Store{
		dict:          dict,
		processor:     p,
		numberOfTerms: dict.NumberOfTerms(),
		canAdd:        true,
		wordsMap:      make(map[int][]int),
		newWords:      make(map[string]int),
		logger:        slog.Default().With("component", "case-store"),
	}
}

// NewEmpty returns a read-only store with no alternatives, used when case
// tracking is disabled.
func NewEmpty(dict termdict.Dictionary, p tokenizer.Processor) *Store {
	return &Store{
		dict:          dict,
		processor:     p,
		numberOfTerms: dict.NumberOfTerms(),
		wordsMap:      make(map[int][]int),
		newWords:      make(map[string]int),
		logger:        slog.Default().With("component", "case-store"),
	}
}

// BuildFromDictionary adds every dictionary term to a new builder.
func BuildFromDictionary(dict termdict.Dictionary, p tokenizer.Processor) *Store {
	s := NewBuilder(dict, p)
	added := 0
	for t := 0; t < s.numberOfTerms; t++ {
		if s.AddTerm(dict.TermAsString(t)) {
			added++
		}
	}
	s.logger.Info("case-insensitive store built",
		"terms", s.numberOfTerms,
		"alternatives", added,
		"anchors", len(s.wordsMap),
		"synthetic", len(s.newWords),
	)
	return s
}

// AddTerm records term as a mixed-case alternative of its lowercase form. It
// returns false when the store is read-only, when term is outside the short
// term band, when it has no uppercase rune, or when term itself is not in the
// dictionary.
func (s *Store) AddTerm(term string) bool {
	if !s.canAdd {
		return false
	}
	if !tokenizer.IsShortTerm(term) || !tokenizer.HasUpper(term) {
		return false
	}
	anchor := s.resolve(strings.ToLower(term), true)

	mixed := s.dict.FindTermIndex(term)
	if mixed == termdict.NotFound {
		s.logger.Warn("mixed-case term not found in dictionary", "term", term)
		return false
	}
	if slices.Contains(s.wordsMap[anchor], mixed) {
		return false
	}
	s.wordsMap[anchor] = append(s.wordsMap[anchor], mixed)
	return true
}

// resolve returns the anchor index of a lowercase term, assigning a synthetic
// index when insert is set and the term is unknown.
func (s *Store) resolve(lower string, insert bool) int {
	if idx, ok := s.newWords[lower]; ok {
		return idx
	}
	if idx := s.dict.FindTermIndex(lower); idx != termdict.NotFound {
		return idx
	}
	if !insert || !s.canAdd {
		return termdict.NotFound
	}
	idx := s.numberOfTerms + len(s.newWords)
	s.newWords[lower] = idx
	return idx
}

// Suggest returns the mixed-case spellings indexed for term. Terms that
// contain uppercase, before or after processing, get no suggestions since
// their case already selects a spelling. Suggest never mutates the store.
func (s *Store) Suggest(term string) []string {
	if tokenizer.HasUpper(term) {
		return []string{}
	}
	processed := s.processor.Process(term)
	lower := strings.ToLower(processed)
	if processed != lower {
		return []string{}
	}
	if s.wordsMap == nil {
		s.logger.Error("case-insensitive store has no words map", "term", term)
		return []string{}
	}
	anchor := s.resolve(lower, false)
	if anchor == termdict.NotFound {
		return []string{}
	}
	alternatives := s.wordsMap[anchor]
	out := make([]string, 0, len(alternatives))
	for _, idx := range alternatives {
		out = append(out, s.dict.TermAsString(idx))
	}
	return out
}

// Building reports whether AddTerm is still accepted.
func (s *Store) Building() bool { return s.canAdd }

// Anchors is the number of lowercase forms with at least one alternative.
func (s *Store) Anchors() int { return len(s.wordsMap) }

// Synthetic is the number of lowercase forms absent from the dictionary.
func (s *Store) Synthetic() int { return len(s.newWords) }

// Save freezes the store and writes its two maps beside the index as
// <baseName>-cis-wordsMap.dat and <baseName>-cis-newWords.dat. Only a
// building store can be saved; loaded and frozen stores return
// ErrStoreReadOnly.
func (s *Store) Save(dir, baseName string) error {
	if !s.canAdd {
		return fmt.Errorf("saving case store %s: %w", baseName, apperrors.ErrStoreReadOnly)
	}
	for k, v := range s.wordsMap {
		s.wordsMap[k] = slices.Clip(v)
	}
	s.canAdd = false

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating case store directory: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, baseName+wordsMapSuffix), s.wordsMap); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, baseName+newWordsSuffix), s.newWords); err != nil {
		return err
	}
	s.logger.Info("case-insensitive store saved", "dir", dir, "base", baseName, "anchors", len(s.wordsMap))
	return nil
}

// Load reads a saved store. It never fails: a missing or unreadable file is
// logged and leaves the corresponding map empty, which makes Suggest return
// no alternatives.
func Load(dir, baseName string, dict termdict.Dictionary, p tokenizer.Processor) *Store {
	s := &Store{
		dict:          dict,
		processor:     p,
		numberOfTerms: dict.NumberOfTerms(),
		logger:        slog.Default().With("component", "case-store"),
	}
	var wordsMap map[int][]int
	if err := readJSON(filepath.Join(dir, baseName+wordsMapSuffix), &wordsMap); err != nil {
		s.logger.Warn("case-insensitive words map unavailable", "error", err)
	} else {
		s.wordsMap = wordsMap
	}
	var newWords map[string]int
	if err := readJSON(filepath.Join(dir, baseName+newWordsSuffix), &newWords); err != nil {
		s.logger.Warn("case-insensitive new words unavailable", "error", err)
	} else {
		s.newWords = newWords
	}
	return s
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}
