// Package tokenizer splits biomedical text into index terms. Words are split
// on non-alphanumeric boundaries, stop-words are removed, and each remaining
// word is normalised by a Processor.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single processed term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into processed Tokens with stop-words and single-rune
// words removed. Stop-words are matched case-insensitively.
func Tokenize(text string, p Processor) []Token {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words)/2)
	pos := 0
	for _, word := range words {
		if utf8.RuneCountInString(word) < 2 {
			continue
		}
		if IsStopWord(word) {
			continue
		}
		term := p.Process(word)
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms returns the processed terms of text without positions.
func Terms(text string, p Processor) []string {
	tokens := Tokenize(text, p)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}
