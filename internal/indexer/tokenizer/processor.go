package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/surgebase/porter2"
	"golang.org/x/text/unicode/norm"
)

// Processor is the term normalisation applied both when an index is built and
// when query terms are looked up in it.
type Processor int

const (
	// ProcessorShortTermCase keeps the case of short terms (2 to 5 runes with
	// at least one letter) and lowercases everything else. Gene and protein
	// symbols such as APC or Ras stay distinct from the words apc and ras.
	ProcessorShortTermCase Processor = iota
	// ProcessorLowercase lowercases every term.
	ProcessorLowercase
	// ProcessorStem lowercases and applies the Porter2 stemmer.
	ProcessorStem
)

const (
	shortTermMin = 2
	shortTermMax = 5
)

// ParseProcessor maps a configuration name to a Processor.
func ParseProcessor(name string) (Processor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "short-term-case":
		return ProcessorShortTermCase, nil
	case "lowercase":
		return ProcessorLowercase, nil
	case "stem", "porter2":
		return ProcessorStem, nil
	default:
		return 0, fmt.Errorf("unknown term processor %q", name)
	}
}

func (p Processor) String() string {
	switch p {
	case ProcessorShortTermCase:
		return "short-term-case"
	case ProcessorLowercase:
		return "lowercase"
	case ProcessorStem:
		return "stem"
	default:
		return fmt.Sprintf("processor(%d)", int(p))
	}
}

// Process normalises a single term. Input is NFC-normalised first so that
// precomposed and decomposed accents map to the same term.
func (p Processor) Process(term string) string {
	term = norm.NFC.String(term)
	switch p {
	case ProcessorLowercase:
		return strings.ToLower(term)
	case ProcessorStem:
		return porter2.Stem(strings.ToLower(term))
	default:
		if IsShortTerm(term) {
			return term
		}
		return strings.ToLower(term)
	}
}

// IsShortTerm reports whether term contains a letter and is between 2 and 5
// runes long, the band in which case is preserved.
func IsShortTerm(term string) bool {
	n := utf8.RuneCountInString(term)
	if n < shortTermMin || n > shortTermMax {
		return false
	}
	return strings.IndexFunc(term, unicode.IsLetter) >= 0
}

// HasUpper reports whether term contains an uppercase rune.
func HasUpper(term string) bool {
	return strings.IndexFunc(term, unicode.IsUpper) >= 0
}
