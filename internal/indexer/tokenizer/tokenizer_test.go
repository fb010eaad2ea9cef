package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeShortTermCase(t *testing.T) {
	got := Terms("The APC gene and Ras proteins in Colorectal CANCER", ProcessorShortTermCase)
	assert.Equal(t, []string{"APC", "gene", "Ras", "proteins", "colorectal", "cancer"}, got)
}

func TestTokenizeLowercase(t *testing.T) {
	got := Terms("The APC gene, p53 and BRCA1!", ProcessorLowercase)
	assert.Equal(t, []string{"apc", "gene", "p53", "brca1"}, got)
}

func TestTokenizeStem(t *testing.T) {
	got := Terms("mutations mutated", ProcessorStem)
	require.Len(t, got, 2)
	assert.Equal(t, got[0], got[1])
	assert.NotEqual(t, "mutations", got[0])
}

func TestTokenizePositions(t *testing.T) {
	tokens := Tokenize("a kinase x of the pathway", ProcessorLowercase)
	require.Len(t, tokens, 2)
	assert.Equal(t, Token{Term: "kinase", Position: 0}, tokens[0])
	assert.Equal(t, Token{Term: "pathway", Position: 1}, tokens[1])
}

func TestStopWordsCaseInsensitive(t *testing.T) {
	assert.Empty(t, Terms("THE And OF", ProcessorShortTermCase))
}

func TestIsShortTerm(t *testing.T) {
	cases := map[string]bool{
		"A":      false,
		"AP":     true,
		"APC":    true,
		"BRCA1":  true,
		"BRCA12": false,
		"12":     false,
		"ß1":     true,
		"Ärzte":  true,
	}
	for term, want := range cases {
		assert.Equal(t, want, IsShortTerm(term), term)
	}
}

func TestHasUpper(t *testing.T) {
	assert.True(t, HasUpper("mRNA"))
	assert.False(t, HasUpper("mrna"))
	assert.False(t, HasUpper("123"))
}

func TestProcessNormalizesAccents(t *testing.T) {
	decomposed := "Cafe\u0301ine"
	assert.Equal(t, "caf\u00e9ine", ProcessorLowercase.Process(decomposed))
}

func TestParseProcessor(t *testing.T) {
	p, err := ParseProcessor("porter2")
	require.NoError(t, err)
	assert.Equal(t, ProcessorStem, p)

	p, err = ParseProcessor("")
	require.NoError(t, err)
	assert.Equal(t, ProcessorShortTermCase, p)

	_, err = ParseProcessor("org.example.SomeProcessor")
	assert.Error(t, err)
}
