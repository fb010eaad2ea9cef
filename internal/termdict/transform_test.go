package termdict

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDict struct {
	terms []string
	df    []int
	docs  int
}

func (d fakeDict) NumberOfTerms() int        { return len(d.terms) }
func (d fakeDict) DocumentCount() int        { return d.docs }
func (d fakeDict) Frequency(t int) int       { return d.df[t] }
func (d fakeDict) TermAsString(t int) string { return d.terms[t] }
func (d fakeDict) FindTermIndex(s string) int {
	for i, term := range d.terms {
		if term == s {
			return i
		}
	}
	return NotFound
}

func TestSubsetTransformOrder(t *testing.T) {
	tr := NewSubsetTransform([]int{9, 2, 5, 2, -1})
	require.Equal(t, 3, tr.TransformedSize())
	assert.Equal(t, 2, tr.InitialTermIndex(0))
	assert.Equal(t, 5, tr.InitialTermIndex(1))
	assert.Equal(t, 9, tr.InitialTermIndex(2))
	assert.True(t, tr.Contains(5))
	assert.False(t, tr.Contains(4))
	assert.False(t, tr.Contains(-1))
}

func TestSubsetByFrequency(t *testing.T) {
	dict := fakeDict{
		terms: []string{"cell", "APC", "the", "rare"},
		df:    []int{4, 2, 10, 1},
		docs:  10,
	}
	tr := SubsetByFrequency(dict, 2, 0.5)
	require.Equal(t, 2, tr.TransformedSize())
	assert.Equal(t, 0, tr.InitialTermIndex(0))
	assert.Equal(t, 1, tr.InitialTermIndex(1))

	all := SubsetByFrequency(dict, 0, 0)
	assert.Equal(t, 4, all.TransformedSize())
}

func TestSubsetTransformRoundTrip(t *testing.T) {
	tr := NewSubsetTransform([]int{1, 3, 70000})
	var buf bytes.Buffer
	_, err := tr.WriteTo(&buf)
	require.NoError(t, err)

	got, err := ReadSubsetTransform(&buf)
	require.NoError(t, err)
	require.Equal(t, 3, got.TransformedSize())
	assert.Equal(t, 70000, got.InitialTermIndex(2))
}

func TestIdentityTransform(t *testing.T) {
	tr := IdentityTransform(4)
	assert.Equal(t, 4, tr.TransformedSize())
	assert.Equal(t, 3, tr.InitialTermIndex(3))
}
