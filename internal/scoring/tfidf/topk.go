package tfidf

import (
	"container/heap"
	"slices"
)

type scoredTerm struct {
	term int
	key  float64
}

// boundedHeap keeps the weakest retained entry at the root: the smallest key,
// and among equal keys the largest term index.
type boundedHeap []scoredTerm

func (h boundedHeap) Len() int { return len(h) }
func (h boundedHeap) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	return h[i].term > h[j].term
}
func (h boundedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *boundedHeap) Push(x any)   { *h = append(*h, x.(scoredTerm)) }
func (h *boundedHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func selectTop(scores []float64, n int, key func(float64) float64) []int {
	if n <= 0 {
		return nil
	}
	h := make(boundedHeap, 0, n)
	for t, s := range scores {
		if s == 0 {
			continue
		}
		k := key(s)
		if len(h) < n {
			heap.Push(&h, scoredTerm{term: t, key: k})
			continue
		}
		if k > h[0].key {
			h[0] = scoredTerm{term: t, key: k}
			heap.Fix(&h, 0)
		}
	}
	out := make([]int, 0, len(h))
	for h.Len() > 0 {
		out = append(out, heap.Pop(&h).(scoredTerm).term)
	}
	slices.Reverse(out)
	return out
}

// BestScoresFavorLarge returns up to n term indices with the largest nonzero
// scores, in decreasing score order. Ties go to the lower term index.
func BestScoresFavorLarge(scores []float64, n int) []int {
	return selectTop(scores, n, func(s float64) float64 { return s })
}

// BestScoresFavorSmall returns up to n term indices with the smallest nonzero
// scores, in increasing score order. Ties go to the lower term index.
func BestScoresFavorSmall(scores []float64, n int) []int {
	return selectTop(scores, n, func(s float64) float64 { return -s })
}
