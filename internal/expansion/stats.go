package expansion

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/kafka"
)

const (
	latencyWindow = 10000
	topN          = 10
)

type Snapshot struct {
	Expansions        int64            `json:"expansions"`
	Suggestions       int64            `json:"suggestions"`
	Failures          int64            `json:"failures"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	EmptyExpansions   int64            `json:"empty_expansions"`
	ByStrategy        map[string]int64 `json:"by_strategy"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []Count          `json:"top_queries"`
	TopTerms          []Count          `json:"top_expansion_terms"`
	EmptyQueries      []Count          `json:"empty_queries"`
	RequestsPerMinute float64          `json:"requests_per_minute"`
}

type Count struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Stats folds events into running totals. Latency percentiles cover the
// most recent expansions only.
type Stats struct {
	mu          sync.Mutex
	expansions  int64
	suggestions int64
	failures    int64
	hits        int64
	misses      int64
	empty       int64
	byStrategy  map[string]int64
	latencies   []int64
	next        int
	queries     map[string]int64
	terms       map[string]int64
	emptyQuery  map[string]int64
	started     time.Time
	logger      *slog.Logger
}

func NewStats() *Stats {
	return &Stats{
		byStrategy: make(map[string]int64),
		latencies:  make([]int64, 0, 1024),
		queries:    make(map[string]int64),
		terms:      make(map[string]int64),
		emptyQuery: make(map[string]int64),
		started:    time.Now(),
		logger:     slog.Default().With("component", "expansion-stats"),
	}
}

func (s *Stats) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Type == EventSuggest {
		s.suggestions++
		return
	}
	s.expansions++
	if e.Failed {
		s.failures++
		return
	}
	if e.CacheHit {
		s.hits++
	} else {
		s.misses++
	}
	s.byStrategy[e.Strategy]++
	s.queries[e.Query]++
	if len(e.Terms) == 0 {
		s.empty++
		s.emptyQuery[e.Query]++
	}
	for _, t := range e.Terms {
		s.terms[t]++
	}
	if len(s.latencies) < latencyWindow {
		s.latencies = append(s.latencies, e.LatencyMs)
	} else {
		s.latencies[s.next] = e.LatencyMs
		s.next = (s.next + 1) % latencyWindow
	}
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Expansions:      s.expansions,
		Suggestions:     s.suggestions,
		Failures:        s.failures,
		CacheHits:       s.hits,
		CacheMisses:     s.misses,
		EmptyExpansions: s.empty,
		ByStrategy:      make(map[string]int64, len(s.byStrategy)),
		TopQueries:      top(s.queries, topN),
		TopTerms:        top(s.terms, topN),
		EmptyQueries:    top(s.emptyQuery, topN),
	}
	for k, v := range s.byStrategy {
		snap.ByStrategy[k] = v
	}
	if len(s.latencies) > 0 {
		sorted := slices.Clone(s.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		snap.AvgLatencyMs = float64(sum) / float64(len(sorted))
		snap.P50LatencyMs = percentile(sorted, 50)
		snap.P95LatencyMs = percentile(sorted, 95)
		snap.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := time.Since(s.started).Minutes(); elapsed > 0 {
		snap.RequestsPerMinute = float64(s.expansions+s.suggestions) / elapsed
	}
	return snap
}

// HandleEvent feeds events read back from the expansion-events topic.
func HandleEvent(s *Stats) kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		e, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			s.logger.Error("failed to decode expansion event", "error", err)
			return nil
		}
		s.Record(e)
		return nil
	}
}

func percentile(sorted []int64, pct int) int64 {
	idx := pct * len(sorted) / 100
	return sorted[min(idx, len(sorted)-1)]
}

// top orders by count, then key, so ties are stable.
func top(counts map[string]int64, n int) []Count {
	out := make([]Count, 0, len(counts))
	for k, c := range counts {
		out = append(out, Count{Key: k, Count: c})
	}
	slices.SortFunc(out, func(a, b Count) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
