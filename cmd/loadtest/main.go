// Command loadtest drives the expansion API with concurrent POST
// /api/v1/expand requests. It reports throughput, the cache hit rate, how
// many terms each expansion returned, missing feedback documents and latency
// split by cache status.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/expansion"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Requests    []expansion.Request
}

// outcome is what one expansion call produced.
type outcome struct {
	latency time.Duration
	status  int
	cache   string
	terms   int
	missing int
	err     error
}

func (o outcome) ok() bool {
	return o.err == nil && o.status >= 200 && o.status < 300
}

type Stats struct {
	mu       sync.Mutex
	requests int
	failed   int
	terms    int
	empty    int
	missing  int
	// latencies of successful expansions keyed by X-Cache value
	latencies map[string][]time.Duration
}

func NewStats() *Stats {
	return &Stats{latencies: make(map[string][]time.Duration)}
}

func (s *Stats) Record(o outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if !o.ok() {
		s.failed++
		return
	}
	s.terms += o.terms
	if o.terms == 0 {
		s.empty++
	}
	s.missing += o.missing
	cache := o.cache
	if cache == "" {
		cache = "unknown"
	}
	s.latencies[cache] = append(s.latencies[cache], o.latency)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the expansion service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	requestsPath := flag.String("requests", "", "JSON lines file of expansion requests")
	queries := flag.String("queries", "gene expression;apc kinase;protein binding", "semicolon-separated queries used without -requests")
	docs := flag.String("docs", "", "comma-separated feedback document ids used without -requests")
	strategy := flag.String("strategy", "", "strategy used without -requests")
	flag.Parse()

	var requests []expansion.Request
	var err error
	if *requestsPath != "" {
		requests, err = loadRequests(*requestsPath)
	} else {
		requests, err = requestsFromFlags(*queries, *docs, *strategy)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(2)
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Requests:    requests,
	}

	fmt.Println("=== Expansion Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Requests:    %d unique\n", len(cfg.Requests))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

func loadRequests(path string) ([]expansion.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening requests: %w", err)
	}
	defer f.Close()
	return readRequests(f)
}

// readRequests parses one expansion.Request per non-blank line.
func readRequests(r io.Reader) ([]expansion.Request, error) {
	var out []expansion.Request
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var req expansion.Request
		if err := json.Unmarshal(text, &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading requests: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no requests found")
	}
	return out, nil
}

func requestsFromFlags(queries, docs, strategy string) ([]expansion.Request, error) {
	var ids []string
	for _, id := range strings.Split(docs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("-docs or -requests is required")
	}
	var out []expansion.Request
	for _, q := range strings.Split(queries, ";") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, expansion.Request{Query: q, Documents: ids, Strategy: strategy})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no queries given")
	}
	return out, nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	bodies := make([][]byte, len(cfg.Requests))
	for i, req := range cfg.Requests {
		bodies[i], _ = json.Marshal(req)
	}
	target := cfg.BaseURL + "/api/v1/expand"

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				o := expand(ctx, client, target, bodies[i%len(bodies)])
				if o.err != nil && ctx.Err() != nil {
					return nil
				}
				stats.Record(o)
			}
			return nil
		})
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "\nworker failed: %v\n", err)
	}
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// expand posts one request and decodes the parts of the result the report
// needs.
func expand(ctx context.Context, client *http.Client, target string, body []byte) outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return outcome{err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return outcome{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()
	o := outcome{status: resp.StatusCode, cache: resp.Header.Get(expansion.CacheStatusHeader)}
	if !o.ok() {
		io.Copy(io.Discard, resp.Body)
		o.latency = time.Since(start)
		return o
	}
	var res struct {
		Terms   []json.RawMessage `json:"terms"`
		Missing []string          `json:"missing_documents"`
	}
	o.err = json.NewDecoder(resp.Body).Decode(&res)
	o.latency = time.Since(start)
	o.terms = len(res.Terms)
	o.missing = len(res.Missing)
	return o
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	if stats.requests == 0 {
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	succeeded := stats.requests - stats.failed
	fmt.Fprintf(w, "Expansions:        %d (%d failed)\n", stats.requests, stats.failed)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", float64(stats.requests)/duration.Seconds())
	if succeeded > 0 {
		hits := len(stats.latencies["hit"])
		fmt.Fprintf(w, "Cache Hit Rate:    %.2f%%\n", float64(hits)/float64(succeeded)*100)
		fmt.Fprintf(w, "Terms/Expansion:   %.2f\n", float64(stats.terms)/float64(succeeded))
		fmt.Fprintf(w, "Empty Expansions:  %d\n", stats.empty)
		fmt.Fprintf(w, "Missing Documents: %d\n", stats.missing)
	}

	if len(stats.latencies) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency by Cache Status ===")
		for _, cache := range slices.Sorted(maps.Keys(stats.latencies)) {
			sorted := slices.Clone(stats.latencies[cache])
			slices.Sort(sorted)
			fmt.Fprintf(w, "%-9s n=%-7d p50=%-12s p95=%-12s p99=%s\n", cache, len(sorted),
				percentile(sorted, 50), percentile(sorted, 95), percentile(sorted, 99))
		}
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
