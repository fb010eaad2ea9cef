package expansion

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix             = "expand:"
	defaultComputeTimeout = 30 * time.Second
)

// CacheBackend is satisfied by *redis.Client.
type CacheBackend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cache memoises expansion results per index. Concurrent misses for the
// same request share one computation. Backend failures degrade to
// recomputing; they are never returned to the caller.
type Cache struct {
	backend   CacheBackend
	namespace string
	ttl       time.Duration
	// bounds a shared computation once it no longer follows any caller
	computeTimeout time.Duration
	breaker        *resilience.Breaker
	group          singleflight.Group
	hits           atomic.Int64
	misses         atomic.Int64
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

type CacheStats struct {
	Hits    int64             `json:"hits"`
	Misses  int64             `json:"misses"`
	Breaker resilience.Counts `json:"breaker"`
}

// NewCache scopes keys by namespace, normally the index base name, so
// caches of different indices never collide.
func NewCache(backend CacheBackend, namespace string, ttl time.Duration) *Cache {
	return &Cache{
		backend:        backend,
		namespace:      namespace,
		ttl:            ttl,
		computeTimeout: defaultComputeTimeout,
		breaker: resilience.NewBreaker("expansion-cache", resilience.BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
			IsFailure:        func(err error) bool { return !pkgredis.IsNilError(err) },
		}),
		logger: slog.Default().With("component", "expansion-cache"),
	}
}

func (c *Cache) WithMetrics(m *metrics.Metrics) *Cache {
	c.metrics = m
	return c
}

// WithComputeTimeout caps how long a shared computation may run.
func (c *Cache) WithComputeTimeout(d time.Duration) *Cache {
	if d > 0 {
		c.computeTimeout = d
	}
	return c
}

// Key derives the cache key of a normalised request.
func (c *Cache) Key(req Request) string {
	raw := strings.Join([]string{
		c.namespace,
		req.Strategy,
		strconv.Itoa(req.MaxTerms),
		strconv.FormatBool(req.Consensus),
		strconv.Itoa(req.ConsensusDocs),
		req.Query,
		strings.Join(req.Documents, "\x1f"),
	}, "\x1e")
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, c.namespace, sum[:16])
}

func (c *Cache) Get(ctx context.Context, req Request) (*Result, bool) {
	key := c.Key(req)
	var data string
	err := c.breaker.Do(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		return err
	})
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &result, true
}

func (c *Cache) Set(ctx context.Context, req Request, result *Result) {
	key := c.Key(req)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for req, or computes and stores
// it. The boolean reports a cache hit. Concurrent callers share one
// computation, which runs detached from any single caller's cancellation
// and is bounded by the compute timeout; a caller whose ctx ends stops
// waiting without failing the others.
func (c *Cache) GetOrCompute(ctx context.Context, req Request, compute func(ctx context.Context) (*Result, error)) (*Result, bool, error) {
	if result, ok := c.Get(ctx, req); ok {
		return result, true, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.Key(req), func() (any, error) {
		cctx, cancel := context.WithTimeout(shared, c.computeTimeout)
		defer cancel()
		result, err := compute(cctx)
		if err != nil {
			return nil, err
		}
		c.Set(cctx, req, result)
		return result, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Result), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Invalidate drops every cached result of this namespace.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Do(func() error {
		var err error
		deleted, err = c.backend.FlushByPattern(ctx, keyPrefix+c.namespace+":*")
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating expansion cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Breaker: c.breaker.Counts(),
	}
}

func (c *Cache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
