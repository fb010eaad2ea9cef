// Package resilience guards calls to remote dependencies (the expansion
// cache, the database holding term vectors, the Kafka brokers) with a
// circuit breaker and jittered exponential-backoff retry.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned while a breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls when a breaker trips and how it recovers.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before letting probes through.
	Cooldown time.Duration
	// Probes is the number of concurrent calls allowed while half-open.
	Probes int
	// IsFailure decides which errors count against the circuit. Errors it
	// rejects are returned to the caller but treated as successes. nil
	// counts every error.
	IsFailure func(error) bool
}

// Counts is a point-in-time view of a breaker.
type Counts struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Rejected            int64  `json:"rejected"`
	Trips               int64  `json:"trips"`
}

type Breaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
	rejected int64
	trips    int64
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "breaker", "name", name),
	}
}

// Do runs fn unless the circuit is open.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.record(probe, err)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{
		State:               b.state.String(),
		ConsecutiveFailures: b.failures,
		Rejected:            b.rejected,
		Trips:               b.trips,
	}
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			b.rejected++
			return false, fmt.Errorf("%w: %s (retry in %v)", ErrOpen, b.name, wait.Round(time.Millisecond))
		}
		b.state = StateHalfOpen
		b.inFlight = 0
		b.logger.Info("circuit half-open", "cooldown", b.cfg.Cooldown)
	}
	if b.state == StateHalfOpen {
		if b.inFlight >= b.cfg.Probes {
			b.rejected++
			return false, fmt.Errorf("%w: %s (probe in flight)", ErrOpen, b.name)
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe bool, err error) {
	failed := err != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(err))

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.inFlight--
	}
	if !failed {
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.logger.Info("circuit closed")
		}
		b.failures = 0
		return
	}
	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.trip()
		b.logger.Warn("probe failed, circuit re-opened", "error", err)
	case b.state == StateClosed && b.failures >= b.cfg.FailureThreshold:
		b.trip()
		b.logger.Warn("circuit opened", "consecutive_failures", b.failures, "error", err)
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.trips++
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.inFlight = 0
}
