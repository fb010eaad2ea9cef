package expansion

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/kafka"
)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Collector publishes events in the background. Track never blocks: when
// the buffer is full or the collector is closed the event is dropped and
// counted.
type Collector struct {
	producer EventPublisher
	eventCh  chan Event
	done     chan struct{}
	dropped  atomic.Int64
	started  atomic.Bool
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

func NewCollector(producer EventPublisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan Event, bufferSize),
		done:     make(chan struct{}),
		logger:   slog.Default().With("component", "expansion-collector"),
	}
}

// Start publishes queued events until Close is called or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drain()
				return
			}
		}
	}()
	c.logger.Info("expansion collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Track(event Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("expansion event dropped, buffer full")
	}
}

func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the queue to be published.
// It is safe to call more than once.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	if c.started.Load() {
		<-c.done
	}
}

func (c *Collector) publish(ctx context.Context, event Event) {
	if err := c.producer.Publish(ctx, kafka.Event{Key: string(event.Type), Value: event}); err != nil {
		c.logger.Error("failed to publish expansion event", "error", err)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
