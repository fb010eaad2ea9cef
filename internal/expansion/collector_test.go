package expansion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/kafka"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) published() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Event(nil), p.events...)
}

func TestCollectorPublishesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 10)
	c.Start(context.Background())
	c.Track(Event{Type: EventExpand, Query: "kinase"})
	c.Track(Event{Type: EventSuggest, Query: "apc"})
	c.Close()

	got := pub.published()
	require.Len(t, got, 2)
	assert.Equal(t, "expand", got[0].Key)
	assert.Equal(t, "suggest", got[1].Key)
	assert.Equal(t, "kinase", got[0].Value.(Event).Query)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&recordingPublisher{}, 1)
	c.Track(Event{Query: "one"})
	c.Track(Event{Query: "two"})
	assert.Equal(t, int64(1), c.Dropped())
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 10)
	for range 3 {
		c.Track(Event{Query: "q"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Start(ctx)
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	assert.Len(t, pub.published(), 3)
}

func TestCollectorSurvivesPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	c := NewCollector(pub, 4)
	c.Start(context.Background())
	c.Track(Event{Query: "q"})
	c.Close()
	assert.Empty(t, pub.published())
}

func TestCollectorTrackAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 10)
	c.Start(context.Background())
	c.Track(Event{Type: EventExpand, Query: "before"})
	c.Close()

	assert.NotPanics(t, func() {
		c.Track(Event{Type: EventExpand, Query: "after"})
	})
	assert.NotPanics(t, c.Close)
	assert.Equal(t, int64(1), c.Dropped())
	require.Len(t, pub.published(), 1)
}

func TestCollectorConcurrentTrackAndClose(t *testing.T) {
	c := NewCollector(&recordingPublisher{}, 4)
	c.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Track(Event{Type: EventSuggest, Query: "apc"})
			}
		}()
	}
	c.Close()
	wg.Wait()
}

func TestCollectorCloseWithoutStart(t *testing.T) {
	c := NewCollector(&recordingPublisher{}, 1)
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a collector that was never started")
	}
}
