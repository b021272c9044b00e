package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// waitCounter counts calls and lets tests wait for a target count.
type waitCounter struct {
	mu    sync.Mutex
	count int
}

func (c *waitCounter) incr() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *waitCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *waitCounter) waitFor(t *testing.T, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.get() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d calls, got %d", want, c.get())
}

func TestPublishInvokesSubscribers(t *testing.T) {
	bus := NewBus()
	var c waitCounter

	bus.Subscribe(TypeSegment, c.incr)
	bus.Subscribe(TypeSegment, c.incr)
	bus.Publish(TypeSegment)

	c.waitFor(t, 2)
}

func TestPublishIgnoresOtherTypes(t *testing.T) {
	bus := NewBus()
	var c waitCounter

	bus.Subscribe(TypeUtterance, c.incr)
	bus.Publish(TypeSegment)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, c.get())
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	var c waitCounter

	unsub := bus.Subscribe(TypeSegment, c.incr)
	bus.Publish(TypeSegment)
	c.waitFor(t, 1)

	unsub()
	unsub() // second call is a no-op
	bus.Publish(TypeSegment)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, c.get())
}

func TestPanickingHandlerDoesNotAffectOthers(t *testing.T) {
	bus := NewBus()
	var c waitCounter

	bus.Subscribe(TypeSegment, func() { panic("boom") })
	bus.Subscribe(TypeSegment, c.incr)
	bus.Publish(TypeSegment)

	c.waitFor(t, 1)
}

func TestPublishWithNoSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() { bus.Publish(TypeUtterance) })
}
