package changefeed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	e := Event{Scope: "employees", Collection: "profiles", ID: "EMP0001", Op: OpSave, Seq: 1}
	b.Publish(e)

	assert.Equal(t, e, <-s1)
	assert.Equal(t, e, <-s2)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	require.Equal(t, 1, b.Len())

	b.Unsubscribe(ch)
	assert.Equal(t, 0, b.Len())

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")

	// second unsubscribe must not panic on double close
	b.Unsubscribe(ch)
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()

	for i := 0; i < SubscriberBuffer*2; i++ {
		b.Publish(Event{ID: "EMP0001", Seq: int64(i + 1)})
	}

	assert.Len(t, ch, SubscriberBuffer)
	first := <-ch
	assert.Equal(t, int64(1), first.Seq)
}

func TestBus_Close(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()

	b.Close()
	_, ok := <-ch
	assert.False(t, ok)

	late := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribe after close returns a closed channel")

	b.Publish(Event{ID: "ignored"})
	b.Close()
}

func TestBus_ConcurrentPublish(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			b.Publish(Event{Seq: int64(n)})
		}(i)
	}
	wg.Wait()

	assert.Len(t, ch, 8)
}
