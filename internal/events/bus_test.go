package events

import (
	"sync/atomic"
	"testing"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	var count atomic.Int32
	bus.Subscribe(PodcastAdd, func(payload any) {
		if payload != "p1" {
			t.Errorf("unexpected payload: %v", payload)
		}
		count.Add(1)
	})
	bus.Subscribe(PodcastAdd, func(any) {
		count.Add(1)
	})

	bus.Publish(PodcastAdd, "p1")
	bus.Wait()

	if count.Load() != 2 {
		t.Fatalf("expected 2 handler calls, got %d", count.Load())
	}
}

func TestPublishUnknownEventIsNoop(t *testing.T) {
	bus := NewBus(nil)
	bus.Publish(EpisodeDelete, nil)
	bus.Wait()
}

func TestHandlerPanicDoesNotPropagate(t *testing.T) {
	bus := NewBus(nil)
	var called atomic.Bool
	bus.Subscribe(PodcastSync, func(any) {
		panic("boom")
	})
	bus.Subscribe(PodcastSync, func(any) {
		called.Store(true)
	})

	bus.Publish(PodcastSync, nil)
	bus.Wait()

	if !called.Load() {
		t.Fatal("sibling handler should still run after panic")
	}
}
