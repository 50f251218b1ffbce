package progress

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
)

// TestBusDeliversInRegistrationOrder verifies kind and wildcard handlers run in the order they subscribed.
func TestBusDeliversInRegistrationOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	var calls []string
	bus.Subscribe(KindChapterBatchStarted, func(Event) { calls = append(calls, "first") })
	bus.Subscribe(KindAll, func(Event) { calls = append(calls, "wildcard") })
	bus.Subscribe(KindChapterBatchStarted, func(Event) { calls = append(calls, "second") })
	bus.Subscribe(KindChapterBatchFinished, func(Event) { calls = append(calls, "other") })

	bus.Publish(Event{Kind: KindChapterBatchStarted, Total: 3})

	assert.Equal(t, []string{"first", "wildcard", "second"}, calls)
}

// TestBusPublishIsSynchronous asserts handlers have run by the time Publish returns.
func TestBusPublishIsSynchronous(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	var got Event
	bus.Subscribe(KindChapterBatchStarted, func(evt Event) { got = evt })

	bus.Publish(Event{Kind: KindChapterBatchStarted, Total: 12})

	assert.Equal(t, 12, got.Total)
	assert.False(t, got.TS.IsZero(), "expected timestamp to be stamped")
}

// TestBusDropsInvalidEvents ensures malformed payloads never reach handlers.
func TestBusDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	var count int
	bus.Subscribe(KindAll, func(Event) { count++ })

	bus.Publish(Event{Kind: KindChapterLoaded})
	bus.Publish(Event{Kind: KindAll})
	bus.Publish(Event{Kind: "bogus"})
	bus.Publish(Event{Kind: KindAssetAlreadyCached, Asset: &novel.Asset{URL: "u", Path: "p"}})

	assert.Equal(t, 1, count)
}

// TestBusSerializesConcurrentPublishers verifies handlers never overlap even with parallel publishers.
func TestBusSerializesConcurrentPublishers(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	var inHandler, overlaps, delivered atomic.Int32
	bus.Subscribe(KindChapterBatchStarted, func(Event) {
		if inHandler.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(time.Millisecond)
		inHandler.Add(-1)
		delivered.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Kind: KindChapterBatchStarted, Total: 1})
		}()
	}
	wg.Wait()

	require.Equal(t, int32(20), delivered.Load())
	assert.Zero(t, overlaps.Load())
}

// TestNilBusIsSafe confirms a nil bus silently ignores calls.
func TestNilBusIsSafe(t *testing.T) {
	t.Parallel()

	var bus *Bus
	bus.Subscribe(KindAll, func(Event) {})
	bus.Publish(Event{Kind: KindExportStarted})
	Discard{}.Publish(Event{Kind: KindExportStarted})
}

func TestEventString(t *testing.T) {
	t.Parallel()

	meta := novel.BookMetadata{Title: "The Fastest Man Alive", Author: "Someone"}
	assert.Equal(t, `series-metadata-loaded: "The Fastest Man Alive" by Someone`,
		Event{Kind: KindSeriesMetadataLoaded, Metadata: &meta}.String())
	assert.Equal(t, "chapter-loaded: #4 Four",
		Event{Kind: KindChapterLoaded, Chapter: &novel.Chapter{Index: 4, Title: "Four"}}.String())
	assert.Equal(t, "export-started: out.json", Event{Kind: KindExportStarted, Target: "out.json"}.String())
}
