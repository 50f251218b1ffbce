package sinks

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
	"github.com/JakeFAU/scribblehub-fetch/internal/progress"
)

// TestBarSinkCountsCompletions verifies the bar follows the count of completions, not their order.
func TestBarSinkCountsCompletions(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	bar := NewBarSink(&out)
	bus := progress.NewBus(nil)
	bar.Attach(bus)

	bus.Publish(progress.Event{Kind: progress.KindChapterBatchStarted, Total: 3})
	for _, idx := range []int{3, 1, 2} {
		bus.Publish(progress.Event{Kind: progress.KindChapterLoaded, Chapter: &novel.Chapter{Index: idx}})
	}
	done, total := bar.Progress()
	require.Equal(t, 3, done)
	require.Equal(t, 3, total)

	bus.Publish(progress.Event{Kind: progress.KindChapterBatchFinished})
	require.Contains(t, out.String(), "Downloading chapters...")
	require.Contains(t, out.String(), "Done.")
}
