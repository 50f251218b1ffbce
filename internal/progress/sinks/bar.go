package sinks

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/scribblehub-fetch/internal/progress"
)

// BarSink renders a chapter progress bar. Completion events arrive in
// completion order, so the bar relies only on their count.
type BarSink struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	total int
	done  int
}

// NewBarSink writes the bar to out.
func NewBarSink(out io.Writer) *BarSink {
	return &BarSink{out: out}
}

// Attach subscribes the bar to chapter batch events.
func (s *BarSink) Attach(bus progress.Sink) {
	bus.Subscribe(progress.KindChapterBatchStarted, s.start)
	bus.Subscribe(progress.KindChapterLoaded, s.increment)
	bus.Subscribe(progress.KindChapterBatchFinished, s.finish)
}

// Progress returns completed and total chapter counts of the current batch.
func (s *BarSink) Progress() (done, total int) {
	return s.done, s.total
}

func (s *BarSink) start(evt progress.Event) {
	fmt.Fprintln(s.out, "Downloading chapters...")
	s.total = evt.Total
	s.done = 0
	s.bar = progressbar.NewOptions(evt.Total,
		progressbar.OptionSetWriter(s.out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetWidth(40),
	)
}

func (s *BarSink) increment(progress.Event) {
	s.done++
	if s.bar != nil {
		_ = s.bar.Add(1)
	}
}

func (s *BarSink) finish(progress.Event) {
	if s.bar != nil {
		_ = s.bar.Finish()
		s.bar = nil
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Done.")
}
