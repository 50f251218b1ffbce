package sinks

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/progress"
)

// LogSink emits structured logs for every pipeline event. It is useful with
// very verbose output or while debugging a misbehaving series.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the bus.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Attach subscribes the sink to every event kind.
func (s *LogSink) Attach(bus progress.Sink) {
	bus.Subscribe(progress.KindAll, s.handle)
}

func (s *LogSink) handle(evt progress.Event) {
	fields := []zap.Field{
		zap.String("kind", string(evt.Kind)),
		zap.Stringer("run_id", evt.RunID),
		zap.Time("ts", evt.TS),
	}
	switch {
	case evt.Chapter != nil:
		fields = append(fields,
			zap.Int("index", evt.Chapter.Index),
			zap.String("url", evt.Chapter.URL),
			zap.String("state", string(evt.Chapter.State)),
		)
		if evt.Chapter.Err != nil {
			fields = append(fields, zap.NamedError("chapter_error", evt.Chapter.Err))
		}
	case evt.Asset != nil:
		fields = append(fields,
			zap.String("url", evt.Asset.URL),
			zap.String("path", evt.Asset.Path),
			zap.Int64("bytes", evt.Asset.Bytes),
		)
	case evt.Metadata != nil:
		fields = append(fields,
			zap.String("title", evt.Metadata.Title),
			zap.String("slug", evt.Metadata.Slug),
			zap.Int("post_id", evt.Metadata.PostID),
		)
	case evt.Kind == progress.KindChapterBatchStarted:
		fields = append(fields, zap.Int("total", evt.Total))
	case evt.Kind == progress.KindChapterBatchFinished:
		fields = append(fields, zap.Int("chapters", len(evt.Chapters)))
	case evt.Target != "":
		fields = append(fields, zap.String("target", evt.Target))
	}
	s.logger.Debug("progress event", fields...)
}
