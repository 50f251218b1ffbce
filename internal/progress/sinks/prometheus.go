package sinks

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
	"github.com/JakeFAU/scribblehub-fetch/internal/progress"
)

// PrometheusSink exports acquisition metrics via Prometheus. It owns all
// collectors for chapters, assets, and batch timing.
type PrometheusSink struct {
	chapters        *prometheus.CounterVec
	chaptersPending prometheus.Gauge
	assets          *prometheus.CounterVec
	assetBytes      prometheus.Counter
	batchDuration   prometheus.Histogram

	batchStarted time.Time
}

// Summary is a point-in-time view of the counters, used for end-of-run output.
type Summary struct {
	ChaptersLoaded   int
	ChaptersFailed   int
	AssetsDownloaded int
	AssetsCached     int
	AssetBytes       int64
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		chapters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shfetch_chapters_total",
			Help: "Chapters processed partitioned by final state.",
		}, []string{"state"}),
		chaptersPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shfetch_chapters_pending",
			Help: "Chapters of the current batch not yet completed.",
		}),
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shfetch_assets_total",
			Help: "Asset lookups partitioned by result.",
		}, []string{"result"}),
		assetBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shfetch_asset_bytes_total",
			Help: "Bytes written to the asset cache.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shfetch_chapter_batch_duration_seconds",
			Help:    "Wall time per chapter batch.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.chapters,
		s.chaptersPending,
		s.assets,
		s.assetBytes,
		s.batchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Attach subscribes the sink to the kinds it measures.
func (s *PrometheusSink) Attach(bus progress.Sink) {
	bus.Subscribe(progress.KindChapterBatchStarted, s.handleBatchStarted)
	bus.Subscribe(progress.KindChapterLoaded, s.handleChapter)
	bus.Subscribe(progress.KindChapterBatchFinished, s.handleBatchFinished)
	bus.Subscribe(progress.KindAssetDownloadFinished, s.handleAsset)
	bus.Subscribe(progress.KindAssetAlreadyCached, s.handleAsset)
}

func (s *PrometheusSink) handleBatchStarted(evt progress.Event) {
	s.batchStarted = evt.TS
	s.chaptersPending.Set(float64(evt.Total))
}

func (s *PrometheusSink) handleChapter(evt progress.Event) {
	state := evt.Chapter.State
	if state == "" {
		state = novel.StateUnloaded
	}
	s.chapters.WithLabelValues(string(state)).Inc()
	s.chaptersPending.Dec()
}

func (s *PrometheusSink) handleBatchFinished(evt progress.Event) {
	s.chaptersPending.Set(0)
	if !s.batchStarted.IsZero() && evt.TS.After(s.batchStarted) {
		s.batchDuration.Observe(evt.TS.Sub(s.batchStarted).Seconds())
	}
	s.batchStarted = time.Time{}
}

func (s *PrometheusSink) handleAsset(evt progress.Event) {
	switch evt.Kind {
	case progress.KindAssetAlreadyCached:
		s.assets.WithLabelValues("cached").Inc()
	default:
		s.assets.WithLabelValues("downloaded").Inc()
		if evt.Asset.Bytes > 0 {
			s.assetBytes.Add(float64(evt.Asset.Bytes))
		}
	}
}

// Summary reads the current counter values.
func (s *PrometheusSink) Summary() Summary {
	return Summary{
		ChaptersLoaded:   int(counterValue(s.chapters.WithLabelValues(string(novel.StateLoaded)))),
		ChaptersFailed:   int(counterValue(s.chapters.WithLabelValues(string(novel.StateFailed)))),
		AssetsDownloaded: int(counterValue(s.assets.WithLabelValues("downloaded"))),
		AssetsCached:     int(counterValue(s.assets.WithLabelValues("cached"))),
		AssetBytes:       int64(counterValue(s.assetBytes)),
	}
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
