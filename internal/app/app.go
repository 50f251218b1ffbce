// Package app initializes and holds long-lived services for one CLI run,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/config"
	collyfetcher "github.com/JakeFAU/scribblehub-fetch/internal/fetcher/colly"
	"github.com/JakeFAU/scribblehub-fetch/internal/fetcher/download"
	"github.com/JakeFAU/scribblehub-fetch/internal/fetcher/headless"
	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
	"github.com/JakeFAU/scribblehub-fetch/internal/policy/ratelimit"
	"github.com/JakeFAU/scribblehub-fetch/internal/progress"
	"github.com/JakeFAU/scribblehub-fetch/internal/progress/sinks"
	"github.com/JakeFAU/scribblehub-fetch/internal/scribblehub"
	"github.com/JakeFAU/scribblehub-fetch/internal/storage/local"
)

// App holds the shared services of a run: logging, the event bus, metrics,
// the selected page fetch strategy and the asset downloader.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Bus        *progress.Bus
	Registry   *prometheus.Registry
	Metrics    *sinks.PrometheusSink
	Limiter    *ratelimit.Limiter
	Fetcher    novel.PageFetcher
	Downloader novel.Downloader

	lifetime context.Context
	cancel   context.CancelFunc
	closers  []func()
}

// New wires every service from cfg. It fails fast on any invalid setting.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Bus:      progress.NewBus(logger.Named("bus")),
		Registry: prometheus.NewRegistry(),
	}
	a.lifetime, a.cancel = context.WithCancel(context.Background())

	metrics, err := sinks.NewPrometheusSink(a.Registry)
	if err != nil {
		a.cancel()
		return nil, err
	}
	metrics.Attach(a.Bus)
	a.Metrics = metrics

	rateDelay := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shfetch_rate_limit_delay_seconds",
		Help:    "Time requests spent waiting on the per-host rate limiter.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"host"})
	if err := a.Registry.Register(rateDelay); err != nil {
		a.cancel()
		return nil, fmt.Errorf("register rate limit collector: %w", err)
	}
	a.Limiter = ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Fetch.RequestsPerSecond,
		DefaultBurst: cfg.Fetch.Burst,
		OnDelay: func(host string, waited time.Duration) {
			rateDelay.WithLabelValues(host).Observe(waited.Seconds())
		},
	})

	switch cfg.Fetch.Strategy {
	case config.StrategyHeadless:
		browser, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.Headless.NavTimeout,
		}, a.Limiter, logger.Named("headless"))
		if err != nil {
			a.cancel()
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		a.Fetcher = browser
		a.closers = append(a.closers, browser.Close)
	default:
		a.Fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.Fetch.Timeout,
		}, a.Limiter, logger.Named("colly"))
	}
	logger.Debug("page fetch strategy selected", zap.String("strategy", cfg.Fetch.Strategy))

	a.Downloader = download.New(download.Config{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    cfg.Fetch.Timeout,
		MaxRetries: cfg.Fetch.MaxRetries,
	}, a.Limiter, logger)

	return a, nil
}

// OpenCache opens the asset cache root.
func (a *App) OpenCache() (*local.Store, error) {
	store, err := local.New(local.Config{BaseDir: a.Config.Cache.Dir})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", a.Config.Cache.Dir, err)
	}
	return store, nil
}

// Context is canceled by Close. Work started on behalf of the App, such as a
// Book's shared loads, stops with it.
func (a *App) Context() context.Context {
	return a.lifetime
}

// NewBook prepares an acquisition of rawURL backed by store.
func (a *App) NewBook(rawURL string, store *local.Store, failFast bool) (*scribblehub.Book, error) {
	return scribblehub.NewBook(rawURL, scribblehub.Deps{
		Fetcher:    a.Fetcher,
		Downloader: a.Downloader,
		Store:      store,
		Events:     a.Bus,
		Logger:     a.Logger,
		Lifetime:   a.lifetime,
	}, scribblehub.Options{
		ChapterConcurrency: a.Config.Fetch.ChapterConcurrency,
		AssetConcurrency:   a.Config.Fetch.AssetConcurrency,
		FailFast:           failFast,
	})
}

// Close cancels outstanding work, shuts down the services in reverse order
// of creation and flushes the logger. It is safe to call more than once.
func (a *App) Close() {
	a.cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	// Syncing stderr fails on some platforms; nothing useful can be done.
	_ = a.Logger.Sync()
}
