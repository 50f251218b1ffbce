// Package collyfetcher implements novel.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/fetcher/detector"
	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
	"github.com/JakeFAU/scribblehub-fetch/internal/policy/ratelimit"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements novel.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	logger        *zap.Logger
	detector      *detector.Heuristic
	browserHint   sync.Once
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter and logger may be nil.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		logger:        logger,
		detector:      detector.NewHeuristic(0),
	}
}

// Get executes a single HTTP GET.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (novel.Page, error) {
	return f.do(ctx, http.MethodGet, rawURL, nil)
}

// PostForm submits form with its fields in declared order.
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, form novel.Form) (novel.Page, error) {
	return f.do(ctx, http.MethodPost, rawURL, form)
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string, form novel.Form) (novel.Page, error) {
	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		return novel.Page{}, err
	}

	var (
		page     novel.Page
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, method, &page, &fetchErr)

	visit := func() error { return collector.Visit(rawURL) }
	if method == http.MethodPost {
		body := []byte(form.Encode())
		visit = func() error { return collector.PostRaw(rawURL, body) }
	}
	if err := runCollector(ctx, visit, &fetchErr); err != nil {
		return novel.Page{}, err
	}

	f.logger.Debug("page fetched",
		zap.String("method", method),
		zap.String("url", rawURL),
		zap.Int("status", page.StatusCode),
		zap.Int("bytes", len(page.Body)),
		zap.Duration("duration", time.Since(start)),
	)
	if f.detector.NeedsBrowser(page.StatusCode, page.Body) {
		f.browserHint.Do(func() {
			f.logger.Warn("Page appears to need a browser; consider fetch.strategy=headless",
				zap.String("url", rawURL),
				zap.Int("status", page.StatusCode),
			)
		})
	}
	if err := novel.CheckStatus(rawURL, page.StatusCode); err != nil {
		return novel.Page{}, err
	}
	return page, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	method string,
	page *novel.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if method == http.MethodPost {
			r.Headers.Set("Content-Type", novel.FormContentType)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*page = novel.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, visit func() error, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
	}
}
