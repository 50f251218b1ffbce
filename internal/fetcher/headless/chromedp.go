// Package headless contains page fetchers that drive a real browser.
package headless

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
	"github.com/JakeFAU/scribblehub-fetch/internal/policy/ratelimit"
)

const defaultNavTimeout = 30 * time.Second

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Fetcher implements novel.PageFetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	slots       chan struct{}
	limiter     *ratelimit.Limiter
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. The browser is
// started lazily on the first request.
func NewChromedp(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var slots chan struct{}
	if cfg.MaxParallel > 0 {
		slots = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		slots:       slots,
		limiter:     limiter,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Get navigates to rawURL and returns the rendered DOM.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (novel.Page, error) {
	return f.render(ctx, rawURL, nil)
}

// PostForm loads rawURL as a top-level POST navigation. The browser's
// document request is intercepted and rewritten to carry the encoded form.
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, form novel.Form) (novel.Page, error) {
	return f.render(ctx, rawURL, form)
}

func (f *Fetcher) render(ctx context.Context, rawURL string, form novel.Form) (novel.Page, error) {
	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		return novel.Page{}, err
	}
	if err := f.acquire(ctx); err != nil {
		return novel.Page{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()
	// Propagate caller cancellation into the browser tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	var rewrite *postRewrite
	if form != nil {
		rewrite = newPostRewrite(rawURL, form)
	}
	chromedp.ListenTarget(taskCtx, func(ev any) {
		meta.captureEvent(ev)
		if paused, ok := ev.(*fetch.EventRequestPaused); ok {
			go f.continueRequest(taskCtx, rewrite.params(paused))
		}
	})

	start := time.Now()
	html, finalURL, err := f.runHeadless(taskCtx, rawURL, form != nil)
	if err != nil {
		if ctx.Err() != nil {
			return novel.Page{}, fmt.Errorf("headless fetch canceled: %w", ctx.Err())
		}
		return novel.Page{}, err
	}

	status, responseURL := meta.snapshotWithFallbacks(rawURL, finalURL)
	f.logger.Debug("page rendered",
		zap.String("url", rawURL),
		zap.Bool("post", form != nil),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)),
	)
	if err := novel.CheckStatus(rawURL, status); err != nil {
		return novel.Page{}, err
	}
	return novel.Page{URL: responseURL, StatusCode: status, Body: []byte(html)}, nil
}

func (f *Fetcher) continueRequest(ctx context.Context, params *fetch.ContinueRequestParams) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	if err := params.Do(cdp.WithExecutor(ctx, c.Target)); err != nil {
		f.logger.Debug("continue intercepted request", zap.Error(err))
	}
}

func (f *Fetcher) runHeadless(ctx context.Context, rawURL string, intercept bool) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(intercept),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction(intercept bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if intercept {
			patterns := []*fetch.RequestPattern{{URLPattern: "*", RequestStage: fetch.RequestStageRequest}}
			if err := fetch.Enable().WithPatterns(patterns).Do(ctx); err != nil {
				return fmt.Errorf("enable fetch interception: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.slots == nil {
		return nil
	}
	select {
	case f.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.slots == nil {
		return
	}
	select {
	case <-f.slots:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

// postRewrite turns the first document request for target into a form POST.
// Every other intercepted request continues unchanged.
type postRewrite struct {
	target string
	body   string
	once   sync.Once
}

func newPostRewrite(target string, form novel.Form) *postRewrite {
	return &postRewrite{target: target, body: form.Encode()}
}

func (p *postRewrite) params(ev *fetch.EventRequestPaused) *fetch.ContinueRequestParams {
	params := fetch.ContinueRequest(ev.RequestID)
	if p == nil || ev.Request == nil || ev.ResourceType != network.ResourceTypeDocument || ev.Request.URL != p.target {
		return params
	}
	rewritten := false
	p.once.Do(func() { rewritten = true })
	if !rewritten {
		return params
	}
	return params.
		WithMethod(http.MethodPost).
		WithPostData(base64.StdEncoding.EncodeToString([]byte(p.body))).
		WithHeaders(formHeaders(ev.Request.Headers))
}

func formHeaders(src network.Headers) []*fetch.HeaderEntry {
	entries := make([]*fetch.HeaderEntry, 0, len(src)+1)
	for name, value := range src {
		if http.CanonicalHeaderKey(name) == "Content-Type" {
			continue
		}
		entries = append(entries, &fetch.HeaderEntry{Name: name, Value: fmt.Sprint(value)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return append(entries, &fetch.HeaderEntry{Name: "Content-Type", Value: novel.FormContentType})
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
