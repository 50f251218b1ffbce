// Package download streams binary assets over HTTP with retries.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
	"github.com/JakeFAU/scribblehub-fetch/internal/policy/ratelimit"
)

// Config controls the HTTP client.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Downloader implements novel.Downloader.
type Downloader struct {
	client  *retryablehttp.Client
	limiter *ratelimit.Limiter
}

type userAgentTransport struct {
	agent   string
	wrapped http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.wrapped.RoundTrip(req)
}

// New builds a Downloader. limiter and logger may be nil.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &userAgentTransport{
			agent:   cfg.UserAgent,
			wrapped: http.DefaultTransport,
		},
	}
	if cfg.MaxRetries >= 0 {
		client.RetryMax = cfg.MaxRetries
	}
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	// Hand the final response back so the status can be reported precisely.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = leveledLogger{logger: logger.Named("download")}

	return &Downloader{client: client, limiter: limiter}
}

// Download issues a GET for rawURL. The caller must close the returned body.
func (d *Downloader) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := d.limiter.Wait(ctx, rawURL); err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if err := novel.CheckStatus(rawURL, resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger *zap.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Warnw(msg, keysAndValues...)
}

var _ retryablehttp.LeveledLogger = leveledLogger{}
