// Package assetcache maps remote asset URLs to deterministic local paths and
// downloads them only on a cache miss.
package assetcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
	"github.com/JakeFAU/scribblehub-fetch/internal/progress"
	"github.com/JakeFAU/scribblehub-fetch/internal/scheduler"
	"github.com/JakeFAU/scribblehub-fetch/internal/storage/local"
)

// DefaultConcurrency bounds parallel image downloads for one chapter.
const DefaultConcurrency = 8

// Config controls a Cache.
type Config struct {
	// Slug names the per-series subdirectory of the store.
	Slug string
	// Concurrency bounds LocalizeImages downloads.
	Concurrency int
	// RunID is stamped on published events.
	RunID uuid.UUID
}

// Cache stores the assets of one series under <store>/<slug>.
type Cache struct {
	cfg        Config
	store      *local.Store
	downloader novel.Downloader
	events     progress.Emitter
	logger     *zap.Logger
	flight     singleflight.Group
}

// New builds a Cache. events and logger may be nil.
func New(cfg Config, store *local.Store, downloader novel.Downloader, events progress.Emitter, logger *zap.Logger) (*Cache, error) {
	if strings.TrimSpace(cfg.Slug) == "" {
		return nil, errors.New("asset cache requires a slug")
	}
	if store == nil || downloader == nil {
		return nil, errors.New("asset cache requires a store and a downloader")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if events == nil {
		events = progress.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		cfg:        cfg,
		store:      store,
		downloader: downloader,
		events:     events,
		logger:     logger,
	}, nil
}

// Locate returns the local path for rawURL without touching the network.
// Only the URL path contributes, so equal paths on different hosts collide.
func (c *Cache) Locate(rawURL string) (string, error) {
	_, full, err := c.locate(rawURL)
	return full, err
}

func (c *Cache) locate(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse asset url %q: %w", rawURL, err)
	}
	p := strings.TrimPrefix(u.Path, "/")
	if p == "" || strings.HasSuffix(p, "/") {
		return "", "", fmt.Errorf("asset url %q has no file path", rawURL)
	}
	rel := path.Join(c.cfg.Slug, p)
	full, err := c.store.Path(rel)
	if err != nil {
		return "", "", err
	}
	return rel, full, nil
}

// Fetch makes rawURL available locally and returns its path. Present files
// are never downloaded again. Concurrent requests for the same asset share a
// single download.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (string, error) {
	rel, full, err := c.locate(rawURL)
	if err != nil {
		return "", err
	}
	_, err, _ = c.flight.Do(full, func() (any, error) {
		return nil, c.fetch(ctx, rawURL, rel, full)
	})
	if err != nil {
		return "", err
	}
	return full, nil
}

func (c *Cache) fetch(ctx context.Context, rawURL, rel, full string) error {
	asset := novel.Asset{URL: rawURL, Path: full, State: novel.AssetAbsent}
	ok, err := c.store.Exists(rel)
	if err != nil {
		return err
	}
	if ok {
		asset.State = novel.AssetPresent
		c.publish(progress.KindAssetAlreadyCached, asset)
		return nil
	}

	asset.State = novel.AssetDownloading
	c.publish(progress.KindAssetDownloadStarted, asset)

	body, err := c.downloader.Download(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("fetch asset: %w", err)
	}
	defer func() { _ = body.Close() }()

	_, n, err := c.store.Put(ctx, rel, body)
	if err != nil {
		return fmt.Errorf("store asset: %w", err)
	}

	asset.State = novel.AssetPresent
	asset.Bytes = n
	c.publish(progress.KindAssetDownloadFinished, asset)
	c.logger.Debug("asset cached", zap.String("url", rawURL), zap.String("path", full), zap.Int64("bytes", n))
	return nil
}

func (c *Cache) publish(kind progress.Kind, asset novel.Asset) {
	c.events.Publish(progress.Event{Kind: kind, RunID: c.cfg.RunID, Asset: &asset})
}

// LocalizeImages downloads every img[src] below sel and rewrites each src to
// its cached path. Relative sources are resolved against base. Images whose
// download fails keep their original src and are reported in the returned
// *scheduler.BatchError.
func (c *Cache) LocalizeImages(ctx context.Context, sel *goquery.Selection, base *url.URL) error {
	type image struct {
		node *goquery.Selection
		url  string
	}
	var images []image
	sel.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		ref, err := url.Parse(src)
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		images = append(images, image{node: img, url: ref.String()})
	})
	if len(images) == 0 {
		return nil
	}

	results, err := scheduler.Run(ctx, len(images), func(ctx context.Context, i int) (string, error) {
		return c.Fetch(ctx, images[i].url)
	}, scheduler.Options{Concurrency: c.cfg.Concurrency}, nil)

	// goquery nodes are not safe for concurrent mutation; rewrite after the batch.
	for i, r := range results {
		if r.Err == nil {
			images[i].node.SetAttr("src", r.Value)
		}
	}
	if err != nil {
		return fmt.Errorf("localize images: %w", err)
	}
	return nil
}
