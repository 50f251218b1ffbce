package scribblehub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/scribblehub-fetch/internal/assetcache"
	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
)

var errChapterBodyMissing = errors.New("chapter body missing")

// ChapterLoader fetches and parses single chapter pages.
type ChapterLoader struct {
	fetcher novel.PageFetcher
	assets  *assetcache.Cache
}

// NewChapterLoader builds a ChapterLoader. Inline images are stored in assets.
func NewChapterLoader(fetcher novel.PageFetcher, assets *assetcache.Cache) *ChapterLoader {
	return &ChapterLoader{fetcher: fetcher, assets: assets}
}

// Load fetches the chapter at ref and returns it with State loaded. On error
// the returned chapter still carries its index and URL.
func (l *ChapterLoader) Load(ctx context.Context, index int, chapterURL string) (novel.Chapter, error) {
	ch := novel.Chapter{Index: index, URL: chapterURL, State: novel.StateUnloaded}
	fail := func(err error) (novel.Chapter, error) {
		ch.State = novel.StateFailed
		ch.Err = fmt.Errorf("chapter %d: %w", index, err)
		return ch, ch.Err
	}

	page, err := l.fetcher.Get(ctx, chapterURL)
	if err != nil {
		return fail(err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return fail(err)
	}
	body := doc.Find("#chp_raw").First()
	if body.Length() == 0 {
		return fail(errChapterBodyMissing)
	}
	base, _ := url.Parse(chapterURL)
	if err := l.assets.LocalizeImages(ctx, body, base); err != nil {
		return fail(err)
	}
	content, err := body.Html()
	if err != nil {
		return fail(err)
	}

	ch.Title = strings.TrimSpace(doc.Find(".chapter-title").First().Text())
	ch.Content = strings.TrimSpace(content)
	ch.State = novel.StateLoaded
	return ch, nil
}
