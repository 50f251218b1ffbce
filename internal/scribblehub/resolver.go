package scribblehub

import (
	"bytes"
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
)

// Identity is the canonical series behind an input URL.
type Identity struct {
	// SeriesURL is the canonical series page.
	SeriesURL string
	// StartChapterURL is set when the input was a chapter page. It overrides
	// any caller supplied start index.
	StartChapterURL string
}

// Resolver turns an input URL into an Identity.
type Resolver struct {
	fetcher novel.PageFetcher
	logger  *zap.Logger
}

// NewResolver builds a Resolver.
func NewResolver(fetcher novel.PageFetcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: fetcher, logger: logger}
}

// Resolve classifies rawURL. Series URLs are returned as is; chapter URLs
// cost one GET to read the canonical series link.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (Identity, error) {
	switch Classify(rawURL) {
	case URLSeries:
		return Identity{SeriesURL: rawURL}, nil
	case URLChapter:
		return r.resolveChapter(ctx, rawURL)
	default:
		return Identity{}, &novel.ResolutionError{URL: rawURL, Reason: "not a valid series url"}
	}
}

func (r *Resolver) resolveChapter(ctx context.Context, chapterURL string) (Identity, error) {
	page, err := r.fetcher.Get(ctx, chapterURL)
	if err != nil {
		return Identity{}, &novel.ResolutionError{URL: chapterURL, Reason: "load chapter page", Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return Identity{}, &novel.ResolutionError{URL: chapterURL, Reason: "parse chapter page", Err: err}
	}
	href, _ := doc.Find(".c_index a").First().Attr("href")
	base, _ := url.Parse(chapterURL)
	seriesURL, ok := resolveRef(base, href)
	if !ok {
		return Identity{}, &novel.ResolutionError{URL: chapterURL, Reason: "canonical link missing"}
	}
	r.logger.Debug("resolved chapter url", zap.String("chapter", chapterURL), zap.String("series", seriesURL))
	return Identity{SeriesURL: seriesURL, StartChapterURL: chapterURL}, nil
}
