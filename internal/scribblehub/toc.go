package scribblehub

import (
	"bytes"
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
)

// tocRow is one .toc_w element of the TOC fragment. Either accessor may
// report absence; such rows are skipped.
type tocRow struct {
	sel  *goquery.Selection
	base *url.URL
}

// Order returns the integer order attribute. The whole trimmed value must be
// an integer, so values like "1.5" or "12a" are rejected rather than
// truncated to their leading digits.
func (r tocRow) Order() (int, bool) {
	v, ok := r.sel.Attr("order")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Href returns the absolute chapter link.
func (r tocRow) Href() (string, bool) {
	v, ok := r.sel.Find(".toc_a").First().Attr("href")
	if !ok {
		return "", false
	}
	return resolveRef(r.base, v)
}

// ParseTOC reads the TOC fragment and returns its chapters in ascending
// order. Rows with equal order keep their document order.
func ParseTOC(baseURL string, body []byte) ([]novel.ChapterRef, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(baseURL)

	var refs []novel.ChapterRef
	doc.Find(".toc_w").Each(func(_ int, s *goquery.Selection) {
		row := tocRow{sel: s, base: base}
		order, ok := row.Order()
		if !ok {
			return
		}
		href, ok := row.Href()
		if !ok {
			return
		}
		refs = append(refs, novel.ChapterRef{Order: order, URL: href})
	})
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Order < refs[j].Order })
	return refs, nil
}

// TOCLoader fetches the complete chapter list of a series.
type TOCLoader struct {
	fetcher novel.PageFetcher
	logger  *zap.Logger
}

// NewTOCLoader builds a TOCLoader.
func NewTOCLoader(fetcher novel.PageFetcher, logger *zap.Logger) *TOCLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TOCLoader{fetcher: fetcher, logger: logger}
}

// Load posts the pagination request for postID and parses the result.
func (l *TOCLoader) Load(ctx context.Context, seriesURL string, postID int) ([]novel.ChapterRef, error) {
	endpoint, err := ajaxEndpoint(seriesURL)
	if err != nil {
		return nil, &novel.TocError{URL: seriesURL, Err: err}
	}
	form := novel.Form{
		{Key: "action", Value: "wi_getreleases_pagination"},
		{Key: "pagenum", Value: "-1"},
		{Key: "mypostid", Value: strconv.Itoa(postID)},
	}
	page, err := l.fetcher.PostForm(ctx, endpoint, form)
	if err != nil {
		return nil, &novel.TocError{URL: endpoint, Err: err}
	}
	refs, err := ParseTOC(endpoint, page.Body)
	if err != nil {
		return nil, &novel.TocError{URL: endpoint, Err: err}
	}
	l.logger.Debug("table of contents loaded", zap.String("series", seriesURL), zap.Int("chapters", len(refs)))
	return refs, nil
}
