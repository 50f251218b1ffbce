package scribblehub

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
)

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2, 2006 03:04 PM",
}

// ParseMetadata extracts BookMetadata from a series page. Title and a
// positive post ID are required; every other field is best effort.
func ParseMetadata(seriesURL string, body []byte) (novel.BookMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return novel.BookMetadata{}, fmt.Errorf("parse series page: %w", err)
	}
	base, _ := url.Parse(seriesURL)

	meta := novel.BookMetadata{
		Slug:        slugOf(seriesURL),
		Title:       text(doc.Find(".fic_title")),
		Author:      text(doc.Find(".auth_name_fic")),
		Publisher:   Publisher,
		Description: attr(doc.Find(`meta[property="og:description"]`), "content"),
		Published:   parsePublished(doc),
	}
	if html, err := doc.Find(".wi_fic_desc").First().Html(); err == nil {
		meta.Details = strings.TrimSpace(html)
	}
	if cover, ok := resolveRef(base, attr(doc.Find(".fic_image img"), "src")); ok {
		meta.CoverURL = cover
	}
	meta.PostID = parsePostID(doc, seriesURL)

	if meta.Title == "" {
		return meta, fmt.Errorf("%w: title", novel.ErrMetadataMissing)
	}
	if meta.PostID <= 0 {
		return meta, fmt.Errorf("%w: post id", novel.ErrMetadataMissing)
	}
	return meta, nil
}

func parsePostID(doc *goquery.Document, seriesURL string) int {
	if v := attr(doc.Find("#mypostid"), "value"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			return id
		}
	}
	if m := seriesIDPattern.FindStringSubmatch(seriesURL); m != nil {
		if id, err := strconv.Atoi(m[1]); err == nil {
			return id
		}
	}
	return 0
}

func parsePublished(doc *goquery.Document) time.Time {
	candidates := []string{
		attr(doc.Find(`meta[property="article:published_time"]`), "content"),
		attr(doc.Find(".fic_date_pub"), "title"),
		text(doc.Find(".fic_date_pub")),
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		for _, layout := range publishedLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.First().Attr(name)
	return strings.TrimSpace(v)
}
