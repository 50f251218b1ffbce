// Package scribblehub acquires a serialized novel from Scribble Hub: it
// resolves the input URL, loads metadata and the table of contents, and
// fetches chapters with their inline images.
package scribblehub

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Publisher is recorded on every book's metadata.
const Publisher = "Scribble Hub"

const ajaxPath = "/wp-admin/admin-ajax.php"

var (
	chapterURLPattern = regexp.MustCompile(`^https://www\.scribblehub\.com/read/.+/chapter/\d+/$`)
	seriesURLPattern  = regexp.MustCompile(`^https://www\.scribblehub\.com/series/\d+/.+/$`)
	seriesIDPattern   = regexp.MustCompile(`/series/(\d+)/`)
)

// URLKind classifies an input URL.
type URLKind int

// Input URL kinds.
const (
	URLInvalid URLKind = iota
	URLChapter
	URLSeries
)

func (k URLKind) String() string {
	switch k {
	case URLChapter:
		return "chapter"
	case URLSeries:
		return "series"
	default:
		return "invalid"
	}
}

// Classify reports whether rawURL is a chapter page, a series page, or
// neither. Matching is on the full URL string, so the trailing slash matters.
func Classify(rawURL string) URLKind {
	switch {
	case chapterURLPattern.MatchString(rawURL):
		return URLChapter
	case seriesURLPattern.MatchString(rawURL):
		return URLSeries
	default:
		return URLInvalid
	}
}

// ajaxEndpoint returns the TOC endpoint on the origin of seriesURL.
func ajaxEndpoint(seriesURL string) (string, error) {
	u, err := url.Parse(seriesURL)
	if err != nil {
		return "", fmt.Errorf("parse series url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("series url %q is not absolute", seriesURL)
	}
	return u.Scheme + "://" + u.Host + ajaxPath, nil
}

// slugOf returns the last non-empty path segment of seriesURL.
func slugOf(seriesURL string) string {
	u, err := url.Parse(seriesURL)
	if err != nil {
		return ""
	}
	return path.Base(strings.TrimRight(u.Path, "/"))
}

// resolveRef resolves href relative to base. Empty or unparseable input
// yields false.
func resolveRef(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return "", false
	}
	return ref.String(), true
}
