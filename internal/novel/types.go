package novel

import (
	"fmt"
	"time"
)

// BookMetadata describes a series as published on its main page. It is
// immutable once loaded.
type BookMetadata struct {
	PostID      int       `json:"post_id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Publisher   string    `json:"publisher"`
	Description string    `json:"description"`
	Details     string    `json:"details"`
	CoverURL    string    `json:"cover_url"`
	Published   time.Time `json:"published"`
}

// ChapterRef is one entry of the table of contents.
type ChapterRef struct {
	Order int    `json:"order"`
	URL   string `json:"url"`
}

// LoadState represents the lifecycle state of a chapter within one run.
type LoadState string

// Chapter load states.
const (
	StateUnloaded LoadState = "unloaded"
	StateLoaded   LoadState = "loaded"
	StateFailed   LoadState = "failed"
)

// Chapter is a single chapter of the requested range. Index is the 1-based
// position within the book, assigned when the range is sliced out of the TOC.
type Chapter struct {
	Index   int       `json:"index"`
	URL     string    `json:"url"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	State   LoadState `json:"state"`
	Err     error     `json:"-"`
}

// Loaded reports whether the chapter body is available.
func (c Chapter) Loaded() bool {
	return c.State == StateLoaded
}

// FileName is the conventional name of the chapter document inside an export.
func (c Chapter) FileName() string {
	return fmt.Sprintf("chapter-%d.html", c.Index)
}

// AssetState tracks whether an asset is present in the local cache.
type AssetState string

// Asset presence states.
const (
	AssetAbsent      AssetState = "absent"
	AssetDownloading AssetState = "downloading"
	AssetPresent     AssetState = "present"
)

// Asset is an inline resource (chapter image or cover) and its cache location.
type Asset struct {
	URL   string     `json:"url"`
	Path  string     `json:"path"`
	State AssetState `json:"state"`
	Bytes int64      `json:"bytes,omitempty"`
}
