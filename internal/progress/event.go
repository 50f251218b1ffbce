// Package progress defines the events emitted by the acquisition pipeline.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
)

// Kind denotes the type of occurrence represented by an Event.
type Kind string

// Supported event kinds.
const (
	KindSeriesMetadataLoaded  Kind = "series-metadata-loaded"
	KindChapterBatchStarted   Kind = "chapter-batch-started"
	KindChapterLoaded         Kind = "chapter-loaded"
	KindChapterBatchFinished  Kind = "chapter-batch-finished"
	KindAssetDownloadStarted  Kind = "asset-download-started"
	KindAssetAlreadyCached    Kind = "asset-already-cached"
	KindAssetDownloadFinished Kind = "asset-download-finished"
	KindExportStarted         Kind = "export-started"

	// KindAll subscribes a handler to every kind.
	KindAll Kind = "*"
)

// Event is a single pipeline notification. Consumers must treat it as
// read-only.
type Event struct {
	// Kind identifies the occurrence.
	Kind Kind
	// RunID groups the events of one acquisition run.
	RunID uuid.UUID
	// TS is stamped by the bus when left zero.
	TS time.Time
	// Total carries the item count of a chapter batch.
	Total int
	// Metadata accompanies series-metadata-loaded.
	Metadata *novel.BookMetadata
	// Chapter accompanies chapter-loaded.
	Chapter *novel.Chapter
	// Chapters accompanies chapter-batch-finished, in requested order.
	Chapters []novel.Chapter
	// Asset accompanies the asset-* kinds.
	Asset *novel.Asset
	// Target is the destination of an export.
	Target string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	switch e.Kind {
	case KindSeriesMetadataLoaded:
		if e.Metadata == nil {
			return errors.New("series metadata event requires metadata")
		}
	case KindChapterBatchStarted:
		if e.Total < 0 {
			return errors.New("chapter batch total must be >= 0")
		}
	case KindChapterLoaded:
		if e.Chapter == nil {
			return errors.New("chapter event requires chapter")
		}
	case KindChapterBatchFinished:
	case KindAssetDownloadStarted, KindAssetAlreadyCached, KindAssetDownloadFinished:
		if e.Asset == nil {
			return errors.New("asset event requires asset")
		}
	case KindExportStarted:
	case KindAll:
		return errors.New("wildcard kind cannot be published")
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

// String renders a short human readable description, used by verbose output.
func (e Event) String() string {
	switch e.Kind {
	case KindSeriesMetadataLoaded:
		return fmt.Sprintf("%s: %q by %s", e.Kind, e.Metadata.Title, e.Metadata.Author)
	case KindChapterBatchStarted:
		return fmt.Sprintf("%s: %d chapters", e.Kind, e.Total)
	case KindChapterLoaded:
		return fmt.Sprintf("%s: #%d %s", e.Kind, e.Chapter.Index, e.Chapter.Title)
	case KindChapterBatchFinished:
		return fmt.Sprintf("%s: %d chapters", e.Kind, len(e.Chapters))
	case KindAssetDownloadStarted, KindAssetAlreadyCached, KindAssetDownloadFinished:
		return fmt.Sprintf("%s: %s -> %s", e.Kind, e.Asset.URL, e.Asset.Path)
	case KindExportStarted:
		return fmt.Sprintf("%s: %s", e.Kind, e.Target)
	default:
		return string(e.Kind)
	}
}
