// Package export hands an acquired book to downstream tooling. The Manifest
// exporter writes one JSON document per book holding metadata, the cover
// path and every chapter in reading order.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
	"github.com/JakeFAU/scribblehub-fetch/internal/progress"
	"github.com/JakeFAU/scribblehub-fetch/internal/scheduler"
	"github.com/JakeFAU/scribblehub-fetch/internal/storage/local"
)

// Source is the narrow view of a book the exporter needs.
type Source interface {
	Metadata(ctx context.Context) (novel.BookMetadata, error)
	Chapters(ctx context.Context, startWith, endWith int) ([]novel.Chapter, error)
	Cover(ctx context.Context) (string, error)
}

// Range selects chapters, 1-based and inclusive. End <= 0 means the last one.
type Range struct {
	Start int
	End   int
}

// Options controls an export.
type Options struct {
	// Dir receives <slug>.json when Target is empty.
	Dir string
	// Target overrides the output file.
	Target string
	// AllowPartial writes the document even when some chapters failed.
	AllowPartial bool
	RunID        uuid.UUID
}

// Document is the JSON layout written by Manifest.
type Document struct {
	Metadata   novel.BookMetadata `json:"metadata"`
	Cover      string             `json:"cover,omitempty"`
	Synopsis   Entry              `json:"synopsis"`
	Chapters   []Entry            `json:"chapters"`
	ExportedAt time.Time          `json:"exported_at"`
}

// Entry is one document of the book.
type Entry struct {
	Index    int             `json:"index"`
	Title    string          `json:"title"`
	FileName string          `json:"file_name"`
	URL      string          `json:"url,omitempty"`
	State    novel.LoadState `json:"state,omitempty"`
	Content  string          `json:"content"`
}

// Manifest writes books as JSON manifests.
type Manifest struct {
	events progress.Emitter
	logger *zap.Logger
	now    func() time.Time
}

// NewManifest builds a Manifest exporter. events and logger may be nil.
func NewManifest(events progress.Emitter, logger *zap.Logger) *Manifest {
	if events == nil {
		events = progress.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manifest{events: events, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Export acquires the selected chapters from src and writes the manifest. It
// returns the path written. Chapter failures abort the export unless
// opts.AllowPartial is set.
func (m *Manifest) Export(ctx context.Context, src Source, r Range, opts Options) (string, error) {
	meta, err := src.Metadata(ctx)
	if err != nil {
		return "", err
	}
	chapters, err := src.Chapters(ctx, r.Start, r.End)
	if err != nil {
		var batchErr *scheduler.BatchError
		if !opts.AllowPartial || !errors.As(err, &batchErr) || chapters == nil {
			return "", fmt.Errorf("acquire chapters: %w", err)
		}
		m.logger.Warn("exporting partial book", zap.Int("failed", len(batchErr.Failures)), zap.Int("total", batchErr.Total))
	}
	cover, err := src.Cover(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire cover: %w", err)
	}

	target := opts.Target
	if target == "" {
		target = filepath.Join(opts.Dir, meta.Slug+".json")
	}
	m.events.Publish(progress.Event{Kind: progress.KindExportStarted, RunID: opts.RunID, Target: target})

	doc := Document{
		Metadata: meta,
		Cover:    cover,
		Synopsis: Entry{
			Index:    0,
			Title:    "Synopsis",
			FileName: "synopsis.html",
			Content:  meta.Details,
		},
		Chapters:   make([]Entry, 0, len(chapters)),
		ExportedAt: m.now(),
	}
	for _, ch := range chapters {
		doc.Chapters = append(doc.Chapters, Entry{
			Index:    ch.Index,
			Title:    ch.Title,
			FileName: ch.FileName(),
			URL:      ch.URL,
			State:    ch.State,
			Content:  ch.Content,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", target, err)
	}
	store, err := local.New(local.Config{BaseDir: filepath.Dir(abs)})
	if err != nil {
		return "", err
	}
	written, _, err := store.Put(ctx, filepath.Base(abs), &buf)
	if err != nil {
		return "", err
	}
	m.logger.Info("manifest written", zap.String("path", written), zap.Int("chapters", len(doc.Chapters)))
	return written, nil
}
