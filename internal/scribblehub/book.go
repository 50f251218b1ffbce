package scribblehub

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/assetcache"
	"github.com/JakeFAU/scribblehub-fetch/internal/memo"
	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
	"github.com/JakeFAU/scribblehub-fetch/internal/progress"
	"github.com/JakeFAU/scribblehub-fetch/internal/scheduler"
	"github.com/JakeFAU/scribblehub-fetch/internal/storage/local"
)

// DefaultChapterConcurrency bounds parallel chapter loads.
const DefaultChapterConcurrency = 50

// Deps are the collaborators of a Book.
type Deps struct {
	Fetcher    novel.PageFetcher
	Downloader novel.Downloader
	// Store is rooted at the cache directory; each series uses <root>/<slug>.
	Store  *local.Store
	Events progress.Emitter
	Logger *zap.Logger
	// Lifetime bounds the shared loads (identity, metadata, TOC, cover).
	// Canceling it aborts them in flight. Defaults to context.Background().
	Lifetime context.Context
}

// Options tunes chapter acquisition.
type Options struct {
	ChapterConcurrency int
	AssetConcurrency   int
	// FailFast discards the whole batch on the first chapter failure.
	FailFast bool
	// RunID is stamped on every event; a random one is generated when nil.
	RunID uuid.UUID
}

type chapterRange struct {
	start, end int
}

// Book is the acquisition aggregate for one input URL. Every expensive step
// runs at most once per Book and is shared by all callers.
type Book struct {
	input string
	deps  Deps
	opts  Options

	resolver *Resolver
	tocs     *TOCLoader

	identity *memo.Future[Identity]
	metadata *memo.Future[novel.BookMetadata]
	toc      *memo.Future[[]novel.ChapterRef]
	cacheDir *memo.Future[string]
	assets   *memo.Future[*assetcache.Cache]
	cover    *memo.Future[string]
	batches  *otter.Cache[chapterRange, []novel.Chapter]
}

// NewBook prepares a Book for rawURL. No network traffic happens until a
// method is called.
func NewBook(rawURL string, deps Deps, opts Options) (*Book, error) {
	if deps.Fetcher == nil || deps.Downloader == nil || deps.Store == nil {
		return nil, errors.New("book requires a fetcher, a downloader and a store")
	}
	if deps.Events == nil {
		deps.Events = progress.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Lifetime == nil {
		deps.Lifetime = context.Background()
	}
	if opts.ChapterConcurrency <= 0 {
		opts.ChapterConcurrency = DefaultChapterConcurrency
	}
	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}

	b := &Book{
		input:    rawURL,
		deps:     deps,
		opts:     opts,
		resolver: NewResolver(deps.Fetcher, deps.Logger),
		tocs:     NewTOCLoader(deps.Fetcher, deps.Logger),
		batches: otter.Must(&otter.Options[chapterRange, []novel.Chapter]{
			MaximumSize: 64,
		}),
	}
	b.identity = memo.New(deps.Lifetime, b.loadIdentity)
	b.metadata = memo.New(deps.Lifetime, b.loadMetadata)
	b.toc = memo.New(deps.Lifetime, b.loadTOC)
	b.cacheDir = memo.New(deps.Lifetime, b.loadCacheDir)
	b.assets = memo.New(deps.Lifetime, b.loadAssets)
	b.cover = memo.New(deps.Lifetime, b.loadCover)
	return b, nil
}

// RunID identifies the events published by this Book.
func (b *Book) RunID() uuid.UUID {
	return b.opts.RunID
}

// Identity resolves the input URL.
func (b *Book) Identity(ctx context.Context) (Identity, error) {
	return b.identity.Get(ctx)
}

// Metadata loads the series page once and publishes series-metadata-loaded.
func (b *Book) Metadata(ctx context.Context) (novel.BookMetadata, error) {
	return b.metadata.Get(ctx)
}

// TOC returns the ordered chapter list of the whole series.
func (b *Book) TOC(ctx context.Context) ([]novel.ChapterRef, error) {
	refs, err := b.toc.Get(ctx)
	return slices.Clone(refs), err
}

// CacheDir returns the per-series asset directory, creating it if needed.
func (b *Book) CacheDir(ctx context.Context) (string, error) {
	return b.cacheDir.Get(ctx)
}

// Cover downloads the cover image into the cache and returns its path. A
// series without a cover yields an empty path.
func (b *Book) Cover(ctx context.Context) (string, error) {
	return b.cover.Get(ctx)
}

// Chapters loads chapters startWith..endWith (1-based, inclusive) of the
// TOC. endWith <= 0 means the last chapter. When the input was a chapter
// URL, the range starts at that chapter regardless of startWith.
//
// The result is always index-aligned to the requested range. When some
// chapters failed they are returned with State failed alongside a
// *scheduler.BatchError, unless Options.FailFast is set, in which case no
// chapters are returned. Repeated calls with the same range reuse the first
// outcome.
func (b *Book) Chapters(ctx context.Context, startWith, endWith int) ([]novel.Chapter, error) {
	key := chapterRange{start: startWith, end: endWith}
	chapters, err := b.batches.Get(ctx, key, otter.LoaderFunc[chapterRange, []novel.Chapter](b.loadChapters))
	if err != nil {
		return nil, err
	}
	chapters = slices.Clone(chapters)
	if batchErr := failuresOf(chapters); batchErr != nil {
		return chapters, batchErr
	}
	return chapters, nil
}

func (b *Book) loadIdentity(ctx context.Context) (Identity, error) {
	return b.resolver.Resolve(ctx, b.input)
}

func (b *Book) loadMetadata(ctx context.Context) (novel.BookMetadata, error) {
	id, err := b.Identity(ctx)
	if err != nil {
		return novel.BookMetadata{}, err
	}
	page, err := b.deps.Fetcher.Get(ctx, id.SeriesURL)
	if err != nil {
		return novel.BookMetadata{}, fmt.Errorf("load series page: %w", err)
	}
	meta, err := ParseMetadata(id.SeriesURL, page.Body)
	if err != nil {
		return novel.BookMetadata{}, err
	}
	b.deps.Logger.Info("series metadata loaded",
		zap.String("title", meta.Title),
		zap.String("author", meta.Author),
		zap.Int("post_id", meta.PostID),
	)
	b.deps.Events.Publish(progress.Event{
		Kind:     progress.KindSeriesMetadataLoaded,
		RunID:    b.opts.RunID,
		Metadata: &meta,
	})
	return meta, nil
}

func (b *Book) loadTOC(ctx context.Context) ([]novel.ChapterRef, error) {
	id, err := b.Identity(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := b.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return b.tocs.Load(ctx, id.SeriesURL, meta.PostID)
}

func (b *Book) loadCacheDir(ctx context.Context) (string, error) {
	meta, err := b.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return b.deps.Store.MkdirAll(meta.Slug)
}

// Assets returns the asset cache for this series.
func (b *Book) Assets(ctx context.Context) (*assetcache.Cache, error) {
	return b.assets.Get(ctx)
}

func (b *Book) loadAssets(ctx context.Context) (*assetcache.Cache, error) {
	meta, err := b.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return assetcache.New(assetcache.Config{
		Slug:        meta.Slug,
		Concurrency: b.opts.AssetConcurrency,
		RunID:       b.opts.RunID,
	}, b.deps.Store, b.deps.Downloader, b.deps.Events, b.deps.Logger)
}

func (b *Book) loadCover(ctx context.Context) (string, error) {
	meta, err := b.Metadata(ctx)
	if err != nil {
		return "", err
	}
	if meta.CoverURL == "" {
		return "", nil
	}
	if _, err := b.CacheDir(ctx); err != nil {
		return "", err
	}
	cache, err := b.Assets(ctx)
	if err != nil {
		return "", err
	}
	return cache.Fetch(ctx, meta.CoverURL)
}

// loadChapters is the otter loader for one range. Partial outcomes are
// returned without error so they are cached; aborted or fail-fast batches
// return an error and are not.
func (b *Book) loadChapters(ctx context.Context, key chapterRange) ([]novel.Chapter, error) {
	id, err := b.Identity(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := b.TOC(ctx)
	if err != nil {
		return nil, err
	}
	startWith := key.start
	if id.StartChapterURL != "" {
		pos := slices.IndexFunc(refs, func(r novel.ChapterRef) bool { return r.URL == id.StartChapterURL })
		if pos < 0 {
			return nil, &novel.ResolutionError{URL: id.StartChapterURL, Reason: "starting chapter not in table of contents"}
		}
		startWith = pos + 1
	}
	from, to := rangeBounds(startWith, key.end, len(refs))
	selected := refs[from:to]

	if _, err := b.CacheDir(ctx); err != nil {
		return nil, err
	}
	assets, err := b.Assets(ctx)
	if err != nil {
		return nil, err
	}
	loader := NewChapterLoader(b.deps.Fetcher, assets)

	chapterAt := func(i int, r scheduler.Result[novel.Chapter]) novel.Chapter {
		ch := r.Value
		ch.Index = from + i + 1
		ch.URL = selected[i].URL
		if r.Err != nil {
			ch.State = novel.StateFailed
			ch.Err = r.Err
		}
		return ch
	}
	observer := scheduler.ObserverFuncs[novel.Chapter]{
		OnStarted: func(total int) {
			b.deps.Events.Publish(progress.Event{Kind: progress.KindChapterBatchStarted, RunID: b.opts.RunID, Total: total})
		},
		OnCompleted: func(i int, r scheduler.Result[novel.Chapter]) {
			ch := chapterAt(i, r)
			b.deps.Events.Publish(progress.Event{Kind: progress.KindChapterLoaded, RunID: b.opts.RunID, Chapter: &ch})
		},
		OnFinished: func(results []scheduler.Result[novel.Chapter]) {
			chapters := make([]novel.Chapter, len(results))
			for i, r := range results {
				chapters[i] = chapterAt(i, r)
			}
			b.deps.Events.Publish(progress.Event{Kind: progress.KindChapterBatchFinished, RunID: b.opts.RunID, Chapters: chapters})
		},
	}

	results, err := scheduler.Run(ctx, len(selected), func(ctx context.Context, i int) (novel.Chapter, error) {
		return loader.Load(ctx, from+i+1, selected[i].URL)
	}, scheduler.Options{Concurrency: b.opts.ChapterConcurrency, FailFast: b.opts.FailFast}, observer)
	if results == nil && err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("load chapters: %w", ctxErr)
	}

	chapters := make([]novel.Chapter, len(results))
	for i, r := range results {
		chapters[i] = chapterAt(i, r)
	}
	if err != nil {
		b.deps.Logger.Warn("some chapters failed to load", zap.Error(err))
	}
	return chapters, nil
}

// rangeBounds converts a 1-based inclusive range into slice bounds over n
// entries. startWith below 1 is raised to 1; endWith <= 0 or past the end
// means the last entry. An inverted range is empty.
func rangeBounds(startWith, endWith, n int) (int, int) {
	if startWith < 1 {
		startWith = 1
	}
	if endWith <= 0 || endWith > n {
		endWith = n
	}
	if startWith > endWith {
		return 0, 0
	}
	return startWith - 1, endWith
}

func failuresOf(chapters []novel.Chapter) *scheduler.BatchError {
	var failures []scheduler.ItemError
	for i, ch := range chapters {
		if !ch.Loaded() {
			failures = append(failures, scheduler.ItemError{Index: i, Err: ch.Err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &scheduler.BatchError{Total: len(chapters), Failures: failures}
}
