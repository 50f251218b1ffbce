package scribblehub

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
	"github.com/JakeFAU/scribblehub-fetch/internal/progress"
	"github.com/JakeFAU/scribblehub-fetch/internal/storage/local"
)

const (
	testSeriesURL = "https://www.scribblehub.com/series/123/my-novel/"
	testAjaxURL   = "https://www.scribblehub.com/wp-admin/admin-ajax.php"
	testCoverURL  = "https://cdn.scribblehub.com/images/cover.jpg"
)

func testChapterURL(n int) string {
	return fmt.Sprintf("https://www.scribblehub.com/read/123-my-novel/chapter/%d/", n)
}

const seriesPage = `<html><head>
<meta property="og:description" content="A short story.">
<meta property="article:published_time" content="2021-01-02T03:04:05+00:00">
</head><body>
<div class="fic_image"><img src="https://cdn.scribblehub.com/images/cover.jpg"></div>
<div class="fic_title">My Novel</div>
<span class="auth_name_fic">Jane Writer</span>
<input type="hidden" id="mypostid" value="123">
<div class="wi_fic_desc"><p>Long details.</p></div>
</body></html>`

func chapterPage(n int) string {
	return fmt.Sprintf(`<html><body>
<div class="c_index"><a href="%s">Index</a></div>
<div class="chapter-title">Chapter %d</div>
<div id="chp_raw"><p>Text of chapter %d.</p></div>
</body></html>`, testSeriesURL, n, n)
}

// tocFragment lists chapters 1..n in reverse document order.
func tocFragment(n int) string {
	var b strings.Builder
	b.WriteString("<ol>")
	for i := n; i >= 1; i-- {
		fmt.Fprintf(&b, `<li class="toc_w" order="%d"><a class="toc_a" href="%s">Chapter %d</a></li>`, i, testChapterURL(i), i)
	}
	b.WriteString("</ol>")
	return b.String()
}

// fakeSite serves canned pages and counts requests per URL.
type fakeSite struct {
	mu        sync.Mutex
	pages     map[string]string
	posts     map[string]string
	failures  map[string]error
	gets      map[string]int
	postForms []string
	delay     time.Duration
	inFlight  atomic.Int32
	peak      atomic.Int32
}

func newFakeSite(chapters int) *fakeSite {
	s := &fakeSite{
		pages:    map[string]string{testSeriesURL: seriesPage},
		posts:    map[string]string{testAjaxURL: tocFragment(chapters)},
		failures: map[string]error{},
		gets:     map[string]int{},
	}
	for i := 1; i <= chapters; i++ {
		s.pages[testChapterURL(i)] = chapterPage(i)
	}
	return s
}

func (s *fakeSite) Get(ctx context.Context, rawURL string) (novel.Page, error) {
	s.mu.Lock()
	s.gets[rawURL]++
	body, ok := s.pages[rawURL]
	err := s.failures[rawURL]
	s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return novel.Page{}, err
	}
	if err != nil {
		return novel.Page{}, err
	}
	if !ok {
		return novel.Page{}, &novel.StatusError{URL: rawURL, StatusCode: 404}
	}
	return novel.Page{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

func (s *fakeSite) PostForm(ctx context.Context, rawURL string, form novel.Form) (novel.Page, error) {
	s.mu.Lock()
	s.postForms = append(s.postForms, form.Encode())
	body, ok := s.posts[rawURL]
	s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return novel.Page{}, err
	}
	if !ok {
		return novel.Page{}, &novel.StatusError{URL: rawURL, StatusCode: 404}
	}
	return novel.Page{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

func (s *fakeSite) wait(ctx context.Context) error {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		old := s.peak.Load()
		if cur <= old || s.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	if s.delay == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSite) getCount(rawURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[rawURL]
}

func (s *fakeSite) postCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.postForms)
}

type fakeDownloader struct {
	calls atomic.Int32
}

func (d *fakeDownloader) Download(_ context.Context, rawURL string) (io.ReadCloser, error) {
	d.calls.Add(1)
	return io.NopCloser(bytes.NewReader([]byte("asset:" + rawURL))), nil
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) Publish(evt progress.Event) {
	l.mu.Lock()
	l.events = append(l.events, evt)
	l.mu.Unlock()
}

func (l *eventLog) ofKind(kind progress.Kind) []progress.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []progress.Event
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestBook(t *testing.T, input string, site *fakeSite, opts Options) (*Book, *eventLog, string) {
	t.Helper()
	root := t.TempDir()
	store, err := local.New(local.Config{BaseDir: root})
	require.NoError(t, err)
	events := &eventLog{}
	book, err := NewBook(input, Deps{
		Fetcher:    site,
		Downloader: &fakeDownloader{},
		Store:      store,
		Events:     events,
	}, opts)
	require.NoError(t, err)
	return book, events, root
}
