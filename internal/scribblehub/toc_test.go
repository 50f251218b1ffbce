package scribblehub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
)

func TestParseTOCSortsAndDropsMalformedRows(t *testing.T) {
	t.Parallel()

	fragment := `<ol>
<li class="toc_w" order="3"><a class="toc_a" href="https://x.test/c3">3</a></li>
<li class="toc_w" order="1"><a class="toc_a" href="https://x.test/c1">1</a></li>
<li class="toc_w"><a class="toc_a" href="https://x.test/no-order">?</a></li>
<li class="toc_w" order="2"><a class="toc_a" href="https://x.test/c2">2</a></li>
<li class="toc_w" order="4"><span>no link</span></li>
<li class="toc_w" order="five"><a class="toc_a" href="https://x.test/c5">5</a></li>
<li class="toc_w" order="6"><a class="toc_a" href="">empty</a></li>
<li class="toc_w" order="1.5"><a class="toc_a" href="https://x.test/c1-5">1.5</a></li>
<li class="toc_w" order="12a"><a class="toc_a" href="https://x.test/c12">12a</a></li>
</ol>`
	refs, err := ParseTOC(testAjaxURL, []byte(fragment))
	require.NoError(t, err)
	assert.Equal(t, []novel.ChapterRef{
		{Order: 1, URL: "https://x.test/c1"},
		{Order: 2, URL: "https://x.test/c2"},
		{Order: 3, URL: "https://x.test/c3"},
	}, refs)
}

func TestParseTOCRelativeLinksAndStableTies(t *testing.T) {
	t.Parallel()

	fragment := `<li class="toc_w" order="1"><a class="toc_a" href="/read/1/chapter/20/">b</a></li>
<li class="toc_w" order="1"><a class="toc_a" href="/read/1/chapter/10/">a</a></li>`
	refs, err := ParseTOC(testAjaxURL, []byte(fragment))
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "https://www.scribblehub.com/read/1/chapter/20/", refs[0].URL)
	assert.Equal(t, "https://www.scribblehub.com/read/1/chapter/10/", refs[1].URL)
}

func TestTOCLoaderPostsExactForm(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{}
	wantForm := novel.Form{
		{Key: "action", Value: "wi_getreleases_pagination"},
		{Key: "pagenum", Value: "-1"},
		{Key: "mypostid", Value: "123"},
	}
	fetcher.On("PostForm", mock.Anything, testAjaxURL, wantForm).
		Return(novel.Page{Body: []byte(tocFragment(3))}, nil).Once()

	refs, err := NewTOCLoader(fetcher, nil).Load(context.Background(), testSeriesURL, 123)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, testChapterURL(1), refs[0].URL)
	assert.Equal(t, "action=wi_getreleases_pagination&pagenum=-1&mypostid=123", wantForm.Encode())
	fetcher.AssertExpectations(t)
}

func TestTOCLoaderWrapsFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fetcher := &mockFetcher{}
	fetcher.On("PostForm", mock.Anything, testAjaxURL, mock.Anything).Return(novel.Page{}, boom)

	_, err := NewTOCLoader(fetcher, nil).Load(context.Background(), testSeriesURL, 1)
	var tocErr *novel.TocError
	require.ErrorAs(t, err, &tocErr)
	assert.ErrorIs(t, err, boom)
}
