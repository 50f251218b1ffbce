package novel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormEncodePreservesOrder(t *testing.T) {
	t.Parallel()

	form := Form{
		{Key: "action", Value: "wi_getreleases_pagination"},
		{Key: "pagenum", Value: "-1"},
		{Key: "mypostid", Value: "36420"},
	}
	assert.Equal(t, "action=wi_getreleases_pagination&pagenum=-1&mypostid=36420", form.Encode())
}

func TestFormEncodeEscapes(t *testing.T) {
	t.Parallel()

	form := Form{{Key: "q", Value: "a b&c"}}
	assert.Equal(t, "q=a+b%26c", form.Encode())
	assert.Empty(t, Form{}.Encode())
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckStatus("https://example.com", 200))
	require.NoError(t, CheckStatus("https://example.com", 204))

	err := CheckStatus("https://example.com/missing", 404)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 404, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "https://example.com/missing")
}

func TestErrorsUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	resErr := fmt.Errorf("wrapped: %w", &ResolutionError{URL: "u", Reason: "canonical link missing", Err: cause})
	var target *ResolutionError
	require.ErrorAs(t, resErr, &target)
	assert.Equal(t, "canonical link missing", target.Reason)
	assert.ErrorIs(t, resErr, cause)

	tocErr := &TocError{URL: "u", Err: cause}
	assert.ErrorIs(t, tocErr, cause)
	assert.Equal(t, "load table of contents from u: boom", tocErr.Error())
}

func TestChapterHelpers(t *testing.T) {
	t.Parallel()

	ch := Chapter{Index: 7, State: StateLoaded}
	assert.True(t, ch.Loaded())
	assert.Equal(t, "chapter-7.html", ch.FileName())
	assert.False(t, Chapter{State: StateFailed}.Loaded())
}
