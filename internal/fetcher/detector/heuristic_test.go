package detector

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristicNeedsBrowser(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	cases := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{name: "empty body", status: http.StatusOK, body: "", want: true},
		{name: "spa marker", status: http.StatusOK, body: `<div id="__next"></div>`, want: true},
		{
			name:   "cloudflare challenge on 403",
			status: http.StatusForbidden,
			body:   `<html><head><title>Just a moment...</title></head></html>`,
			want:   true,
		},
		{name: "plain 404", status: http.StatusNotFound, body: "not found", want: false},
		{
			name:   "regular chapter",
			status: http.StatusOK,
			body:   `<div class="chapter-title">One</div><div id="chp_raw"><p>Text</p></div>`,
			want:   false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, h.NeedsBrowser(tc.status, []byte(tc.body)))
		})
	}
}

func TestHeuristicScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	require.True(t, h.NeedsBrowser(http.StatusOK, []byte(`<html><script>var a=1;</script><p>t</p></html>`)))
	require.False(t, NewHeuristic(10).NeedsBrowser(http.StatusOK, []byte(`<html><script>var a=1;</script><p>t</p></html>`)))
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2048, NewHeuristic(0).BodyLengthThreshold)
}
