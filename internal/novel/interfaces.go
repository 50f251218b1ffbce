package novel

import (
	"context"
	"io"
	"net/url"
	"strings"
)

// PageFetcher retrieves HTML documents. One implementation exists per fetch
// strategy (plain HTTP, headless browser).
type PageFetcher interface {
	Get(ctx context.Context, rawURL string) (Page, error)
	PostForm(ctx context.Context, rawURL string, form Form) (Page, error)
}

// Downloader streams a remote resource. Callers must close the returned body.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Page is the result of a PageFetcher call.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// FormField is a single key/value pair of a form-encoded body.
type FormField struct {
	Key   string
	Value string
}

// Form is an ordered list of fields. Unlike url.Values, encoding preserves the
// declared order so request bodies are byte-for-byte reproducible.
type Form []FormField

// Encode renders the form as application/x-www-form-urlencoded.
func (f Form) Encode() string {
	var b strings.Builder
	for i, field := range f {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(field.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(field.Value))
	}
	return b.String()
}

// FormContentType is the content type of an encoded Form.
const FormContentType = "application/x-www-form-urlencoded"
