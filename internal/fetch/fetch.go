// Package fetch retrieves article pages and extracts their main text content.
// Fetching is best-effort: any failure degrades to empty content so the
// summary request can still proceed from the title alone.
package fetch

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/briefly/tracker/pkg/utils"
)

const (
	// DefaultTimeout bounds the whole fetch round trip.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxChars caps the extracted text length.
	DefaultMaxChars = 5000

	userAgent = "Mozilla/5.0 (compatible; BrieflyTracker/1.0)"
)

// Fetcher downloads article HTML and extracts readable text.
type Fetcher struct {
	client   *http.Client
	maxChars int
	logger   *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout overrides the fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client.Timeout = d }
}

// WithMaxChars overrides the extracted-text cap.
func WithMaxChars(n int) Option {
	return func(f *Fetcher) { f.maxChars = n }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher with a bounded timeout.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: DefaultTimeout},
		maxChars: DefaultMaxChars,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url and returns the extracted main content. Timeouts,
// transport failures and non-2xx responses all return "" rather than an
// error; the caller falls back to a title-only summary.
func (f *Fetcher) Fetch(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.logger.Warn("article request build failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "ja,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("article fetch failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("article fetch returned non-2xx", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		f.logger.Warn("article parse failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	return extract(doc, f.maxChars)
}

// ExtractMainContent parses html and returns the readable main text, capped
// at maxChars runes.
func ExtractMainContent(html string, maxChars int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return extract(doc, maxChars)
}

// extract strips boilerplate elements, prefers the <article> element, then
// <main>, then the whole body, and returns collapsed text.
func extract(doc *goquery.Document, maxChars int) string {
	doc.Find("script, style, nav, header, footer, aside").Remove()

	sel := doc.Find("article").First()
	if sel.Length() == 0 {
		sel = doc.Find("main").First()
	}
	if sel.Length() == 0 {
		sel = doc.Find("body").First()
	}
	if sel.Length() == 0 {
		return ""
	}
	return utils.Clip(utils.CollapseSpaces(sel.Text()), maxChars)
}
