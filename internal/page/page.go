// Package page models the page a batch is extracted from: its URL and its
// HTML document.
package page

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tinoosan/bilibatch/internal/data"
)

// ErrNoMatch is returned by Select when the selector never matched.
var ErrNoMatch = errors.New("selector did not match")

const (
	defaultAttempts = 10
	defaultInterval = 300 * time.Millisecond
)

// Loader returns the current HTML of the page.
type Loader func(ctx context.Context) (string, error)

// TextGetter is the subset of fetch.Fetcher a Page needs.
type TextGetter interface {
	GetText(ctx context.Context, rawURL string) (string, error)
}

type Option func(*Page)

// WithPolling sets how often Select re-reads the document before giving up.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(p *Page) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if interval >= 0 {
			p.interval = interval
		}
	}
}

type Page struct {
	raw  string
	u    *url.URL
	load Loader

	attempts int
	interval time.Duration

	mu   sync.Mutex
	html string
	doc  *goquery.Document
}

// New creates a page for rawURL whose document is read through load.
func New(rawURL string, load Loader, opts ...Option) (*Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", data.ErrInvalidURL, rawURL)
	}
	p := &Page{raw: u.String(), u: u, load: load, attempts: defaultAttempts, interval: defaultInterval}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Load creates a page whose document is fetched from rawURL on demand.
func Load(g TextGetter, rawURL string, opts ...Option) (*Page, error) {
	return New(rawURL, func(ctx context.Context) (string, error) {
		return g.GetText(ctx, rawURL)
	}, opts...)
}

// FromHTML creates a page with a fixed document.
func FromHTML(rawURL, html string, opts ...Option) (*Page, error) {
	return New(rawURL, func(context.Context) (string, error) { return html, nil }, opts...)
}

func (p *Page) URL() string { return p.raw }

// Path returns the URL path, e.g. "/video/av170001".
func (p *Page) Path() string { return p.u.Path }

// Referer is the page URL without its query string.
func (p *Page) Referer() string {
	u := *p.u
	u.RawQuery = ""
	u.ForceQuery = false
	return u.String()
}

// Document returns the parsed document, loading it on first use.
func (p *Page) Document(ctx context.Context) (*goquery.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.documentLocked(ctx)
}

func (p *Page) documentLocked(ctx context.Context) (*goquery.Document, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	if p.load == nil {
		return nil, fmt.Errorf("page %s has no loader", p.raw)
	}
	html, err := p.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	p.html, p.doc = html, doc
	return doc, nil
}

// HTML returns the raw document text.
func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.documentLocked(ctx); err != nil {
		return "", err
	}
	return p.html, nil
}

// Query returns the first match of selector in the current document without
// polling. The selection is empty when nothing matched.
func (p *Page) Query(ctx context.Context, selector string) (*goquery.Selection, error) {
	doc, err := p.Document(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Find(selector).First(), nil
}

// Select polls the page for selector and returns ErrNoMatch once the attempt
// budget is spent. Retries read a fresh copy of the page; the cached document
// is left as first loaded.
func (p *Page) Select(ctx context.Context, selector string) (*goquery.Selection, error) {
	sel, err := p.Query(ctx, selector)
	if err != nil {
		return nil, err
	}
	for i := 1; sel.Length() == 0 && i < p.attempts; i++ {
		t := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		if sel, err = p.reload(ctx, selector); err != nil {
			return nil, err
		}
	}
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, selector)
	}
	return sel, nil
}

// reload re-reads the page into a throwaway document.
func (p *Page) reload(ctx context.Context, selector string) (*goquery.Selection, error) {
	html, err := p.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc.Find(selector).First(), nil
}
