// Package extractor discovers the downloadable items of a page and resolves
// them into fragment models. One strategy exists per supported page type.
package extractor

import (
	"context"
	"log/slog"
	"slices"

	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/fetch"
	"github.com/tinoosan/bilibatch/internal/notify"
	"github.com/tinoosan/bilibatch/internal/page"
)

// DefaultAPIBase is the upstream API origin.
const DefaultAPIBase = "https://api.bilibili.com"

const notifyTitle = "batch download"

// Extractor lists and resolves the items of one page.
type Extractor interface {
	Name() string
	// SetFilter replaces the item filter; nil restores AcceptAll.
	SetFilter(data.ItemFilter)
	// GetItemList returns the page's items, querying upstream at most once
	// per extractor as long as the listing is non-empty.
	GetItemList(ctx context.Context) ([]data.Item, error)
	// Models resolves every filtered item at the requested quality.
	Models(ctx context.Context, q data.Quality) (data.FragmentModels, error)
	// CollectData is Models serialised as a JSON array.
	CollectData(ctx context.Context, q data.Quality) (string, error)
}

// Env is what a strategy needs from its surroundings.
type Env struct {
	Page     *page.Page
	Fetcher  fetch.Fetcher
	Notifier notify.Notifier
	Log      *slog.Logger
	// APIBase overrides DefaultAPIBase.
	APIBase string
}

func (e Env) apiBase() string {
	if e.APIBase != "" {
		return e.APIBase
	}
	return DefaultAPIBase
}

// Descriptor is a strategy's class-level face: a side-effect free probe and a
// constructor.
type Descriptor struct {
	Name string
	Test func(ctx context.Context, p *page.Page) bool
	New  func(env Env) Extractor
}

// Candidates returns the supported strategies in priority order.
func Candidates() []Descriptor {
	return []Descriptor{Series, Episode}
}

type lister func(ctx context.Context) ([]data.Item, error)

// base carries the listing cache and the resolution loop shared by every
// strategy. Strategies differ only in their lister and playurl endpoint.
type base struct {
	name      string
	env       Env
	log       *slog.Logger
	filter    data.ItemFilter
	items     []data.Item
	list      lister
	endpoint  string
	envelopes []envelope
}

func newBase(name string, env Env, endpoint string, envelopes []envelope) *base {
	if env.Notifier == nil {
		env.Notifier = notify.Nop{}
	}
	if env.Log == nil {
		env.Log = slog.Default()
	}
	return &base{
		name:      name,
		env:       env,
		log:       env.Log.With("extractor", name),
		filter:    data.AcceptAll,
		endpoint:  endpoint,
		envelopes: envelopes,
	}
}

func (b *base) Name() string { return b.name }

func (b *base) SetFilter(f data.ItemFilter) {
	if f == nil {
		f = data.AcceptAll
	}
	b.filter = f
}

func (b *base) GetItemList(ctx context.Context) ([]data.Item, error) {
	if len(b.items) > 0 {
		return slices.Clone(b.items), nil
	}
	items, err := b.list(ctx)
	if err != nil {
		b.env.Notifier.Error(err.Error(), notifyTitle)
		return nil, err
	}
	b.items = items
	b.log.Debug("item list loaded", "items", len(items))
	return slices.Clone(items), nil
}

func (b *base) Models(ctx context.Context, q data.Quality) (data.FragmentModels, error) {
	items, err := b.GetItemList(ctx)
	if err != nil {
		return nil, err
	}
	referer := b.env.Page.Referer()
	out := make(data.FragmentModels, 0, len(items))
	for _, it := range items {
		if !b.filter(it) {
			continue
		}
		m, err := b.resolve(ctx, it, q, referer)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (b *base) CollectData(ctx context.Context, q data.Quality) (string, error) {
	ms, err := b.Models(ctx, q)
	if err != nil {
		return "", err
	}
	return ms.String(), nil
}
