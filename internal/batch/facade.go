// Package batch is the entry point for batch extraction: it selects the
// strategy for a page, applies the item filter and renders the result as a
// playlist or as aria2 jobs.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tinoosan/bilibatch/internal/aria2"
	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/extractor"
	"github.com/tinoosan/bilibatch/internal/notify"
)

const notifyTitle = "batch download"

// ErrNoSink is returned when dispatch is requested without an RPC sink.
var ErrNoSink = errors.New("no rpc sink configured")

// RPCSink accepts projected aria2 jobs.
type RPCSink interface {
	Send(ctx context.Context, jobs []aria2.Job, batch bool) error
}

// Facade hides strategy selection from callers. It selects at most once per
// instance and serialises its operations.
type Facade struct {
	env        extractor.Env
	candidates []extractor.Descriptor
	sink       RPCSink
	opts       RPCOptions
	log        *slog.Logger

	mu       sync.Mutex
	filter   data.ItemFilter
	selected bool
	selErr   error
	ext      extractor.Extractor
}

// New creates a facade over candidates for the page in env. sink may be nil
// when dispatch is never requested.
func New(env extractor.Env, candidates []extractor.Descriptor, sink RPCSink, opts RPCOptions) *Facade {
	if env.Notifier == nil {
		env.Notifier = notify.Nop{}
	}
	if env.Log == nil {
		env.Log = slog.Default()
	}
	return &Facade{
		env:        env,
		candidates: candidates,
		sink:       sink,
		opts:       opts,
		log:        env.Log,
		filter:     data.AcceptAll,
	}
}

// SetFilter stores f and hands it to the selected extractor, now or later.
func (f *Facade) SetFilter(p data.ItemFilter) {
	if p == nil {
		p = data.AcceptAll
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = p
	if f.ext != nil {
		f.ext.SetFilter(p)
	}
}

// Extractor returns the name of the selected strategy, selecting if needed.
func (f *Facade) Extractor(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ext, err := f.extractorLocked(ctx)
	if err != nil {
		return "", err
	}
	return ext.Name(), nil
}

func (f *Facade) extractorLocked(ctx context.Context) (extractor.Extractor, error) {
	if f.selected {
		return f.ext, f.selErr
	}
	d, err := extractor.Select(ctx, f.env.Page, f.candidates)
	if err != nil {
		if !errors.Is(err, data.ErrNoExtractorFound) {
			// cancelled while probing; selection may be retried
			return nil, err
		}
		f.selected, f.selErr = true, err
		f.log.Error("no extractor matches page", "url", f.env.Page.URL())
		f.env.Notifier.Error("no suitable extractor for this page", notifyTitle)
		return nil, err
	}
	f.ext = d.New(f.env)
	f.ext.SetFilter(f.filter)
	f.selected = true
	f.log.Debug("extractor selected", "extractor", d.Name, "url", f.env.Page.URL())
	return f.ext, nil
}

// isListingFailure reports errors the extractor has already shown to the user.
func isListingFailure(err error) bool {
	return errors.Is(err, data.ErrMetadataNotFound) || errors.Is(err, data.ErrListingAPI)
}

// GetItemList returns the unfiltered item list. Listing failures yield an
// empty list; only a missing extractor or cancellation is an error.
func (f *Facade) GetItemList(ctx context.Context) ([]data.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ext, err := f.extractorLocked(ctx)
	if err != nil {
		return nil, err
	}
	items, err := ext.GetItemList(ctx)
	if err != nil {
		if isListingFailure(err) {
			return []data.Item{}, nil
		}
		return nil, err
	}
	return items, nil
}

// Models resolves the filtered items at quality q.
func (f *Facade) Models(ctx context.Context, q data.Quality) (data.FragmentModels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modelsLocked(ctx, q, f.log)
}

func (f *Facade) modelsLocked(ctx context.Context, q data.Quality, lg *slog.Logger) (data.FragmentModels, error) {
	ext, err := f.extractorLocked(ctx)
	if err != nil {
		return nil, err
	}
	ms, err := ext.Models(ctx, q)
	if err != nil {
		if isListingFailure(err) {
			return data.FragmentModels{}, nil
		}
		lg.Error("resolve batch", "err", err, "extractor", ext.Name())
		f.env.Notifier.Error(err.Error(), notifyTitle)
		return nil, err
	}
	lg.Info("batch resolved", "extractor", ext.Name(), "items", len(ms), "quality", int(q))
	return ms, nil
}

func dismiss(h notify.Handle) {
	if h != nil {
		h.Dismiss()
	}
}

func (f *Facade) opLogger(op string) *slog.Logger {
	return f.log.With("operation_id", uuid.NewString(), "op", op)
}

// CollectData resolves the batch and returns it as playlist text. progress
// is dismissed before returning on every path.
func (f *Facade) CollectData(ctx context.Context, q data.Quality, progress notify.Handle) (string, error) {
	defer dismiss(progress)
	f.mu.Lock()
	defer f.mu.Unlock()
	ms, err := f.modelsLocked(ctx, q, f.opLogger("collect"))
	if err != nil {
		return "", err
	}
	return Playlist(ms), nil
}

// CollectJSON resolves the batch and returns the fragment models as a JSON
// array.
func (f *Facade) CollectJSON(ctx context.Context, q data.Quality, progress notify.Handle) (string, error) {
	defer dismiss(progress)
	f.mu.Lock()
	defer f.mu.Unlock()
	ms, err := f.modelsLocked(ctx, q, f.opLogger("collect_json"))
	if err != nil {
		return "", err
	}
	return ms.String(), nil
}

// CollectAria2 resolves the batch. With dispatch it sends every item's jobs
// to the RPC sink, one batch call per item, and returns ""; otherwise it
// returns the playlist text.
func (f *Facade) CollectAria2(ctx context.Context, q data.Quality, dispatch bool, progress notify.Handle) (string, error) {
	defer dismiss(progress)
	f.mu.Lock()
	defer f.mu.Unlock()
	lg := f.opLogger("collect_aria2")
	ms, err := f.modelsLocked(ctx, q, lg)
	if err != nil {
		return "", err
	}
	if !dispatch {
		return Playlist(ms), nil
	}
	if f.sink == nil {
		return "", ErrNoSink
	}
	for _, m := range ms {
		jobs := Project(m, f.opts)
		if err := f.sink.Send(ctx, jobs, true); err != nil {
			f.env.Notifier.Error(fmt.Sprintf("send %s to aria2: %v", m.Title, err), notifyTitle)
			return "", fmt.Errorf("dispatch %s: %w", m.Title, err)
		}
		lg.Debug("item dispatched", "item", m.Title, "jobs", len(jobs))
	}
	return "", nil
}
