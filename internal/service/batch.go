package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tinoosan/bilibatch/internal/aria2"
	"github.com/tinoosan/bilibatch/internal/batch"
	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/extractor"
	"github.com/tinoosan/bilibatch/internal/fetch"
	"github.com/tinoosan/bilibatch/internal/notify"
	"github.com/tinoosan/bilibatch/internal/page"
)

const (
	FormatPlaylist = "playlist"
	FormatJSON     = "json"
)

// ErrInvalidFormat is returned for an unknown export format.
var ErrInvalidFormat = errors.New("invalid export format")

// Request names a page and what to take from it.
type Request struct {
	URL     string `json:"url"`
	Quality int    `json:"quality,omitempty"`
	Select  string `json:"select,omitempty"`
	Match   string `json:"match,omitempty"`
	Format  string `json:"format,omitempty"`
}

type Listing struct {
	Extractor string      `json:"extractor"`
	Items     []data.Item `json:"items"`
}

type Export struct {
	Extractor   string
	ContentType string
	Body        string
}

type DispatchResult struct {
	Extractor string `json:"extractor"`
	Items     int    `json:"items"`
	Jobs      int    `json:"jobs"`
}

// Batch exposes batch extraction per page URL.
type Batch interface {
	Items(ctx context.Context, rawURL string) (Listing, error)
	Export(ctx context.Context, req Request) (Export, error)
	Dispatch(ctx context.Context, req Request) (DispatchResult, error)
}

type Options struct {
	Quality       data.Quality
	APIBase       string
	ProbeAttempts int
	ProbeInterval time.Duration
	RPC           batch.RPCOptions
	Candidates    []extractor.Descriptor
}

type batchService struct {
	fetcher  fetch.Fetcher
	sink     batch.RPCSink
	notifier notify.Notifier
	log      *slog.Logger
	opts     Options
}

// NewBatch wires the batch service. sink may be nil, in which case Dispatch
// fails with batch.ErrNoSink.
func NewBatch(f fetch.Fetcher, sink batch.RPCSink, n notify.Notifier, log *slog.Logger, opts Options) Batch {
	if n == nil {
		n = notify.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Quality <= 0 {
		opts.Quality = 80
	}
	if opts.Candidates == nil {
		opts.Candidates = extractor.Candidates()
	}
	return &batchService{fetcher: f, sink: sink, notifier: n, log: log, opts: opts}
}

func (s *batchService) facade(rawURL, sel, match string, sink batch.RPCSink) (*batch.Facade, error) {
	filter, err := data.ParseSelection(sel)
	if err != nil {
		return nil, err
	}
	if match != "" {
		filter = data.All(filter, data.MatchTitle(match))
	}
	p, err := page.Load(s.fetcher, rawURL, page.WithPolling(s.opts.ProbeAttempts, s.opts.ProbeInterval))
	if err != nil {
		return nil, err
	}
	f := batch.New(extractor.Env{
		Page:     p,
		Fetcher:  s.fetcher,
		Notifier: s.notifier,
		Log:      s.log.With("url", p.URL()),
		APIBase:  s.opts.APIBase,
	}, s.opts.Candidates, sink, s.opts.RPC)
	f.SetFilter(filter)
	return f, nil
}

func (s *batchService) quality(q int) data.Quality {
	if q > 0 {
		return data.Quality(q)
	}
	return s.opts.Quality
}

func (s *batchService) Items(ctx context.Context, rawURL string) (Listing, error) {
	f, err := s.facade(rawURL, "", "", s.sink)
	if err != nil {
		return Listing{}, err
	}
	name, err := f.Extractor(ctx)
	if err != nil {
		return Listing{}, err
	}
	items, err := f.GetItemList(ctx)
	if err != nil {
		return Listing{}, err
	}
	return Listing{Extractor: name, Items: items}, nil
}

func (s *batchService) Export(ctx context.Context, req Request) (Export, error) {
	format := strings.ToLower(req.Format)
	if format == "" {
		format = FormatPlaylist
	}
	if format != FormatPlaylist && format != FormatJSON {
		return Export{}, fmt.Errorf("%w: %q", ErrInvalidFormat, req.Format)
	}
	f, err := s.facade(req.URL, req.Select, req.Match, s.sink)
	if err != nil {
		return Export{}, err
	}
	name, err := f.Extractor(ctx)
	if err != nil {
		return Export{}, err
	}
	progress := s.notifier.Info("resolving "+req.URL, "batch download")
	out := Export{Extractor: name}
	switch format {
	case FormatJSON:
		out.ContentType = "application/json"
		out.Body, err = f.CollectJSON(ctx, s.quality(req.Quality), progress)
	default:
		out.ContentType = "text/plain; charset=utf-8"
		out.Body, err = f.CollectData(ctx, s.quality(req.Quality), progress)
	}
	if err != nil {
		return Export{}, err
	}
	return out, nil
}

func (s *batchService) Dispatch(ctx context.Context, req Request) (DispatchResult, error) {
	if s.sink == nil {
		return DispatchResult{}, batch.ErrNoSink
	}
	cs := &countingSink{next: s.sink}
	f, err := s.facade(req.URL, req.Select, req.Match, cs)
	if err != nil {
		return DispatchResult{}, err
	}
	name, err := f.Extractor(ctx)
	if err != nil {
		return DispatchResult{}, err
	}
	progress := s.notifier.Info("sending "+req.URL+" to aria2", "batch download")
	if _, err := f.CollectAria2(ctx, s.quality(req.Quality), true, progress); err != nil {
		return DispatchResult{}, err
	}
	items, jobs := cs.counts()
	return DispatchResult{Extractor: name, Items: items, Jobs: jobs}, nil
}

// countingSink forwards to next and counts what went through.
type countingSink struct {
	next  batch.RPCSink
	mu    sync.Mutex
	items int
	jobs  int
}

func (c *countingSink) Send(ctx context.Context, jobs []aria2.Job, b bool) error {
	if err := c.next.Send(ctx, jobs, b); err != nil {
		return err
	}
	c.mu.Lock()
	c.items++
	c.jobs += len(jobs)
	c.mu.Unlock()
	return nil
}

func (c *countingSink) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items, c.jobs
}
