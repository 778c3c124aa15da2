package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinoosan/bilibatch/internal/aria2"
	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/extractor"
	"github.com/tinoosan/bilibatch/internal/notify"
	"github.com/tinoosan/bilibatch/internal/page"
)

// stubExtractor resolves item i into a model with it.CID fragments.
type stubExtractor struct {
	filter     data.ItemFilter
	items      []data.Item
	listErr    error
	resolveErr error
}

func (s *stubExtractor) Name() string                { return "stub" }
func (s *stubExtractor) SetFilter(f data.ItemFilter) { s.filter = f }
func (s *stubExtractor) GetItemList(context.Context) ([]data.Item, error) {
	return s.items, s.listErr
}

func (s *stubExtractor) Models(ctx context.Context, q data.Quality) (data.FragmentModels, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	out := data.FragmentModels{}
	for _, it := range s.items {
		if !s.filter(it) {
			continue
		}
		m := model(it.Title, int(it.CID))
		out = append(out, m)
	}
	return out, nil
}

func (s *stubExtractor) CollectData(ctx context.Context, q data.Quality) (string, error) {
	ms, err := s.Models(ctx, q)
	if err != nil {
		return "", err
	}
	return ms.String(), nil
}

type countingHandle struct{ n int }

func (h *countingHandle) Dismiss() { h.n++ }

type recordingSink struct {
	mu    sync.Mutex
	sends [][]aria2.Job
	batch []bool
	err   error
}

func (r *recordingSink) Send(ctx context.Context, jobs []aria2.Job, batch bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, jobs)
	r.batch = append(r.batch, batch)
	return r.err
}

type recordingNotifier struct{ errors []string }

func (n *recordingNotifier) Info(string, string) notify.Handle { return notify.NopHandle() }
func (n *recordingNotifier) Error(msg, _ string)               { n.errors = append(n.errors, msg) }

func stubDescriptor(ext *stubExtractor, match bool, probes *int) extractor.Descriptor {
	return extractor.Descriptor{
		Name: "stub",
		Test: func(context.Context, *page.Page) bool {
			*probes++
			return match
		},
		New: func(extractor.Env) extractor.Extractor { return ext },
	}
}

func testEnv(t *testing.T, rawURL string) (extractor.Env, *recordingNotifier) {
	t.Helper()
	p, err := page.FromHTML(rawURL, `<div id="multi_page"></div>`, page.WithPolling(1, time.Millisecond))
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	n := &recordingNotifier{}
	return extractor.Env{Page: p, Notifier: n, Log: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}, n
}

func twoItems() []data.Item {
	return []data.Item{
		{Index: 1, Title: "1 - Arrival", CID: 1},
		{Index: 2, Title: "2 - Departure", CID: 3},
	}
}

func TestFacadeSelectsOnce(t *testing.T) {
	probes := 0
	ext := &stubExtractor{items: twoItems()}
	env, _ := testEnv(t, "https://www.bilibili.com/bangumi/play/ss1")
	f := New(env, []extractor.Descriptor{stubDescriptor(ext, true, &probes)}, nil, RPCOptions{})

	for i := 0; i < 3; i++ {
		items, err := f.GetItemList(context.Background())
		if err != nil || len(items) != 2 {
			t.Fatalf("GetItemList = %v, %v", items, err)
		}
	}
	if probes != 1 {
		t.Fatalf("probes = %d", probes)
	}
}

func TestFacadeNoExtractorIsTerminal(t *testing.T) {
	probes := 0
	env, n := testEnv(t, "https://www.bilibili.com/read/cv1")
	f := New(env, []extractor.Descriptor{stubDescriptor(&stubExtractor{}, false, &probes)}, nil, RPCOptions{})

	if _, err := f.GetItemList(context.Background()); !errors.Is(err, data.ErrNoExtractorFound) {
		t.Fatalf("expected ErrNoExtractorFound, got %v", err)
	}
	h := &countingHandle{}
	if _, err := f.CollectData(context.Background(), 80, h); !errors.Is(err, data.ErrNoExtractorFound) {
		t.Fatalf("expected ErrNoExtractorFound, got %v", err)
	}
	if h.n != 1 {
		t.Fatalf("progress dismissed %d times", h.n)
	}
	if probes != 1 {
		t.Fatalf("no-match result should be memoised, probes = %d", probes)
	}
	if len(n.errors) != 1 {
		t.Fatalf("notifications = %v", n.errors)
	}
}

func TestFacadeFilterPropagates(t *testing.T) {
	probes := 0
	ext := &stubExtractor{items: twoItems()}
	env, _ := testEnv(t, "https://www.bilibili.com/bangumi/play/ss1")
	f := New(env, []extractor.Descriptor{stubDescriptor(ext, true, &probes)}, nil, RPCOptions{})

	f.SetFilter(func(it data.Item) bool { return it.Index == 2 })
	out, err := f.CollectJSON(context.Background(), 80, nil)
	if err != nil {
		t.Fatalf("CollectJSON: %v", err)
	}
	var ms []data.FragmentModel
	_ = json.Unmarshal([]byte(out), &ms)
	if len(ms) != 1 || ms[0].Title != "2 - Departure" {
		t.Fatalf("filtered models = %s", out)
	}

	// a filter set after selection reaches the live extractor too
	f.SetFilter(func(data.Item) bool { return false })
	out, err = f.CollectJSON(context.Background(), 80, nil)
	if err != nil || out != "[]" {
		t.Fatalf("CollectJSON = %q, %v", out, err)
	}

	f.SetFilter(nil)
	out, _ = f.CollectJSON(context.Background(), 80, nil)
	_ = json.Unmarshal([]byte(out), &ms)
	if len(ms) != 2 {
		t.Fatalf("nil filter should accept all, got %s", out)
	}
}

func TestFacadeListingFailureYieldsEmpty(t *testing.T) {
	probes := 0
	ext := &stubExtractor{listErr: fmt.Errorf("%w: message=nope", data.ErrListingAPI)}
	env, _ := testEnv(t, "https://www.bilibili.com/bangumi/play/ss1")
	f := New(env, []extractor.Descriptor{stubDescriptor(ext, true, &probes)}, nil, RPCOptions{})

	items, err := f.GetItemList(context.Background())
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("GetItemList = %#v, %v", items, err)
	}
	out, err := f.CollectJSON(context.Background(), 80, nil)
	if err != nil || out != "[]" {
		t.Fatalf("CollectJSON = %q, %v", out, err)
	}
	out, err = f.CollectData(context.Background(), 80, nil)
	if err != nil || out != playlistHeader {
		t.Fatalf("CollectData = %q, %v", out, err)
	}
}

func TestFacadeResolutionErrorDismissesProgress(t *testing.T) {
	probes := 0
	ext := &stubExtractor{items: twoItems(), resolveErr: fmt.Errorf("%w: 1 - Arrival: boom", data.ErrResolution)}
	env, n := testEnv(t, "https://www.bilibili.com/bangumi/play/ss1")
	f := New(env, []extractor.Descriptor{stubDescriptor(ext, true, &probes)}, &recordingSink{}, RPCOptions{})

	for _, dispatch := range []bool{false, true} {
		h := &countingHandle{}
		if _, err := f.CollectAria2(context.Background(), 80, dispatch, h); !errors.Is(err, data.ErrResolution) {
			t.Fatalf("expected ErrResolution, got %v", err)
		}
		if h.n != 1 {
			t.Fatalf("progress dismissed %d times", h.n)
		}
	}
	if len(n.errors) != 2 {
		t.Fatalf("notifications = %v", n.errors)
	}
}

func TestFacadeCollectAria2Dispatch(t *testing.T) {
	probes := 0
	ext := &stubExtractor{items: twoItems()}
	env, _ := testEnv(t, "https://www.bilibili.com/bangumi/play/ss1")
	sink := &recordingSink{}
	f := New(env, []extractor.Descriptor{stubDescriptor(ext, true, &probes)}, sink, RPCOptions{SecretKey: "k", Dir: "/dl"})

	h := &countingHandle{}
	out, err := f.CollectAria2(context.Background(), 80, true, h)
	if err != nil {
		t.Fatalf("CollectAria2: %v", err)
	}
	if out != "" {
		t.Fatalf("dispatch should return nothing, got %q", out)
	}
	if h.n != 1 {
		t.Fatalf("progress dismissed %d times", h.n)
	}
	if len(sink.sends) != 2 || len(sink.sends[0]) != 1 || len(sink.sends[1]) != 3 {
		t.Fatalf("sends = %#v", sink.sends)
	}
	for _, b := range sink.batch {
		if !b {
			t.Fatalf("expected batch sends")
		}
	}
	first := sink.sends[0][0]
	if first.Params[0] != "token:k" {
		t.Fatalf("token missing: %#v", first.Params)
	}
	if opts := first.Params[2].(JobOptions); opts.Out != "1 - Arrival.flv" || opts.Dir != "/dl" {
		t.Fatalf("options = %#v", opts)
	}
	if opts := sink.sends[1][2].Params[2].(JobOptions); opts.Out != "2 - Departure - 3.flv" {
		t.Fatalf("options = %#v", opts)
	}
}

func TestFacadeCollectAria2WithoutDispatch(t *testing.T) {
	probes := 0
	ext := &stubExtractor{items: twoItems()}
	env, _ := testEnv(t, "https://www.bilibili.com/bangumi/play/ss1")
	sink := &recordingSink{}
	f := New(env, []extractor.Descriptor{stubDescriptor(ext, true, &probes)}, sink, RPCOptions{})

	out, err := f.CollectAria2(context.Background(), 80, false, nil)
	if err != nil {
		t.Fatalf("CollectAria2: %v", err)
	}
	text, _ := f.CollectData(context.Background(), 80, nil)
	if out != text {
		t.Fatalf("non-dispatch output differs from CollectData")
	}
	if len(sink.sends) != 0 {
		t.Fatalf("unexpected sends")
	}
	if strings.Count(out, "split=12") != 4 {
		t.Fatalf("blocks = %d", strings.Count(out, "split=12"))
	}
}

func TestFacadeDispatchFailure(t *testing.T) {
	probes := 0
	ext := &stubExtractor{items: twoItems()}
	env, _ := testEnv(t, "https://www.bilibili.com/bangumi/play/ss1")
	sink := &recordingSink{err: errors.New("aria2 http 502")}
	f := New(env, []extractor.Descriptor{stubDescriptor(ext, true, &probes)}, sink, RPCOptions{})

	if _, err := f.CollectAria2(context.Background(), 80, true, nil); err == nil || !strings.Contains(err.Error(), "1 - Arrival") {
		t.Fatalf("expected dispatch error naming the item, got %v", err)
	}
	if len(sink.sends) != 1 {
		t.Fatalf("sends after failure = %d", len(sink.sends))
	}

	f = New(env, []extractor.Descriptor{stubDescriptor(ext, true, &probes)}, nil, RPCOptions{})
	if _, err := f.CollectAria2(context.Background(), 80, true, nil); !errors.Is(err, ErrNoSink) {
		t.Fatalf("expected ErrNoSink, got %v", err)
	}
}

// fakeFetcher serves a two-part video whose second part is downgraded.
type fakeFetcher struct{}

func (fakeFetcher) GetText(context.Context, string) (string, error) { return "", errors.New("unused") }

func (fakeFetcher) GetJSON(ctx context.Context, raw string, v any) error {
	return fakeFetcher{}.GetJSONWithCredentials(ctx, raw, v)
}

func (fakeFetcher) GetJSONWithCredentials(_ context.Context, raw string, v any) error {
	u, _ := url.Parse(raw)
	var body string
	switch u.Path {
	case "/x/web-interface/view":
		body = `{"code":0,"data":{"pages":[{"cid":11,"page":1,"part":"a"},{"cid":12,"page":2,"part":"b"}]}}`
	case "/x/player/playurl":
		q := 80
		if u.Query().Get("cid") == "12" {
			q = 64
		}
		body = fmt.Sprintf(`{"code":0,"data":{"quality":%d,"durl":[{"url":"http://cdn/%s.flv","size":5,"length":1}]}}`, q, u.Query().Get("cid"))
	default:
		return errors.New("not routed")
	}
	return json.Unmarshal([]byte(body), v)
}

func TestFacadeQualityDowngradeKeepsItems(t *testing.T) {
	var logs bytes.Buffer
	p, _ := page.FromHTML("https://www.bilibili.com/video/av42?p=1", `<div id="multi_page"></div>`, page.WithPolling(1, 0))
	env := extractor.Env{
		Page:    p,
		Fetcher: fakeFetcher{},
		Log:     slog.New(slog.NewTextHandler(&logs, nil)),
		APIBase: "http://api.test",
	}
	f := New(env, extractor.Candidates(), nil, RPCOptions{})

	name, err := f.Extractor(context.Background())
	if err != nil || name != "episode" {
		t.Fatalf("Extractor = %q, %v", name, err)
	}
	out, err := f.CollectJSON(context.Background(), 80, nil)
	if err != nil {
		t.Fatalf("CollectJSON: %v", err)
	}
	var ms []data.FragmentModel
	if err := json.Unmarshal([]byte(out), &ms); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("models = %d", len(ms))
	}
	if ms[1].Referer != "https://www.bilibili.com/video/av42" {
		t.Fatalf("referer = %q", ms[1].Referer)
	}
	if n := strings.Count(logs.String(), "level=WARN"); n != 1 {
		t.Fatalf("warnings = %d: %s", n, logs.String())
	}
}

// countingFetcher fails every call and records how many were made.
type countingFetcher struct{ calls int }

func (c *countingFetcher) GetText(context.Context, string) (string, error) {
	c.calls++
	return "", errors.New("unexpected fetch")
}

func (c *countingFetcher) GetJSON(context.Context, string, any) error {
	c.calls++
	return errors.New("unexpected fetch")
}

func (c *countingFetcher) GetJSONWithCredentials(context.Context, string, any) error {
	c.calls++
	return errors.New("unexpected fetch")
}

func TestFacadeOverflowingIDYieldsEmpty(t *testing.T) {
	tests := []struct {
		name, url, html, extractor string
	}{
		{
			name:      "video aid",
			url:       "https://www.bilibili.com/video/av99999999999999999999",
			html:      `<div id="multi_page"></div>`,
			extractor: "episode",
		},
		{
			name:      "season id",
			url:       "https://www.bilibili.com/bangumi/play/ep1",
			html:      `<meta property="og:url" content="https://www.bilibili.com/bangumi/play/ss99999999999999999999/">`,
			extractor: "series",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := page.FromHTML(tc.url, tc.html, page.WithPolling(1, 0))
			if err != nil {
				t.Fatalf("page: %v", err)
			}
			fetcher := &countingFetcher{}
			n := &recordingNotifier{}
			env := extractor.Env{
				Page:     p,
				Fetcher:  fetcher,
				Notifier: n,
				Log:      slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
				APIBase:  "http://api.test",
			}
			f := New(env, extractor.Candidates(), nil, RPCOptions{})

			name, err := f.Extractor(context.Background())
			if err != nil || name != tc.extractor {
				t.Fatalf("Extractor = %q, %v", name, err)
			}
			items, err := f.GetItemList(context.Background())
			if err != nil || items == nil || len(items) != 0 {
				t.Fatalf("GetItemList = %#v, %v", items, err)
			}
			if fetcher.calls != 0 {
				t.Fatalf("fetches = %d", fetcher.calls)
			}
			if len(n.errors) != 1 || !strings.Contains(n.errors[0], "cannot parse") {
				t.Fatalf("notifier errors = %q", n.errors)
			}
		})
	}
}
