package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/tinoosan/bilibatch/internal/notify"
	"github.com/tinoosan/bilibatch/internal/page"
)

// fakeFetcher answers upstream requests from a handler and records every URL.
type fakeFetcher struct {
	mu     sync.Mutex
	calls  []string
	handle func(u *url.URL) (string, error)
}

func (f *fakeFetcher) record(raw string) (*url.URL, error) {
	f.mu.Lock()
	f.calls = append(f.calls, raw)
	f.mu.Unlock()
	return url.Parse(raw)
}

func (f *fakeFetcher) GetText(ctx context.Context, raw string) (string, error) {
	u, err := f.record(raw)
	if err != nil {
		return "", err
	}
	return f.handle(u)
}

func (f *fakeFetcher) GetJSON(ctx context.Context, raw string, v any) error {
	u, err := f.record(raw)
	if err != nil {
		return err
	}
	body, err := f.handle(u)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), v)
}

func (f *fakeFetcher) GetJSONWithCredentials(ctx context.Context, raw string, v any) error {
	return f.GetJSON(ctx, raw, v)
}

func (f *fakeFetcher) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if u, err := url.Parse(c); err == nil && u.Path == path {
			n++
		}
	}
	return n
}

var errNotRouted = errors.New("not routed")

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (n *recordingNotifier) Info(string, string) notify.Handle { return notify.NopHandle() }
func (n *recordingNotifier) Error(msg, _ string) {
	n.mu.Lock()
	n.errors = append(n.errors, msg)
	n.mu.Unlock()
}

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func mustPage(t *testing.T, rawURL, html string) *page.Page {
	t.Helper()
	p, err := page.FromHTML(rawURL, html, page.WithPolling(1, time.Millisecond))
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	return p
}
