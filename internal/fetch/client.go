package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinoosan/bilibatch/internal/metrics"
	"golang.org/x/time/rate"
)

// UserAgent is sent on every upstream request and written into exported jobs.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:67.0) Gecko/20100101 Firefox/67.0"

// Fetcher performs the upstream GETs the extractors need. All methods fail on
// transport errors and non-2xx statuses.
type Fetcher interface {
	GetText(ctx context.Context, rawURL string) (string, error)
	GetJSON(ctx context.Context, rawURL string, v any) error
	GetJSONWithCredentials(ctx context.Context, rawURL string, v any) error
}

// Options configures a Client.
type Options struct {
	// Cookie is sent only by GetJSONWithCredentials, e.g. "SESSDATA=...".
	Cookie   string
	Interval time.Duration
	Timeout  time.Duration
}

type Client struct {
	http    *http.Client
	cookie  string
	limiter *rate.Limiter
}

var _ Fetcher = (*Client)(nil)

// NewClient builds an HTTP fetcher. A zero Interval disables pacing.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.Interval > 0 {
		lim = rate.NewLimiter(rate.Every(opts.Interval), 1)
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		cookie:  opts.Cookie,
		limiter: lim,
	}
}

func (c *Client) HTTP() *http.Client { return c.http }

func (c *Client) GetText(ctx context.Context, rawURL string) (string, error) {
	b, err := c.get(ctx, rawURL, false)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	return c.getJSON(ctx, rawURL, v, false)
}

func (c *Client) GetJSONWithCredentials(ctx context.Context, rawURL string, v any) error {
	return c.getJSON(ctx, rawURL, v, true)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v any, creds bool) error {
	b, err := c.get(ctx, rawURL, creds)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL string, creds bool) ([]byte, error) {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	timer := prometheus.NewTimer(metrics.UpstreamLatency.WithLabelValues(host))
	defer timer.ObserveDuration()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	if creds && c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues(host).Inc()
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.UpstreamErrors.WithLabelValues(host).Inc()
		return nil, fmt.Errorf("get %s: http %d: %s", rawURL, resp.StatusCode, string(b))
	}
	return b, nil
}
