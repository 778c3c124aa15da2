package aria2

import (
	"net/http"
	"net/url"
	"time"
)

const (
	defaultRPCURL  = "http://127.0.0.1:6800/jsonrpc"
	defaultTimeout = 3 * time.Second
)

// Client talks to one aria2 JSON-RPC endpoint.
type Client struct {
	baseURL *url.URL
	secret  string
	http    *http.Client
}

// NewClient builds a client for the aria2 endpoint at rawURL. An empty or
// unparsable URL falls back to the local default endpoint and a non-positive
// timeout to three seconds.
func NewClient(rawURL, secret string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL, err := url.Parse(rawURL)
	if rawURL == "" || err != nil {
		if baseURL, err = url.Parse(defaultRPCURL); err != nil {
			return nil, err
		}
	}
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// HTTP exposes the underlying client so callers can swap its transport.
func (c *Client) HTTP() *http.Client { return c.http }
