package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"nhooyr.io/websocket"
)

// Notification methods pushed by aria2 over its WebSocket endpoint.
const (
	OnDownloadStart    = "aria2.onDownloadStart"
	OnDownloadPause    = "aria2.onDownloadPause"
	OnDownloadStop     = "aria2.onDownloadStop"
	OnDownloadComplete = "aria2.onDownloadComplete"
	OnDownloadError    = "aria2.onDownloadError"
)

// Notification represents an async event pushed by aria2.
type Notification struct {
	Method string              `json:"method"`
	Params []NotificationEvent `json:"params"`
}

// NotificationEvent contains details for an aria2 notification.
type NotificationEvent struct {
	GID string `json:"gid"`
}

// WebSocketURL maps the RPC endpoint onto its ws/wss equivalent.
func (c *Client) WebSocketURL() (string, error) {
	u := *c.baseURL
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	return (&url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host, Path: u.Path}).String(), nil
}

// Notifications connects to the aria2 WebSocket endpoint and streams
// async notifications. The returned channel is closed when the connection
// terminates or the context is cancelled.
func (c *Client) Notifications(ctx context.Context) (<-chan Notification, error) {
	wsURL, err := c.WebSocketURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	ch := make(chan Notification, 8)
	go func() {
		defer close(ch)
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var n Notification
			if err := json.Unmarshal(bytes.TrimSpace(msg), &n); err != nil || n.Method == "" {
				// responses to our own calls share the socket; skip them
				continue
			}
			select {
			case ch <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
