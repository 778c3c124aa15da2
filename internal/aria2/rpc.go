package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinoosan/bilibatch/internal/metrics"
)

const methodAddURI = "aria2.addUri"

// Job is one aria2.addUri call: Params is [token?, [uris], options].
type Job struct {
	ID     string `json:"id"`
	Params []any  `json:"params"`
}

// --- JSON-RPC wire types ---

type rpcReq struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      string `json:"id"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResp struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("aria2 rpc error %d: %s", e.Code, e.Message) }

// post sends body to the RPC endpoint and returns the raw response body.
func (c *Client) post(ctx context.Context, method string, body []byte) ([]byte, error) {
	timer := prometheus.NewTimer(metrics.Aria2RPCLatency.WithLabelValues(method))
	defer timer.ObserveDuration()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("aria2 http %d: %s", resp.StatusCode, string(b))
	}
	return b, nil
}

func (c *Client) call(ctx context.Context, method, id string, params []any) (json.RawMessage, error) {
	body, _ := json.Marshal(rpcReq{Jsonrpc: "2.0", Method: method, ID: id, Params: params})
	b, err := c.post(ctx, method, body)
	if err != nil {
		return nil, err
	}
	var rr rpcResp
	if err := json.Unmarshal(b, &rr); err != nil {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("aria2 rpc decode: %w (%s)", err, string(b))
	}
	if rr.Error != nil {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, rr.Error
	}
	return rr.Result, nil
}

// helper: token parameter if secret set (aria2 expects "token:<secret>" as first param)
func (c *Client) tokenParam() []any {
	if c.secret != "" {
		return []any{"token:" + c.secret}
	}
	return nil
}

// Ping performs a lightweight RPC to check aria2 liveness.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "aria2.getVersion", "bilibatch", c.tokenParam())
	return err
}

// TellStatus returns the aria2 status ("active", "complete", "error", ...)
// of gid.
func (c *Client) TellStatus(ctx context.Context, gid string) (string, error) {
	params := append(c.tokenParam(), gid, []string{"status"})
	res, err := c.call(ctx, "aria2.tellStatus", "bilibatch", params)
	if err != nil {
		return "", err
	}
	var st struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(res, &st); err != nil {
		return "", fmt.Errorf("parse tellStatus result: %w", err)
	}
	return st.Status, nil
}

// AddURIs submits jobs through aria2.addUri, either as one JSON-RPC batch
// request or as one call per job. The returned GIDs line up with jobs; a job
// that failed has an empty GID and contributes to the joined error.
func (c *Client) AddURIs(ctx context.Context, jobs []Job, batch bool) ([]string, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	if batch {
		return c.addBatch(ctx, jobs)
	}
	gids := make([]string, len(jobs))
	var errs []error
	for i, j := range jobs {
		res, err := c.call(ctx, methodAddURI, j.ID, j.Params)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", j.ID, err))
			continue
		}
		if err := json.Unmarshal(res, &gids[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: parse addUri result: %w", j.ID, err))
		}
	}
	return gids, errors.Join(errs...)
}

func (c *Client) addBatch(ctx context.Context, jobs []Job) ([]string, error) {
	reqs := make([]rpcReq, 0, len(jobs))
	for _, j := range jobs {
		reqs = append(reqs, rpcReq{Jsonrpc: "2.0", Method: methodAddURI, ID: j.ID, Params: j.Params})
	}
	body, _ := json.Marshal(reqs)
	b, err := c.post(ctx, methodAddURI, body)
	if err != nil {
		return nil, err
	}
	var rrs []rpcResp
	if err := json.Unmarshal(b, &rrs); err != nil {
		metrics.Aria2RPCErrors.WithLabelValues(methodAddURI).Inc()
		return nil, fmt.Errorf("aria2 rpc decode: %w (%s)", err, string(b))
	}

	// Responses carry the job id; ids may repeat across jobs, so consume
	// them in order.
	byID := make(map[string][]rpcResp, len(rrs))
	for _, rr := range rrs {
		byID[rr.ID] = append(byID[rr.ID], rr)
	}
	gids := make([]string, len(jobs))
	var errs []error
	for i, j := range jobs {
		q := byID[j.ID]
		if len(q) == 0 {
			errs = append(errs, fmt.Errorf("%s: no response in batch", j.ID))
			continue
		}
		rr := q[0]
		byID[j.ID] = q[1:]
		if rr.Error != nil {
			metrics.Aria2RPCErrors.WithLabelValues(methodAddURI).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", j.ID, rr.Error))
			continue
		}
		if err := json.Unmarshal(rr.Result, &gids[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: parse addUri result: %w", j.ID, err))
		}
	}
	return gids, errors.Join(errs...)
}
