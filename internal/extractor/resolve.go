package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/metrics"
)

// envelope names where a playurl response keeps its stream payload.
type envelope string

const (
	envData   envelope = "data"
	envResult envelope = "result"
	envBare   envelope = "bare"
)

type durl struct {
	Length int64  `json:"length"`
	Size   int64  `json:"size"`
	URL    string `json:"url"`
}

// stream is the canonical resolved-stream shape every envelope maps to.
type stream struct {
	Quality data.Quality `json:"quality"`
	Durl    []durl       `json:"durl"`
}

type playURLResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Result  json.RawMessage `json:"result"`
	stream
}

// normalize decodes a playurl body using the first accepted envelope that is
// present and reports which one matched.
func normalize(body []byte, accepted []envelope) (stream, envelope, error) {
	var resp playURLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return stream{}, "", fmt.Errorf("decode playurl: %w", err)
	}
	if resp.Code != 0 {
		return stream{}, "", fmt.Errorf("playurl code %d: %s", resp.Code, resp.Message)
	}
	for _, env := range accepted {
		var s stream
		switch env {
		case envData, envResult:
			raw := resp.Data
			if env == envResult {
				raw = resp.Result
			}
			if !present(raw) {
				continue
			}
			if err := json.Unmarshal(raw, &s); err != nil {
				return stream{}, env, fmt.Errorf("decode playurl %s: %w", env, err)
			}
		case envBare:
			if resp.Durl == nil {
				continue
			}
			s = resp.stream
		}
		if len(s.Durl) == 0 {
			return stream{}, env, fmt.Errorf("playurl %s has no durl", env)
		}
		return s, env, nil
	}
	return stream{}, "", fmt.Errorf("playurl matched none of %v", accepted)
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func (b *base) playURL(it data.Item, q data.Quality) string {
	v := url.Values{}
	v.Set("avid", strconv.FormatInt(it.AID, 10))
	v.Set("cid", strconv.FormatInt(it.CID, 10))
	v.Set("qn", strconv.Itoa(int(q)))
	v.Set("otype", "json")
	return b.env.apiBase() + b.endpoint + "?" + v.Encode()
}

// resolve fetches one item's stream and builds its FragmentModel. A granted
// quality other than q is logged and counted but does not fail the item.
func (b *base) resolve(ctx context.Context, it data.Item, q data.Quality, referer string) (data.FragmentModel, error) {
	var raw json.RawMessage
	if err := b.env.Fetcher.GetJSONWithCredentials(ctx, b.playURL(it, q), &raw); err != nil {
		return data.FragmentModel{}, fmt.Errorf("%w: %s: %v", data.ErrResolution, it.Title, err)
	}
	s, env, err := normalize(raw, b.envelopes)
	if err != nil {
		return data.FragmentModel{}, fmt.Errorf("%w: %s: %v", data.ErrResolution, it.Title, err)
	}
	b.log.Debug("playurl resolved", "item", it.Title, "envelope", string(env), "fragments", len(s.Durl))

	if s.Quality != q {
		d := data.QualityDowngrade{Title: it.Title, Requested: q, Granted: s.Quality}
		b.log.Warn("requested quality unavailable, fell back",
			"item", d.Title, "requested", int(d.Requested), "granted", int(d.Granted))
		metrics.QualityDowngrades.WithLabelValues(b.name).Inc()
	}

	frags := make([]data.StreamFragment, 0, len(s.Durl))
	for _, d := range s.Durl {
		frags = append(frags, data.StreamFragment{Length: d.Length, Size: d.Size, URL: d.URL})
	}
	m, err := data.NewFragmentModel(it, referer, frags)
	if err != nil {
		return data.FragmentModel{}, err
	}
	metrics.ItemsResolved.WithLabelValues(b.name).Inc()
	return m, nil
}
