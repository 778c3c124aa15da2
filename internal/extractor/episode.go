package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/page"
)

var (
	avPathPattern = regexp.MustCompile(`/video/av(\d+)`)
	aidPattern    = regexp.MustCompile(`"aid"\s*:\s*(\d+)`)
)

// Episode handles multi-part single videos (www.bilibili.com/video/av...).
var Episode = Descriptor{
	Name: "episode",
	Test: testEpisode,
	New:  newEpisode,
}

func testEpisode(ctx context.Context, p *page.Page) bool {
	if !strings.Contains(p.URL(), "/www.bilibili.com/video/av") {
		return false
	}
	_, err := p.Select(ctx, "#multi_page")
	return err == nil
}

type episodeExtractor struct {
	*base
}

func newEpisode(env Env) Extractor {
	e := &episodeExtractor{base: newBase("episode", env, "/x/player/playurl", []envelope{envData, envBare})}
	e.list = e.listPages
	return e
}

type viewResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Pages []struct {
			CID  int64  `json:"cid"`
			Page int    `json:"page"`
			Part string `json:"part"`
		} `json:"pages"`
	} `json:"data"`
}

func (e *episodeExtractor) aid(ctx context.Context) (int64, error) {
	if m := avPathPattern.FindStringSubmatch(e.env.Page.Path()); m != nil {
		return parseAID(m[1])
	}
	html, err := e.env.Page.HTML(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", data.ErrMetadataNotFound, err)
	}
	m := aidPattern.FindStringSubmatch(html)
	if m == nil {
		return 0, fmt.Errorf("%w: cannot find video aid", data.ErrMetadataNotFound)
	}
	return parseAID(m[1])
}

func parseAID(s string) (int64, error) {
	aid, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot parse video aid: %v", data.ErrMetadataNotFound, err)
	}
	return aid, nil
}

func (e *episodeExtractor) listPages(ctx context.Context) ([]data.Item, error) {
	aid, err := e.aid(ctx)
	if err != nil {
		return nil, err
	}
	api := fmt.Sprintf("%s/x/web-interface/view?aid=%d", e.env.apiBase(), aid)
	var resp viewResponse
	if err := e.env.Fetcher.GetJSON(ctx, api, &resp); err != nil {
		return nil, fmt.Errorf("%w: get video pages: %v", data.ErrListingAPI, err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%w: get video pages: message=%s", data.ErrListingAPI, resp.Message)
	}
	if resp.Data == nil || resp.Data.Pages == nil {
		return nil, fmt.Errorf("%w: get video pages: no page information", data.ErrListingAPI)
	}
	items := make([]data.Item, 0, len(resp.Data.Pages))
	for i, pg := range resp.Data.Pages {
		items = append(items, data.Item{
			Index: i + 1,
			Title: fmt.Sprintf("P%d %s", pg.Page, pg.Part),
			AID:   aid,
			CID:   pg.CID,
		})
	}
	return items, nil
}
