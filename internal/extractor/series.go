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

var seasonPattern = regexp.MustCompile(`play/ss(\d+)`)

// Series handles bangumi seasons (www.bilibili.com/bangumi/...).
var Series = Descriptor{
	Name: "series",
	Test: testSeries,
	New:  newSeries,
}

func testSeries(_ context.Context, p *page.Page) bool {
	return strings.Contains(p.URL(), "/www.bilibili.com/bangumi")
}

type seriesExtractor struct {
	*base
}

func newSeries(env Env) Extractor {
	s := &seriesExtractor{base: newBase("series", env, "/pgc/player/web/playurl", []envelope{envResult, envData, envBare})}
	s.list = s.listEpisodes
	return s
}

type sectionResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  *struct {
		MainSection *struct {
			Episodes []struct {
				AID       int64  `json:"aid"`
				CID       int64  `json:"cid"`
				Title     string `json:"title"`
				LongTitle string `json:"long_title"`
			} `json:"episodes"`
		} `json:"main_section"`
	} `json:"result"`
}

func (s *seriesExtractor) seasonID(ctx context.Context) (int64, error) {
	sel, err := s.env.Page.Query(ctx, "meta[property='og:url']")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", data.ErrMetadataNotFound, err)
	}
	content, ok := sel.Attr("content")
	if !ok {
		return 0, fmt.Errorf("%w: cannot find season id", data.ErrMetadataNotFound)
	}
	m := seasonPattern.FindStringSubmatch(content)
	if m == nil {
		return 0, fmt.Errorf("%w: cannot parse season id", data.ErrMetadataNotFound)
	}
	sid, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot parse season id: %v", data.ErrMetadataNotFound, err)
	}
	return sid, nil
}

func (s *seriesExtractor) listEpisodes(ctx context.Context) ([]data.Item, error) {
	sid, err := s.seasonID(ctx)
	if err != nil {
		return nil, err
	}
	api := fmt.Sprintf("%s/pgc/web/season/section?season_id=%d", s.env.apiBase(), sid)
	var resp sectionResponse
	if err := s.env.Fetcher.GetJSON(ctx, api, &resp); err != nil {
		return nil, fmt.Errorf("%w: get episode list: %v", data.ErrListingAPI, err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%w: get episode list: message=%s", data.ErrListingAPI, resp.Message)
	}
	if resp.Result == nil || resp.Result.MainSection == nil || resp.Result.MainSection.Episodes == nil {
		return nil, fmt.Errorf("%w: get episode list: no main section", data.ErrListingAPI)
	}
	eps := resp.Result.MainSection.Episodes
	items := make([]data.Item, 0, len(eps))
	for i, ep := range eps {
		title := fmt.Sprintf("%d - %s", i+1, ep.Title)
		if ep.LongTitle != "" {
			title = fmt.Sprintf("%s - %s", ep.Title, ep.LongTitle)
		}
		items = append(items, data.Item{Index: i + 1, Title: title, AID: ep.AID, CID: ep.CID})
	}
	return items, nil
}
