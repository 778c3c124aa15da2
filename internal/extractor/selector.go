package extractor

import (
	"context"

	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/page"
)

// Select probes candidates one at a time, in order, and returns the first
// whose Test passes. Later candidates are not probed once one matches.
func Select(ctx context.Context, p *page.Page, candidates []Descriptor) (Descriptor, error) {
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Descriptor{}, err
		}
		if c.Test(ctx, p) {
			return c, nil
		}
	}
	return Descriptor{}, data.ErrNoExtractorFound
}
