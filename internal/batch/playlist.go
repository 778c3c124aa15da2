package batch

import (
	"fmt"
	"strings"

	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/fetch"
)

// SplitFactor is the per-file connection count handed to aria2.
const SplitFactor = 12

const playlistHeader = "# Generated by bilibatch video export\n# https://github.com/tinoosan/bilibatch"

// Playlist renders models as an aria2 input file: a header comment, then one
// block per fragment.
func Playlist(ms data.FragmentModels) string {
	var b strings.Builder
	b.WriteString(playlistHeader)
	for _, m := range ms {
		for _, f := range m.Fragments {
			b.WriteByte('\n')
			fmt.Fprintf(&b, "%s\n  referer=%s\n  user-agent=%s\n  out=%s.flv\n  split=%d",
				f.URL, m.Referer, fetch.UserAgent, m.Title, SplitFactor)
		}
	}
	return strings.TrimSpace(b.String())
}
