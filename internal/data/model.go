package data

import (
	"encoding/json"
	"fmt"
	"io"
)

// Quality is the upstream stream quality code (qn). The upstream service may
// grant a lower code than the one requested.
type Quality int

// Item is a listed but not yet resolved unit: one video part or one episode.
type Item struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	AID   int64  `json:"aid"`
	CID   int64  `json:"cid"`
}

// ItemFilter selects which items of a listing get resolved.
type ItemFilter func(Item) bool

// AcceptAll is the default ItemFilter.
func AcceptAll(Item) bool { return true }

// StreamFragment is one directly downloadable segment of a resolved item.
// Length is passed through exactly as the upstream reports it.
type StreamFragment struct {
	Length int64  `json:"length"`
	Size   int64  `json:"size"`
	URL    string `json:"url"`
}

// FragmentModel is the resolved aggregate for one Item.
type FragmentModel struct {
	Fragments []StreamFragment `json:"fragments"`
	Title     string           `json:"title"`
	TotalSize int64            `json:"totalSize"`
	CID       int64            `json:"cid"`
	Referer   string           `json:"referer"`
}

type FragmentModels []FragmentModel

// NewFragmentModel builds a FragmentModel and derives TotalSize from the
// fragments. An item always resolves to at least one fragment.
func NewFragmentModel(it Item, referer string, fragments []StreamFragment) (FragmentModel, error) {
	if len(fragments) == 0 {
		return FragmentModel{}, fmt.Errorf("%w: %s has no fragments", ErrResolution, it.Title)
	}
	var total int64
	for _, f := range fragments {
		total += f.Size
	}
	return FragmentModel{
		Fragments: fragments,
		Title:     it.Title,
		TotalSize: total,
		CID:       it.CID,
		Referer:   referer,
	}, nil
}

// TotalSize sums the sizes of every model.
func (ms FragmentModels) TotalSize() int64 {
	var n int64
	for _, m := range ms {
		n += m.TotalSize
	}
	return n
}

// ToJSON writes the models as a JSON array; an empty set encodes as [].
func (ms FragmentModels) ToJSON(w io.Writer) error {
	if ms == nil {
		ms = FragmentModels{}
	}
	return json.NewEncoder(w).Encode(ms)
}

// String returns the compact JSON array form.
func (ms FragmentModels) String() string {
	if ms == nil {
		ms = FragmentModels{}
	}
	b, err := json.Marshal(ms)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// QualityDowngrade records that the upstream granted a different quality than
// requested for an item. It is a warning, never an error.
type QualityDowngrade struct {
	Title     string
	Requested Quality
	Granted   Quality
}
