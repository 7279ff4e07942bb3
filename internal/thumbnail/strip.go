package thumbnail

import (
	"github.com/reelplay/reelplay-agent/internal/catalog"
)

// Tile is one entry of the thumbnail strip.
type Tile struct {
	Index        int          `json:"index"`
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Kind         catalog.Kind `json:"kind"`
	Duration     float64      `json:"duration"`
	DurationText string       `json:"duration_text"`
	WidthPercent float64      `json:"width_percent"`
	Active       bool         `json:"active"`
	State        State        `json:"state"`
	URL          string       `json:"url,omitempty"`
}

// Layout sizes each tile in proportion to its play duration. When the total
// is zero every tile gets an equal share.
func Layout(assets []catalog.Asset, active int) []Tile {
	total := catalog.TotalDuration(assets)
	tiles := make([]Tile, len(assets))
	for i, a := range assets {
		d := a.PlayDuration()
		width := 100 / float64(len(assets))
		if total > 0 {
			width = d / total * 100
		}
		tiles[i] = Tile{
			Index:        i,
			ID:           a.ID,
			Name:         a.Name,
			Kind:         a.Kind,
			Duration:     d,
			DurationText: catalog.FormatTime(d),
			WidthPercent: width,
			Active:       i == active,
		}
	}
	return tiles
}

// Strip is Layout with each tile's thumbnail state filled in. urlFor may be
// nil.
func (g *Generator) Strip(assets []catalog.Asset, active int, urlFor func(catalog.Asset) string) []Tile {
	tiles := Layout(assets, active)
	for i, a := range assets {
		tiles[i].State = g.Lookup(a).State
		if urlFor != nil {
			tiles[i].URL = urlFor(a)
		}
	}
	return tiles
}
