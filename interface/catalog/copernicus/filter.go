package copernicus

import (
	"github.com/lterlife/acolite-ingester/common"
)

// Names returns the product names of the result set
func (r *Response) Names() []string {
	names := make([]string, len(r.Tiles))
	for i, tile := range r.Tiles {
		names[i] = tile.Name
	}
	return names
}

// FilterByOrbit returns the subset of the catalogue acquired on the given
// relative orbit (e.g. "R051"), preserving the response metadata.
func FilterByOrbit(r *Response, orbit string) *Response {
	return filter(r, func(tile Tile) bool {
		return common.ExtractOrbit(tile.Name) == orbit
	})
}

// FilterByOrbitAndTile returns the subset of the catalogue acquired on the
// given relative orbit and MGRS tile (e.g. "R051", "T31UFV").
func FilterByOrbitAndTile(r *Response, orbit, tile string) *Response {
	return filter(r, func(t Tile) bool {
		return common.ExtractOrbit(t.Name) == orbit && common.ExtractTile(t.Name) == tile
	})
}

func filter(r *Response, keep func(Tile) bool) *Response {
	res := &Response{Context: r.Context, NextLink: r.NextLink}
	for _, tile := range r.Tiles {
		if keep(tile) {
			res.Tiles = append(res.Tiles, tile)
		}
	}
	return res
}
