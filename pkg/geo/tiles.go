package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// maxLat is the latitude limit of Web Mercator.
const maxLat = 85.05112878

// CoveringTiles returns the tiles at zoom that cover bound, grown by padding
// tiles on every side, in row-major order. maxTiles <= 0 disables the limit.
func CoveringTiles(bound orb.Bound, zoom, padding, maxTiles int) ([]maptile.Tile, error) {
	z := maptile.Zoom(zoom)
	minT := maptile.At(orb.Point{bound.Min.Lon(), clampLat(bound.Max.Lat())}, z)
	maxT := maptile.At(orb.Point{bound.Max.Lon(), clampLat(bound.Min.Lat())}, z)

	limit := int64(1)<<uint(zoom) - 1
	x0 := max(int64(minT.X)-int64(padding), 0)
	y0 := max(int64(minT.Y)-int64(padding), 0)
	x1 := min(int64(maxT.X)+int64(padding), limit)
	y1 := min(int64(maxT.Y)+int64(padding), limit)

	n := (x1 - x0 + 1) * (y1 - y0 + 1)
	if maxTiles > 0 && n > int64(maxTiles) {
		return nil, fmt.Errorf("%w: %d tiles at zoom %d, limit %d", ErrTooManyTiles, n, zoom, maxTiles)
	}
	tiles := make([]maptile.Tile, 0, n)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			tiles = append(tiles, maptile.New(uint32(x), uint32(y), z))
		}
	}
	return tiles, nil
}

// TileSpan returns the tile range of a row-major tile list.
func TileSpan(tiles []maptile.Tile) (minX, minY, maxX, maxY uint32) {
	if len(tiles) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = tiles[0].X, tiles[0].Y
	maxX, maxY = minX, minY
	for _, t := range tiles[1:] {
		minX, maxX = min(minX, t.X), max(maxX, t.X)
		minY, maxY = min(minY, t.Y), max(maxY, t.Y)
	}
	return minX, minY, maxX, maxY
}

func clampLat(lat float64) float64 {
	return max(-maxLat, min(maxLat, lat))
}
