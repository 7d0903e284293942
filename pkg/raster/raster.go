// Package raster holds georeferenced multi-band rasters and their image and
// world-file encodings.
package raster

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnsupportedFormat = errors.New("raster: unsupported file format")
	ErrBandCount         = errors.New("raster: unsupported band count")
)

// DType is the sample type used when encoding a raster.
type DType int

const (
	Uint8 DType = iota + 1
	Uint16
)

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// GeoTransform maps pixel/line coordinates to georeferenced coordinates, using
// the GDAL coefficient order:
//
//	x = g[0] + px*g[1] + py*g[2]
//	y = g[3] + px*g[4] + py*g[5]
//
// (px, py) = (0, 0) is the outer corner of the top-left pixel.
type GeoTransform [6]float64

// IdentityTransform is the transform of a raster without georeferencing.
var IdentityTransform = GeoTransform{0, 1, 0, 0, 0, 1}

// Apply converts pixel coordinates to georeferenced coordinates.
func (g GeoTransform) Apply(px, py float64) (x, y float64) {
	return g[0] + px*g[1] + py*g[2], g[3] + px*g[4] + py*g[5]
}

// IsNorthUp reports whether the transform has no rotation or shear terms.
func (g GeoTransform) IsNorthUp() bool {
	return g[2] == 0 && g[4] == 0
}

// PixelSize returns the pixel width and height (height is negative for the
// usual north-up image).
func (g GeoTransform) PixelSize() (float64, float64) {
	return g[1], g[5]
}

// Scaled returns the transform of a grid whose cells cover sx by sy pixels of g.
func (g GeoTransform) Scaled(sx, sy float64) GeoTransform {
	return GeoTransform{g[0], g[1] * sx, g[2] * sy, g[3], g[4] * sx, g[5] * sy}
}

// Offset returns the transform of a window starting at pixel (px, py).
func (g GeoTransform) Offset(px, py float64) GeoTransform {
	x, y := g.Apply(px, py)
	return GeoTransform{x, g[1], g[2], y, g[4], g[5]}
}

// Raster is a band-major grid of unsigned samples.
type Raster struct {
	Width        int
	Height       int
	Data         [][]uint16
	GeoTransform GeoTransform
}

// New allocates a zeroed raster.
func New(width, height, bands int) *Raster {
	data := make([][]uint16, bands)
	for b := range data {
		data[b] = make([]uint16, width*height)
	}
	return &Raster{
		Width:        width,
		Height:       height,
		Data:         data,
		GeoTransform: IdentityTransform,
	}
}

// Bands returns the band count.
func (r *Raster) Bands() int { return len(r.Data) }

// At returns the sample at column x, row y of band b.
func (r *Raster) At(b, x, y int) uint16 { return r.Data[b][y*r.Width+x] }

// Set writes the sample at column x, row y of band b.
func (r *Raster) Set(b, x, y int, v uint16) { r.Data[b][y*r.Width+x] = v }

// Bounds returns (minX, minY, maxX, maxY) in georeferenced units.
func (r *Raster) Bounds() (float64, float64, float64, float64) {
	return WindowBounds(r.GeoTransform, 0, 0, r.Width, r.Height)
}

// WindowBounds returns the georeferenced extent of a pixel window.
func WindowBounds(g GeoTransform, x, y, w, h int) (float64, float64, float64, float64) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]int{{x, y}, {x + w, y}, {x, y + h}, {x + w, y + h}} {
		gx, gy := g.Apply(float64(c[0]), float64(c[1]))
		minX, maxX = math.Min(minX, gx), math.Max(maxX, gx)
		minY, maxY = math.Min(minY, gy), math.Max(maxY, gy)
	}
	return minX, minY, maxX, maxY
}

// SameGrid reports whether r and o share dimensions.
func (r *Raster) SameGrid(o *Raster) bool {
	return r.Width == o.Width && r.Height == o.Height
}

// Paste copies src into r with its top-left corner at (x0, y0). Samples falling
// outside r are dropped. Band counts must match.
func (r *Raster) Paste(src *Raster, x0, y0 int) error {
	if src.Bands() != r.Bands() {
		return fmt.Errorf("%w: paste %d bands into %d", ErrBandCount, src.Bands(), r.Bands())
	}
	for b := range src.Data {
		for y := 0; y < src.Height; y++ {
			ty := y0 + y
			if ty < 0 || ty >= r.Height {
				continue
			}
			for x := 0; x < src.Width; x++ {
				tx := x0 + x
				if tx < 0 || tx >= r.Width {
					continue
				}
				r.Data[b][ty*r.Width+tx] = src.Data[b][y*src.Width+x]
			}
		}
	}
	return nil
}
