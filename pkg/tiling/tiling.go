// Package tiling splits stacks of co-registered rasters into fixed-size tiles.
//
// Tiles are laid out on a grid anchored at the top-left pixel. Edge tiles that
// overhang the raster are zero-padded, so every pixel belongs to exactly one
// tile and predictions can be mapped back onto the full raster.
package tiling

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/nucleus/lightpipe/pkg/raster"
)

var (
	ErrShapeMismatch = errors.New("tiling: rasters differ in size")
	ErrTileTooLarge  = errors.New("tiling: tile larger than raster")
	ErrInvalidTile   = errors.New("tiling: tile size must be positive")
	ErrNoRasters     = errors.New("tiling: no rasters")
	ErrPermutation   = errors.New("tiling: invalid permutation")
)

// Coord locates a tile by grid cell and by top-left pixel offset.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
	Y   int `json:"y"`
	X   int `json:"x"`
}

// BandMap records which stacked bands come from feature rasters and which from
// label rasters.
type BandMap struct {
	Features []int `json:"features"`
	Labels   []int `json:"labels"`
}

// GridShape returns the number of tile rows and columns covering the raster.
func GridShape(height, width, tileY, tileX int) (rows, cols int) {
	return ceilDiv(height, tileY), ceilDiv(width, tileX)
}

// Grid enumerates tile coordinates. Column-major order (all rows of column 0,
// then column 1, ...) is the default; rowMajor walks each row left to right.
func Grid(height, width, tileY, tileX int, rowMajor bool) ([]Coord, error) {
	if tileY <= 0 || tileX <= 0 {
		return nil, ErrInvalidTile
	}
	rows, cols := GridShape(height, width, tileY, tileX)
	coords := make([]Coord, 0, rows*cols)
	if rowMajor {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				coords = append(coords, Coord{Row: r, Col: c, Y: r * tileY, X: c * tileX})
			}
		}
		return coords, nil
	}
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			coords = append(coords, Coord{Row: r, Col: c, Y: r * tileY, X: c * tileX})
		}
	}
	return coords, nil
}

// CheckTileFits returns ErrTileTooLarge when the tile exceeds the raster.
func CheckTileFits(height, width, tileY, tileX int) error {
	if tileY > height || tileX > width {
		return fmt.Errorf("%w: tile %dx%d, raster %dx%d", ErrTileTooLarge, tileY, tileX, height, width)
	}
	return nil
}

// Stack is the band-wise concatenation of co-registered rasters.
type Stack struct {
	Width   int
	Height  int
	Bands   [][]uint16
	BandMap BandMap
}

// NewStack concatenates rasters in order. labels[i] marks rasters[i] as label
// data. All rasters must share dimensions.
func NewStack(rasters []*raster.Raster, labels []bool) (*Stack, error) {
	if len(rasters) == 0 {
		return nil, ErrNoRasters
	}
	if len(labels) != len(rasters) {
		return nil, fmt.Errorf("tiling: %d label flags for %d rasters", len(labels), len(rasters))
	}
	first := rasters[0]
	s := &Stack{Width: first.Width, Height: first.Height}
	for i, r := range rasters {
		if !r.SameGrid(first) {
			return nil, fmt.Errorf("%w: raster %d is %dx%d, raster 0 is %dx%d",
				ErrShapeMismatch, i, r.Width, r.Height, first.Width, first.Height)
		}
		for _, band := range r.Data {
			idx := len(s.Bands)
			s.Bands = append(s.Bands, band)
			if labels[i] {
				s.BandMap.Labels = append(s.BandMap.Labels, idx)
			} else {
				s.BandMap.Features = append(s.BandMap.Features, idx)
			}
		}
	}
	return s, nil
}

// Extract copies the selected bands of one tile, zero-padding past the edges.
// Each returned band holds tileY*tileX samples in row-major order.
func (s *Stack) Extract(c Coord, tileY, tileX int, bands []int) [][]uint16 {
	out := make([][]uint16, len(bands))
	for i, b := range bands {
		dst := make([]uint16, tileY*tileX)
		src := s.Bands[b]
		for y := 0; y < tileY; y++ {
			sy := c.Y + y
			if sy >= s.Height {
				break
			}
			xEnd := min(tileX, s.Width-c.X)
			if xEnd <= 0 {
				break
			}
			copy(dst[y*tileX:y*tileX+xEnd], src[sy*s.Width+c.X:sy*s.Width+c.X+xEnd])
		}
		out[i] = dst
	}
	return out
}

// AllZero reports whether every sample of every band is zero.
func AllZero(bands [][]uint16) bool {
	for _, b := range bands {
		for _, v := range b {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// Permutation returns a random ordering of [0, n). A zero seed draws a
// random seed.
func Permutation(n int, seed int64) []int {
	s := uint64(seed)
	if seed == 0 {
		s = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
	return rng.Perm(n)
}

// Unshuffle restores grid order: preds[k] belongs to grid tile perm[k].
func Unshuffle[T any](preds []T, perm []int) ([]T, error) {
	if perm == nil {
		return preds, nil
	}
	if len(preds) != len(perm) {
		return nil, fmt.Errorf("%w: %d predictions for %d indices", ErrPermutation, len(preds), len(perm))
	}
	out := make([]T, len(preds))
	seen := make([]bool, len(perm))
	for k, idx := range perm {
		if idx < 0 || idx >= len(perm) || seen[idx] {
			return nil, fmt.Errorf("%w: index %d", ErrPermutation, idx)
		}
		seen[idx] = true
		out[idx] = preds[k]
	}
	return out, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
