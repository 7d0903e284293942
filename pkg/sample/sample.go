// Package sample serves analysis-ready tiles from one or more co-registered
// rasters and maps per-tile predictions back onto georeferenced outputs.
package sample

import (
	"context"
	"errors"
	"fmt"

	"github.com/nucleus/lightpipe/pkg/raster"
	"github.com/nucleus/lightpipe/pkg/tiling"
)

const DefaultTileSize = 224

var (
	ErrNoPredictions     = errors.New("sample: no predictions")
	ErrPredictionCount   = errors.New("sample: prediction count does not match tile count")
	ErrPredictionShape   = errors.New("sample: prediction length does not match tile shape")
	ErrNotNorthUp        = errors.New("sample: ancestor raster is not north-up")
	ErrUnsupportedFormat = errors.New("sample: unsupported output format")
	ErrEmpty             = errors.New("sample: no datasets")
)

// Options configure tiling.
type Options struct {
	TileY       int
	TileX       int
	PosOnly     bool // skip tiles whose label bands are all zero
	NonNullOnly bool // skip tiles whose feature bands are all zero
	RowMajor    bool
	// TileCoords reuses a previously computed grid.
	TileCoords []tiling.Coord
	// ShuffleIndices restores a previous shuffle for Unshuffle and Save.
	ShuffleIndices []int
	// Seed fixes the shuffle order; zero means random.
	Seed int64
}

// Entry is one dataset yielded by Next.
type Entry struct {
	Raster   *raster.Raster
	IsLabel  bool
	Metadata map[string]any
}

// Tile is a zero-padded window of the stacked datasets. Index is the tile's
// position in TileCoords, whatever order tiles are emitted in.
type Tile struct {
	Index   int
	Coord   tiling.Coord
	X       [][]uint16
	Y       [][]uint16
	BandMap tiling.BandMap
}

// Positive reports whether any label sample is non-zero.
func (t Tile) Positive() bool { return !tiling.AllZero(t.Y) }

// TileOptions select per-call tiling behaviour.
type TileOptions struct {
	Shuffle bool
	// AssertTileFits fails with tiling.ErrTileTooLarge when a tile exceeds the rasters.
	AssertTileFits bool
}

// Sample owns a manifest and the tiling state needed to save predictions.
type Sample struct {
	data *Manifest
	opts Options

	TileCoords     []tiling.Coord
	ShuffleIndices []int
	BandMap        tiling.BandMap
	Preds          [][]float64

	next int
}

// New creates a sample. Zero tile sizes default to 224.
func New(m *Manifest, opts Options) *Sample {
	if opts.TileY <= 0 {
		opts.TileY = DefaultTileSize
	}
	if opts.TileX <= 0 {
		opts.TileX = DefaultTileSize
	}
	if m == nil {
		m = &Manifest{}
	}
	return &Sample{
		data:           m,
		opts:           opts,
		TileCoords:     opts.TileCoords,
		ShuffleIndices: opts.ShuffleIndices,
	}
}

// Manifest returns the current manifest.
func (s *Sample) Manifest() *Manifest { return s.data }

// TileSize returns (tileY, tileX).
func (s *Sample) TileSize() (int, int) { return s.opts.TileY, s.opts.TileX }

// AddData appends the datasets of m, keeping the current UID.
func (s *Sample) AddData(m *Manifest) error {
	merged, err := s.data.Concat(s.data.UID, m)
	if err != nil {
		return err
	}
	s.data = merged
	return nil
}

// Next returns the next dataset, opening it if needed. ok is false once all
// datasets have been returned.
func (s *Sample) Next() (Entry, bool, error) {
	if s.next >= s.data.Len() {
		return Entry{}, false, nil
	}
	i := s.next
	s.next++
	r, err := s.data.Datasets[i].Open()
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Raster: r, IsLabel: s.data.Labels[i], Metadata: s.data.Metadata[i]}, true, nil
}

// Reset rewinds Next.
func (s *Sample) Reset() { s.next = 0 }

// Load opens every dataset given by path.
func (s *Sample) Load() error {
	for i := range s.data.Datasets {
		if _, err := s.data.Datasets[i].Open(); err != nil {
			return fmt.Errorf("sample %s dataset %d: %w", s.data.UID, i, err)
		}
	}
	return nil
}

func (s *Sample) rasters() ([]*raster.Raster, error) {
	if s.data.Len() == 0 {
		return nil, ErrEmpty
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	out := make([]*raster.Raster, s.data.Len())
	for i := range s.data.Datasets {
		out[i] = s.data.Datasets[i].Raster
	}
	return out, nil
}

// Tiles stacks the datasets and calls fn for each tile that passes the
// PosOnly and NonNullOnly filters. TileCoords, ShuffleIndices and BandMap are
// recorded before the first call to fn.
func (s *Sample) Tiles(ctx context.Context, topts TileOptions, fn func(Tile) error) error {
	rasters, err := s.rasters()
	if err != nil {
		return err
	}
	stack, err := tiling.NewStack(rasters, s.data.Labels)
	if err != nil {
		return err
	}
	if topts.AssertTileFits {
		if err := tiling.CheckTileFits(stack.Height, stack.Width, s.opts.TileY, s.opts.TileX); err != nil {
			return err
		}
	}
	if s.TileCoords == nil {
		coords, err := tiling.Grid(stack.Height, stack.Width, s.opts.TileY, s.opts.TileX, s.opts.RowMajor)
		if err != nil {
			return err
		}
		s.TileCoords = coords
	}
	s.BandMap = stack.BandMap

	order := make([]int, len(s.TileCoords))
	for i := range order {
		order[i] = i
	}
	s.ShuffleIndices = nil
	if topts.Shuffle {
		order = tiling.Permutation(len(s.TileCoords), s.opts.Seed)
		s.ShuffleIndices = order
	}

	for _, idx := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := s.TileCoords[idx]
		t := Tile{
			Index:   idx,
			Coord:   c,
			X:       stack.Extract(c, s.opts.TileY, s.opts.TileX, stack.BandMap.Features),
			Y:       stack.Extract(c, s.opts.TileY, s.opts.TileX, stack.BandMap.Labels),
			BandMap: stack.BandMap,
		}
		if s.opts.PosOnly && tiling.AllZero(t.Y) {
			continue
		}
		if s.opts.NonNullOnly && tiling.AllZero(t.X) {
			continue
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

// Shuffle is Tiles with shuffling enabled.
func (s *Sample) Shuffle(ctx context.Context, topts TileOptions, fn func(Tile) error) error {
	topts.Shuffle = true
	return s.Tiles(ctx, topts, fn)
}

// Unshuffle puts predictions made in shuffled emission order back into grid
// order. nil preds means s.Preds. Without a recorded shuffle, preds are
// returned unchanged.
func (s *Sample) Unshuffle(preds [][]float64) ([][]float64, error) {
	if preds == nil {
		preds = s.Preds
	}
	if preds == nil {
		return nil, ErrNoPredictions
	}
	return tiling.Unshuffle(preds, s.ShuffleIndices)
}
