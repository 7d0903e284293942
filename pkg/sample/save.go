package sample

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nucleus/lightpipe/pkg/raster"
	"github.com/nucleus/lightpipe/pkg/tiling"
)

// SaveOptions control how predictions are written.
type SaveOptions struct {
	// Bands per prediction (default 1).
	Bands int
	// DType of the output raster (default raster.Uint8).
	DType raster.DType
	// PixelXSize and PixelYSize override the output pixel size of per-tile
	// predictions. Zero keeps the ancestor pixel size scaled by the tile size.
	PixelXSize float64
	PixelYSize float64
	// AllowRotated skips the north-up check on the ancestor raster.
	AllowRotated bool
}

// Save writes predictions aligned with TileCoords. The extension selects the
// format: .tif/.tiff/.png produce a georeferenced raster, .csv one row per
// tile. Each prediction holds either Bands values (one per tile) or
// Bands*tileY*tileX values (a full tile, band-major). Predictions made on
// shuffled tiles are unshuffled first. nil preds means s.Preds.
func (s *Sample) Save(path string, preds [][]float64, opts SaveOptions) error {
	if preds == nil {
		preds = s.Preds
	}
	if len(preds) == 0 {
		return ErrNoPredictions
	}
	if opts.Bands <= 0 {
		opts.Bands = 1
	}
	if opts.DType == 0 {
		opts.DType = raster.Uint8
	}

	ancestor, err := s.ancestor()
	if err != nil {
		return err
	}
	if !opts.AllowRotated && !ancestor.GeoTransform.IsNorthUp() {
		return ErrNotNorthUp
	}
	if s.TileCoords == nil {
		coords, err := tiling.Grid(ancestor.Height, ancestor.Width, s.opts.TileY, s.opts.TileX, s.opts.RowMajor)
		if err != nil {
			return err
		}
		s.TileCoords = coords
	}
	ordered, err := tiling.Unshuffle(preds, s.ShuffleIndices)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPredictionCount, err)
	}
	if len(ordered) != len(s.TileCoords) {
		return fmt.Errorf("%w: %d predictions for %d tiles", ErrPredictionCount, len(ordered), len(s.TileCoords))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff", ".png":
		out, err := s.predictionRaster(ancestor, ordered, opts)
		if err != nil {
			return err
		}
		return raster.Write(path, out, opts.DType)
	case ".csv":
		return s.writeCSV(path, ancestor, ordered, opts)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

func (s *Sample) ancestor() (*raster.Raster, error) {
	if s.data.Len() == 0 {
		return nil, ErrEmpty
	}
	return s.data.Datasets[0].Open()
}

func (s *Sample) predictionRaster(ancestor *raster.Raster, preds [][]float64, opts SaveOptions) (*raster.Raster, error) {
	tileY, tileX := s.opts.TileY, s.opts.TileX
	perTile := opts.Bands
	full := opts.Bands * tileY * tileX
	maxVal := 255.0
	if opts.DType == raster.Uint16 {
		maxVal = 65535
	}

	switch len(preds[0]) {
	case perTile:
		rows, cols := tiling.GridShape(ancestor.Height, ancestor.Width, tileY, tileX)
		out := raster.New(cols, rows, opts.Bands)
		g := ancestor.GeoTransform.Scaled(float64(tileX), float64(tileY))
		if opts.PixelXSize != 0 && opts.PixelYSize != 0 {
			g = raster.GeoTransform{g[0], opts.PixelXSize, 0, g[3], 0, opts.PixelYSize}
		}
		out.GeoTransform = g
		for i, c := range s.TileCoords {
			if len(preds[i]) != perTile {
				return nil, fmt.Errorf("%w: tile %d has %d values", ErrPredictionShape, i, len(preds[i]))
			}
			for b := 0; b < opts.Bands; b++ {
				out.Set(b, c.Col, c.Row, toSample(preds[i][b], maxVal))
			}
		}
		return out, nil
	case full:
		out := raster.New(ancestor.Width, ancestor.Height, opts.Bands)
		out.GeoTransform = ancestor.GeoTransform
		for i, c := range s.TileCoords {
			if len(preds[i]) != full {
				return nil, fmt.Errorf("%w: tile %d has %d values", ErrPredictionShape, i, len(preds[i]))
			}
			for b := 0; b < opts.Bands; b++ {
				for y := 0; y < tileY && c.Y+y < out.Height; y++ {
					for x := 0; x < tileX && c.X+x < out.Width; x++ {
						out.Set(b, c.X+x, c.Y+y, toSample(preds[i][b*tileY*tileX+y*tileX+x], maxVal))
					}
				}
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: got %d values, want %d or %d", ErrPredictionShape, len(preds[0]), perTile, full)
}

func (s *Sample) writeCSV(path string, ancestor *raster.Raster, preds [][]float64, opts SaveOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"tile_index", "row", "col", "min_x", "min_y", "max_x", "max_y"}
	if opts.Bands == 1 {
		header = append(header, "pred")
	} else {
		for b := 0; b < opts.Bands; b++ {
			header = append(header, "pred_"+strconv.Itoa(b))
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i, c := range s.TileCoords {
		if len(preds[i]) != opts.Bands {
			return fmt.Errorf("%w: csv needs %d values per tile, tile %d has %d", ErrPredictionShape, opts.Bands, i, len(preds[i]))
		}
		minX, minY, maxX, maxY := raster.WindowBounds(ancestor.GeoTransform, c.X, c.Y, s.opts.TileX, s.opts.TileY)
		rec := []string{
			strconv.Itoa(i), strconv.Itoa(c.Row), strconv.Itoa(c.Col),
			formatFloat(minX), formatFloat(minY), formatFloat(maxX), formatFloat(maxY),
		}
		for _, v := range preds[i] {
			rec = append(rec, formatFloat(v))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func toSample(v, maxVal float64) uint16 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= maxVal {
		return uint16(maxVal)
	}
	return uint16(math.Round(v))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
