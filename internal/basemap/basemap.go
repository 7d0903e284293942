// Package basemap assembles georeferenced frames from basemap XYZ tiles.
package basemap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nucleus/lightpipe/internal/logging"
	"github.com/nucleus/lightpipe/internal/planet"
	"github.com/nucleus/lightpipe/pkg/geo"
	"github.com/nucleus/lightpipe/pkg/raster"
)

// TileSize is the edge length of a basemap tile in pixels.
const TileSize = 256

// ErrNoCoverage means no tile of a frame had imagery.
var ErrNoCoverage = errors.New("basemap: no coverage")

// TileSource downloads encoded XYZ tiles. *planet.Client implements it.
type TileSource interface {
	FetchTile(ctx context.Context, mosaic string, t maptile.Tile) ([]byte, error)
}

var _ TileSource = (*planet.Client)(nil)

// Fetcher builds frames from a TileSource.
type Fetcher struct {
	Source TileSource
	// Padding grows the covering tile range on every side.
	Padding int
	// MaxTiles bounds the tiles of one frame; zero means no limit.
	MaxTiles int
	// Workers bounds concurrent tile downloads (default 8).
	Workers int
	Logger  *zap.Logger
}

// Frame is one mosaic rendered over a target's covering tiles.
type Frame struct {
	Mosaic  string
	Zoom    int
	Raster  *raster.Raster
	Tiles   int
	Missing int
}

// Frame fetches every tile covering target at zoom and stitches them into an
// RGB raster in EPSG:3857. Tiles without coverage stay black. ErrNoCoverage is
// returned when every tile is missing.
func (f *Fetcher) Frame(ctx context.Context, mosaic string, target geo.Target, zoom int) (*Frame, error) {
	tiles, err := geo.CoveringTiles(target.Bound, zoom, f.Padding, f.MaxTiles)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", target.ID, err)
	}
	minX, minY, maxX, maxY := geo.TileSpan(tiles)
	cols, rows := int(maxX-minX)+1, int(maxY-minY)+1

	out := raster.New(cols*TileSize, rows*TileSize, 3)
	out.GeoTransform = SpanTransform(minX, minY, maxX, maxY, maptile.Zoom(zoom), out.Width, out.Height)

	logger := logging.OrNop(f.Logger).Named("basemap")
	workers := f.Workers
	if workers <= 0 {
		workers = 8
	}

	var missing atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range tiles {
		g.Go(func() error {
			data, err := f.Source.FetchTile(gctx, mosaic, t)
			if errors.Is(err, planet.ErrTileNotFound) {
				missing.Add(1)
				return nil
			}
			if err != nil {
				return err
			}
			img, err := raster.Decode(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("decode tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
			}
			return out.Paste(toRGB(img), int(t.X-minX)*TileSize, int(t.Y-minY)*TileSize)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	frame := &Frame{Mosaic: mosaic, Zoom: zoom, Raster: out, Tiles: len(tiles), Missing: int(missing.Load())}
	logger.Debug("frame assembled",
		zap.String("target", target.ID),
		zap.String("mosaic", mosaic),
		zap.Int("zoom", zoom),
		zap.Int("tiles", frame.Tiles),
		zap.Int("missing", frame.Missing))
	if frame.Missing == frame.Tiles {
		return frame, fmt.Errorf("%w: %s for target %s at zoom %d", ErrNoCoverage, mosaic, target.ID, zoom)
	}
	return frame, nil
}

// SpanTransform georeferences a raster covering the tile range
// [minX, maxX] x [minY, maxY] in Web Mercator metres.
func SpanTransform(minX, minY, maxX, maxY uint32, z maptile.Zoom, width, height int) raster.GeoTransform {
	nw := maptile.New(minX, minY, z).Bound()
	se := maptile.New(maxX, maxY, z).Bound()
	topLeft := project.WGS84.ToMercator(orb.Point{nw.Min.Lon(), nw.Max.Lat()})
	bottomRight := project.WGS84.ToMercator(orb.Point{se.Max.Lon(), se.Min.Lat()})
	px := (bottomRight.X() - topLeft.X()) / float64(width)
	py := (bottomRight.Y() - topLeft.Y()) / float64(height)
	return raster.GeoTransform{topLeft.X(), px, 0, topLeft.Y(), 0, py}
}

// toRGB widens gray tiles to three bands.
func toRGB(r *raster.Raster) *raster.Raster {
	if r.Bands() == 3 {
		return r
	}
	rgb := raster.New(r.Width, r.Height, 3)
	for b := range rgb.Data {
		copy(rgb.Data[b], r.Data[0])
	}
	return rgb
}
