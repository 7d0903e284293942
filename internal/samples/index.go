package samples

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nucleus/lightpipe/pkg/sample"
	"github.com/nucleus/lightpipe/pkg/tiling"
)

// IndexName is the per-sample tiling record written next to the shards.
const IndexName = "tile_coords.json"

// TileIndex records how a sample was tiled so predictions can be saved
// against it later.
type TileIndex struct {
	SampleID       string         `json:"sample_id"`
	TileY          int            `json:"tile_y"`
	TileX          int            `json:"tile_x"`
	RowMajor       bool           `json:"row_major"`
	Shuffled       bool           `json:"shuffled"`
	BandMap        tiling.BandMap `json:"band_map"`
	TileCoords     []tiling.Coord `json:"tile_coords"`
	ShuffleIndices []int          `json:"shuffle_indices,omitempty"`
	TilesWritten   int            `json:"tiles_written"`
	Datasets       []string       `json:"datasets"`
}

// SampleOptions restores the tiling state for sample.New.
func (ix *TileIndex) SampleOptions() sample.Options {
	return sample.Options{
		TileY:          ix.TileY,
		TileX:          ix.TileX,
		RowMajor:       ix.RowMajor,
		TileCoords:     ix.TileCoords,
		ShuffleIndices: ix.ShuffleIndices,
	}
}

// LoadTileIndex reads a tile_coords.json file.
func LoadTileIndex(path string) (*TileIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ix TileIndex
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &ix, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
