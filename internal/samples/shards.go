package samples

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/nucleus/lightpipe/pkg/sample"
)

// shardSchema is the parquet layout of one tile row. Band data is base64 of
// little-endian uint16 samples, band-major.
var shardSchema = buildShardSchema([]shardField{
	{"sample_id", "BYTE_ARRAY", "UTF8"},
	{"tile_index", "INT64", ""},
	{"row", "INT64", ""},
	{"col", "INT64", ""},
	{"tile_y", "INT64", ""},
	{"tile_x", "INT64", ""},
	{"x_bands", "INT64", ""},
	{"y_bands", "INT64", ""},
	{"positive", "BOOLEAN", ""},
	{"x", "BYTE_ARRAY", "UTF8"},
	{"y", "BYTE_ARRAY", "UTF8"},
})

type shardField struct {
	name, typ, converted string
}

func buildShardSchema(fields []shardField) string {
	tags := make([]map[string]string, 0, len(fields))
	for _, f := range fields {
		tag := fmt.Sprintf("name=%s, type=%s, repetitiontype=OPTIONAL", f.name, f.typ)
		if f.converted != "" {
			tag = fmt.Sprintf("name=%s, type=%s, convertedtype=%s, repetitiontype=OPTIONAL", f.name, f.typ, f.converted)
		}
		tags = append(tags, map[string]string{"Tag": tag})
	}
	b, _ := json.Marshal(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": tags,
	})
	return string(b)
}

type tileRow struct {
	SampleID  string `json:"sample_id"`
	TileIndex int    `json:"tile_index"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	TileY     int    `json:"tile_y"`
	TileX     int    `json:"tile_x"`
	XBands    int    `json:"x_bands"`
	YBands    int    `json:"y_bands"`
	Positive  bool   `json:"positive"`
	X         string `json:"x"`
	Y         string `json:"y"`
}

// EncodeBands packs band samples as base64 little-endian uint16.
func EncodeBands(bands [][]uint16) string {
	n := 0
	for _, b := range bands {
		n += len(b)
	}
	buf := make([]byte, 0, 2*n)
	for _, b := range bands {
		for _, v := range b {
			buf = binary.LittleEndian.AppendUint16(buf, v)
		}
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeBands reverses EncodeBands for bands of size samples each.
func DecodeBands(s string, size int) ([][]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if size <= 0 || len(raw)%(2*size) != 0 {
		return nil, fmt.Errorf("band data of %d bytes is not a multiple of %d samples", len(raw), size)
	}
	bands := make([][]uint16, len(raw)/(2*size))
	for b := range bands {
		band := make([]uint16, size)
		for i := range band {
			off := 2 * (b*size + i)
			band[i] = binary.LittleEndian.Uint16(raw[off:])
		}
		bands[b] = band
	}
	return bands, nil
}

// shardWriter rolls parquet files every size rows.
type shardWriter struct {
	dir  string
	size int

	fw    source.ParquetFile
	pw    *writer.JSONWriter
	rows  int
	files []string
	total int
}

func newShardWriter(dir string, size int) *shardWriter {
	if size <= 0 {
		size = 1024
	}
	return &shardWriter{dir: dir, size: size}
}

func (w *shardWriter) open() error {
	name := filepath.Join(w.dir, fmt.Sprintf("part-%06d.parquet", len(w.files)))
	fw, err := local.NewLocalFileWriter(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	pw, err := writer.NewJSONWriter(shardSchema, fw, 4)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	w.fw, w.pw, w.rows = fw, pw, 0
	w.files = append(w.files, name)
	return nil
}

func (w *shardWriter) Write(uid string, tile sample.Tile, tileY, tileX int) error {
	if w.pw == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	row := tileRow{
		SampleID:  uid,
		TileIndex: tile.Index,
		Row:       tile.Coord.Row,
		Col:       tile.Coord.Col,
		TileY:     tileY,
		TileX:     tileX,
		XBands:    len(tile.X),
		YBands:    len(tile.Y),
		Positive:  tile.Positive(),
		X:         EncodeBands(tile.X),
		Y:         EncodeBands(tile.Y),
	}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	if err := w.pw.Write(string(data)); err != nil {
		return fmt.Errorf("write tile %d: %w", tile.Index, err)
	}
	w.rows++
	w.total++
	if w.rows >= w.size {
		return w.flush()
	}
	return nil
}

func (w *shardWriter) flush() error {
	if w.pw == nil {
		return nil
	}
	err := w.pw.WriteStop()
	if cerr := w.fw.Close(); err == nil {
		err = cerr
	}
	w.pw, w.fw = nil, nil
	if err != nil {
		return fmt.Errorf("finish shard: %w", err)
	}
	return nil
}

// Close finishes the open shard.
func (w *shardWriter) Close() error { return w.flush() }
