package raster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h, bands int) *Raster {
	r := New(w, h, bands)
	for b := 0; b < bands; b++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Set(b, x, y, uint16((x+y*w+b*7)%256))
			}
		}
	}
	return r
}

func TestGeoTransform(t *testing.T) {
	g := GeoTransform{100, 10, 0, 500, 0, -10}
	x, y := g.Apply(2, 3)
	assert.Equal(t, 120.0, x)
	assert.Equal(t, 470.0, y)
	assert.True(t, g.IsNorthUp())
	assert.False(t, GeoTransform{0, 1, 0.5, 0, 0, -1}.IsNorthUp())

	s := g.Scaled(4, 4)
	assert.Equal(t, GeoTransform{100, 40, 0, 500, 0, -40}, s)

	o := g.Offset(1, 1)
	assert.Equal(t, GeoTransform{110, 10, 0, 490, 0, -10}, o)
}

func TestRasterBounds(t *testing.T) {
	r := New(4, 2, 1)
	r.GeoTransform = GeoTransform{100, 10, 0, 500, 0, -10}
	minX, minY, maxX, maxY := r.Bounds()
	assert.Equal(t, []float64{100, 480, 140, 500}, []float64{minX, minY, maxX, maxY})
}

func TestWorldFileRoundTrip(t *testing.T) {
	g := GeoTransform{-13627361.0, 4.777, 0, 4548850.0, 0, -4.777}
	back, err := DecodeWorldFile(EncodeWorldFile(g))
	require.NoError(t, err)
	for i := range g {
		assert.InDelta(t, g[i], back[i], 1e-6, "coefficient %d", i)
	}

	_, err = DecodeWorldFile([]byte("1\n2\n"))
	assert.Error(t, err)
	_, err = DecodeWorldFile([]byte("1\n0\n0\n-1\nabc\n0\n"))
	assert.Error(t, err)
}

func TestWorldFilePath(t *testing.T) {
	assert.Equal(t, "a/b.pgw", WorldFilePath("a/b.png"))
	assert.Equal(t, "a/b.tfw", WorldFilePath("a/b.TIF"))
	assert.Equal(t, "a/b.wld", WorldFilePath("a/b.bmp"))
}

func TestWriteReadPNG(t *testing.T) {
	dir := t.TempDir()
	src := gradient(5, 3, 3)
	src.GeoTransform = GeoTransform{10, 2, 0, 20, 0, -2}

	path := filepath.Join(dir, "frame.png")
	require.NoError(t, Write(path, src, Uint8))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Width)
	assert.Equal(t, 3, got.Height)
	assert.Equal(t, 3, got.Bands())
	assert.Equal(t, src.Data, got.Data)
	for i := range src.GeoTransform {
		assert.InDelta(t, src.GeoTransform[i], got.GeoTransform[i], 1e-9)
	}
}

func TestWriteReadTIFF16(t *testing.T) {
	dir := t.TempDir()
	src := New(3, 2, 1)
	src.Set(0, 0, 0, 1000)
	src.Set(0, 2, 1, 65535)

	path := filepath.Join(dir, "mask.tif")
	require.NoError(t, Write(path, src, Uint16))
	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Bands())
	assert.Equal(t, uint16(1000), got.At(0, 0, 0))
	assert.Equal(t, uint16(65535), got.At(0, 2, 1))
}

func TestWriteClampsUint8(t *testing.T) {
	src := New(1, 1, 1)
	src.Set(0, 0, 0, 4000)
	path := filepath.Join(t.TempDir(), "c.png")
	require.NoError(t, Write(path, src, Uint8))
	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(255), got.At(0, 0, 0))
}

func TestReadWithoutWorldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.png")
	data, err := EncodeBytes(gradient(2, 2, 1), FormatPNG, Uint8)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, IdentityTransform, got.GeoTransform)
}

func TestUnsupported(t *testing.T) {
	_, err := FormatOf("x.bmp")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = New(1, 1, 2).Image(Uint8)
	assert.ErrorIs(t, err, ErrBandCount)
}

func TestPaste(t *testing.T) {
	dst := New(4, 4, 1)
	src := New(2, 2, 1)
	for i := range src.Data[0] {
		src.Data[0][i] = 9
	}
	require.NoError(t, dst.Paste(src, 3, 3))
	assert.Equal(t, uint16(9), dst.At(0, 3, 3))
	assert.Equal(t, uint16(0), dst.At(0, 2, 2))

	assert.ErrorIs(t, dst.Paste(New(1, 1, 3), 0, 0), ErrBandCount)
}
