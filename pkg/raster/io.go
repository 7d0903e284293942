package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
)

// Format identifies an encoding by file extension.
type Format string

const (
	FormatPNG  Format = "png"
	FormatTIFF Format = "tiff"
	FormatJPEG Format = "jpeg"
)

// FormatOf returns the format implied by path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Decode reads an image stream into a raster with an identity transform.
func Decode(r io.Reader) (*Raster, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img), nil
}

// Read opens an image file and applies its world file, when present.
func Read(path string) (*Raster, error) {
	if _, err := FormatOf(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	g, _, err := ReadWorldFile(path)
	if err != nil {
		return nil, err
	}
	r.GeoTransform = g
	return r, nil
}

// Encode writes r in the given format. JPEG output is not supported.
func Encode(w io.Writer, r *Raster, format Format, dtype DType) error {
	img, err := r.Image(dtype)
	if err != nil {
		return err
	}
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	return fmt.Errorf("%w: encode %s", ErrUnsupportedFormat, format)
}

// EncodeBytes is Encode into memory.
func EncodeBytes(r *Raster, format Format, dtype DType) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r, format, dtype); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes r to path by extension and writes the world-file sidecar.
func Write(path string, r *Raster, dtype DType) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := EncodeBytes(r, format, dtype)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	return os.WriteFile(WorldFilePath(path), EncodeWorldFile(r.GeoTransform), 0o644)
}
