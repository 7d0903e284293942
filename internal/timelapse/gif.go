package timelapse

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"

	"github.com/nucleus/lightpipe/pkg/raster"
)

// WriteGIF encodes frames as a looping animation. Every frame is scaled to the
// size of the first and quantized to the Plan 9 palette with Floyd-Steinberg
// dithering. delay is rounded to centiseconds, minimum one.
func WriteGIF(path string, frames []*raster.Raster, delay time.Duration) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames")
	}
	anim, err := Animate(frames, delay)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gif.EncodeAll(f, anim); err != nil {
		return err
	}
	return f.Close()
}

// Animate builds the GIF without writing it.
func Animate(frames []*raster.Raster, delay time.Duration) (*gif.GIF, error) {
	cs := max(int((delay+5*time.Millisecond)/(10*time.Millisecond)), 1)
	var bounds image.Rectangle
	anim := &gif.GIF{}
	for i, fr := range frames {
		img, err := fr.Image(raster.Uint8)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if i == 0 {
			bounds = img.Bounds()
		}
		if img.Bounds().Size() != bounds.Size() {
			scaled := image.NewRGBA(bounds)
			draw.ApproxBiLinear.Scale(scaled, bounds, img, img.Bounds(), draw.Src, nil)
			img = scaled
		}
		pal := image.NewPaletted(bounds, palette.Plan9)
		draw.FloydSteinberg.Draw(pal, bounds, img, img.Bounds().Min)
		anim.Image = append(anim.Image, pal)
		anim.Delay = append(anim.Delay, cs)
	}
	return anim, nil
}
