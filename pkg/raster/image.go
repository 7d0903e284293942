package raster

import (
	"fmt"
	"image"
	"image/color"
)

// FromImage converts a decoded image. Gray images become one band; everything
// else becomes three RGB bands with alpha discarded. 16-bit sources keep their
// full range; 8-bit sources keep 0..255.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		r := New(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Data[0][y*w+x] = uint16(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return r
	case *image.Gray16:
		r := New(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Data[0][y*w+x] = src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			}
		}
		return r
	}

	wide := is16Bit(img)
	r := New(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			i := y*w + x
			if wide {
				r.Data[0][i], r.Data[1][i], r.Data[2][i] = c.R, c.G, c.B
			} else {
				r.Data[0][i], r.Data[1][i], r.Data[2][i] = c.R>>8, c.G>>8, c.B>>8
			}
		}
	}
	return r
}

func is16Bit(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		return true
	}
	return false
}

// Image renders the raster for encoding. One band maps to gray, three bands to
// opaque RGB. Uint8 clamps samples above 255.
func (r *Raster) Image(dtype DType) (image.Image, error) {
	rect := image.Rect(0, 0, r.Width, r.Height)
	switch r.Bands() {
	case 1:
		if dtype == Uint16 {
			img := image.NewGray16(rect)
			for y := 0; y < r.Height; y++ {
				for x := 0; x < r.Width; x++ {
					img.SetGray16(x, y, color.Gray16{Y: r.At(0, x, y)})
				}
			}
			return img, nil
		}
		img := image.NewGray(rect)
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				img.SetGray(x, y, color.Gray{Y: clamp8(r.At(0, x, y))})
			}
		}
		return img, nil
	case 3:
		if dtype == Uint16 {
			img := image.NewRGBA64(rect)
			for y := 0; y < r.Height; y++ {
				for x := 0; x < r.Width; x++ {
					img.SetRGBA64(x, y, color.RGBA64{R: r.At(0, x, y), G: r.At(1, x, y), B: r.At(2, x, y), A: 0xffff})
				}
			}
			return img, nil
		}
		img := image.NewRGBA(rect)
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				img.SetRGBA(x, y, color.RGBA{R: clamp8(r.At(0, x, y)), G: clamp8(r.At(1, x, y)), B: clamp8(r.At(2, x, y)), A: 0xff})
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrBandCount, r.Bands())
	}
}

func clamp8(v uint16) uint8 {
	if v > 255 {
		return 255
	}
	return uint8(v)
}
