package timelapse

import (
	"context"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/lightpipe/internal/basemap"
	"github.com/nucleus/lightpipe/pkg/geo"
	"github.com/nucleus/lightpipe/pkg/raster"
)

// fakeFrames returns frames whose width grows with the zoom level and reports
// no coverage for skip.
type fakeFrames struct {
	skip string
}

func (f *fakeFrames) Frame(_ context.Context, mosaic string, _ geo.Target, zoom int) (*basemap.Frame, error) {
	if mosaic == f.skip {
		return &basemap.Frame{Mosaic: mosaic, Zoom: zoom}, basemap.ErrNoCoverage
	}
	r := raster.New(4*zoom, 4, 3)
	for i := range r.Data[0] {
		r.Data[0][i] = 200
	}
	return &basemap.Frame{Mosaic: mosaic, Zoom: zoom, Raster: r, Tiles: 1}, nil
}

func month(s string) time.Time {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRun_ImagesAndGIFs(t *testing.T) {
	out := t.TempDir()
	r := &Runner{Frames: &fakeFrames{skip: "global_monthly_2021_02_mosaic"}}
	report, err := r.Run(context.Background(), []geo.Target{geo.PointTarget("t1", 0, 0, nil)}, Options{
		Start:      month("2021-01"),
		End:        month("2021-03"),
		Zooms:      []int{1, 2},
		Duration:   500 * time.Millisecond,
		MakeGIFs:   true,
		SaveImages: true,
		OutDir:     out,
	})
	require.NoError(t, err)
	assert.Equal(t, &Report{Targets: 1, Frames: 4, Images: 4, GIFs: 2, NoCoverage: 2}, report)

	img, err := raster.Read(filepath.Join(out, "t1", "z2", "2021_03.png"))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Width)
	_, err = os.Stat(filepath.Join(out, "t1", "z2", "2021_02.png"))
	assert.True(t, os.IsNotExist(err))

	f, err := os.Open(filepath.Join(out, "t1", "z1.gif"))
	require.NoError(t, err)
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, anim.Image, 2)
	assert.Equal(t, []int{50, 50}, anim.Delay)
}

func TestRun_Errors(t *testing.T) {
	r := &Runner{Frames: &fakeFrames{}}
	targets := []geo.Target{geo.PointTarget("t1", 0, 0, nil)}
	opts := Options{Start: month("2021-01"), End: month("2021-01"), Zooms: []int{1}, OutDir: t.TempDir()}

	_, err := r.Run(context.Background(), targets, opts)
	assert.ErrorIs(t, err, ErrNoOutput)

	opts.SaveImages = true
	_, err = r.Run(context.Background(), nil, opts)
	assert.ErrorIs(t, err, geo.ErrNoTargets)

	noZoom := opts
	noZoom.Zooms = nil
	_, err = r.Run(context.Background(), targets, noZoom)
	assert.Error(t, err)
}

func TestRun_RejectsCollidingOutputNames(t *testing.T) {
	out := t.TempDir()
	r := &Runner{Frames: &fakeFrames{}}
	targets := []geo.Target{geo.PointTarget("site a", 0, 0, nil), geo.PointTarget("site_a", 1, 1, nil)}
	_, err := r.Run(context.Background(), targets, Options{
		Start:      month("2021-01"),
		End:        month("2021-01"),
		Zooms:      []int{1},
		SaveImages: true,
		OutDir:     out,
	})
	assert.ErrorIs(t, err, geo.ErrDuplicateID)
	_, err = os.Stat(filepath.Join(out, "site_a"))
	assert.True(t, os.IsNotExist(err), "nothing is rendered")
}

func TestAnimate_ResizesToFirstFrame(t *testing.T) {
	small := raster.New(4, 4, 3)
	large := raster.New(8, 6, 1)
	anim, err := Animate([]*raster.Raster{small, large}, 3*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, anim.Image, 2)
	assert.Equal(t, small.Width, anim.Image[1].Bounds().Dx())
	assert.Equal(t, small.Height, anim.Image[1].Bounds().Dy())
	assert.Equal(t, []int{1, 1}, anim.Delay, "delay is at least one centisecond")

	anim, err = Animate([]*raster.Raster{small}, 15*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, anim.Delay, "delay rounds to the nearest centisecond")
	anim, err = Animate([]*raster.Raster{small}, 14*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, anim.Delay)

	assert.Error(t, WriteGIF(filepath.Join(t.TempDir(), "x.gif"), nil, time.Second))
}

func TestPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "a_b", "z3", "2021_04.png"), ImagePath("out", "a/b", 3, month("2021-04")))
	assert.Equal(t, filepath.Join("out", "a_b", "z3.gif"), GIFPath("out", "a b", 3))
}
