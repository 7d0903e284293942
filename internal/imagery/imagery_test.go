package imagery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/lightpipe/internal/basemap"
	"github.com/nucleus/lightpipe/internal/connector/gcs"
	"github.com/nucleus/lightpipe/internal/manifest"
	"github.com/nucleus/lightpipe/pkg/geo"
	"github.com/nucleus/lightpipe/pkg/raster"
)

type fakeFrames struct {
	mu       sync.Mutex
	requests []string
	// uncovered mosaics return ErrNoCoverage.
	uncovered map[string]bool
	fail      error
}

func (f *fakeFrames) Frame(_ context.Context, mosaic string, target geo.Target, zoom int) (*basemap.Frame, error) {
	f.mu.Lock()
	f.requests = append(f.requests, target.ID+"@"+mosaic)
	f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if f.uncovered[mosaic] {
		return &basemap.Frame{Mosaic: mosaic, Zoom: zoom, Tiles: 1, Missing: 1}, basemap.ErrNoCoverage
	}
	r := raster.New(4, 4, 3)
	r.GeoTransform = raster.GeoTransform{100, 2, 0, 200, 0, -2}
	return &basemap.Frame{Mosaic: mosaic, Zoom: zoom, Raster: r, Tiles: 1}, nil
}

func month(s string) time.Time {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		panic(err)
	}
	return t
}

func targets() []geo.Target {
	return []geo.Target{
		geo.PointTarget("farm", 10, 50, nil),
		geo.PointTarget("site a", 11, 51, nil),
	}
}

func TestRun_WritesFramesAndManifest(t *testing.T) {
	ctx := context.Background()
	store := gcs.NewLocalStore(t.TempDir())
	frames := &fakeFrames{uncovered: map[string]bool{"global_monthly_2021_02_mosaic": true}}
	r := &Runner{Frames: frames, Store: store, Now: func() time.Time { return month("2022-01") }}

	report, err := r.Run(ctx, targets(), Options{
		Bucket:     "b",
		PathPrefix: "imagery",
		Zoom:       15,
		Start:      month("2021-01"),
		End:        month("2021-03"),
		Workers:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Targets)
	assert.Equal(t, 4, report.Frames)
	assert.Equal(t, 2, report.NoCoverage)
	assert.Equal(t, "imagery/manifest.json", report.ManifestKey)
	assert.Len(t, frames.requests, 6)

	png, err := store.GetObject(ctx, "b", "imagery/farm/2021_01/z15.png")
	require.NoError(t, err)
	assert.NotEmpty(t, png)
	world, err := store.GetObject(ctx, "b", "imagery/farm/2021_01/z15.pgw")
	require.NoError(t, err)
	g, err := raster.DecodeWorldFile(world)
	require.NoError(t, err)
	assert.Equal(t, raster.GeoTransform{100, 2, 0, 200, 0, -2}, g)

	_, err = store.GetObject(ctx, "b", "imagery/farm/2021_02/z15.png")
	assert.True(t, gcs.IsNotFound(err))

	data, err := store.GetObject(ctx, "b", "imagery/manifest.json")
	require.NoError(t, err)
	doc, err := manifest.Parse(data)
	require.NoError(t, err)
	require.Len(t, doc.Samples, 2)
	assert.Equal(t, "farm", doc.Samples[0].UID)
	assert.Equal(t, "site_a", doc.Samples[1].UID)
	assert.Equal(t, "site a", doc.Samples[1].Target)
	require.Len(t, doc.Samples[0].Datasets, 2)
	assert.Equal(t, "imagery/farm/2021_03/z15.png", doc.Samples[0].Datasets[1].Key)
	assert.Equal(t, "2021_03", doc.Samples[0].Datasets[1].Metadata["month"])
	assert.Equal(t, "b", doc.Bucket)
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	store := gcs.NewLocalStore(t.TempDir())
	opts := Options{Bucket: "b", Zoom: 10, Start: month("2021-01"), End: month("2021-01")}

	_, err := (&Runner{Frames: &fakeFrames{}, Store: store}).Run(ctx, nil, opts)
	assert.ErrorIs(t, err, geo.ErrNoTargets)

	boom := errors.New("boom")
	_, err = (&Runner{Frames: &fakeFrames{fail: boom}, Store: store}).Run(ctx, targets(), opts)
	assert.ErrorIs(t, err, boom)

	bad := opts
	bad.Start, bad.End = month("2021-05"), month("2021-01")
	_, err = (&Runner{Frames: &fakeFrames{}, Store: store}).Run(ctx, targets(), bad)
	assert.Error(t, err)

	noBucket := opts
	noBucket.Bucket = ""
	_, err = (&Runner{Frames: &fakeFrames{}, Store: store}).Run(ctx, targets(), noBucket)
	assert.Error(t, err)
}

func TestRun_RejectsCollidingSampleUIDs(t *testing.T) {
	ctx := context.Background()
	store := gcs.NewLocalStore(t.TempDir())
	frames := &fakeFrames{}
	r := &Runner{Frames: frames, Store: store}
	colliding := []geo.Target{geo.PointTarget("site a", 10, 50, nil), geo.PointTarget("site_a", 11, 51, nil)}

	_, err := r.Run(ctx, colliding, Options{Bucket: "b", Zoom: 10, Start: month("2021-01"), End: month("2021-01")})
	assert.ErrorIs(t, err, geo.ErrDuplicateID)
	assert.Empty(t, frames.requests)
	_, err = store.GetObject(ctx, "b", ManifestName)
	assert.True(t, gcs.IsNotFound(err))
}

func TestFrameKey(t *testing.T) {
	assert.Equal(t, "p/t/2021_01/z15.png", FrameKey("/p/", "t", "2021_01", 15))
	assert.Equal(t, "t/2021_01/z3.png", FrameKey("", "t", "2021_01", 3))
}

