package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nucleus/lightpipe/internal/connector/gcs"
	"github.com/nucleus/lightpipe/internal/imagery"
	"github.com/nucleus/lightpipe/pkg/raster"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// localBucket points the GCS endpoint at a directory and returns its store.
func localBucket(t *testing.T) *gcs.LocalStore {
	t.Helper()
	root := t.TempDir()
	t.Setenv("LIGHTPIPE_GCS_ENDPOINT", "file://"+root)
	t.Setenv("LIGHTPIPE_CONFIG", "")
	return gcs.NewLocalStore(root)
}

// tileServer serves the same gray PNG for every tile request and reports
// every monthly mosaic as published.
func tileServer(t *testing.T) *httptest.Server {
	t.Helper()
	tile := raster.New(256, 256, 1)
	for i := range tile.Data[0] {
		tile.Data[0][i] = 90
	}
	png, err := raster.EncodeBytes(tile, raster.FormatPNG, raster.Uint8)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/basemaps/v1/mosaics" {
			if user, _, ok := r.BasicAuth(); !ok || user != "PLAK" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprintf(w, `{"mosaics":[{"id":"m","name":%q}]}`, r.URL.Query().Get("name__is"))
			return
		}
		if r.URL.Query().Get("api_key") != "PLAK" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fastConfig writes a config file pointing Planet at srv with no rate limit
// to speak of.
func fastConfig(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lightpipe.yaml")
	body := "planet:\n  api_url: " + srv.URL + "\n  tiles_url: " + srv.URL + "\n  rate_limit: 1000\n  rate_burst: 100\n" +
		"imagery:\n  tile_padding: 0\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeTargets(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := `{"type":"Feature","properties":{"name":"farm"},"geometry":{"type":"Point","coordinates":[10.5,50.5]}}`
	if err := os.WriteFile(filepath.Join(dir, "farm.geojson"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestDlDirCmd(t *testing.T) {
	store := localBucket(t)
	if err := store.PutObject(t.Context(), "b", "data/x/a.txt", []byte("a"), ""); err != nil {
		t.Fatal(err)
	}
	if err := store.PutObject(t.Context(), "b", "data/b.txt", []byte("bb"), ""); err != nil {
		t.Fatal(err)
	}

	local := t.TempDir()
	out, err := execute(t, "dl-dir", "--bucket", "gs://b", "--remote-dir", "data", "--local-dir", local)
	if err != nil {
		t.Fatalf("dl-dir error = %v", err)
	}
	if !strings.Contains(out, "downloaded 2 objects") {
		t.Errorf("output = %q", out)
	}
	if data, err := os.ReadFile(filepath.Join(local, "x", "a.txt")); err != nil || string(data) != "a" {
		t.Errorf("x/a.txt = %q, %v", data, err)
	}
}

func TestGetImageryThenPrepareSamples(t *testing.T) {
	store := localBucket(t)
	srv := tileServer(t)
	cfgPath := fastConfig(t, srv)

	out, err := execute(t, "--config", cfgPath, "get-imagery",
		"--targets-dir", writeTargets(t),
		"--planet-api-key", "PLAK",
		"--path-prefix", "imagery",
		"--bucket", "b",
		"--start", "2021-01", "--end", "2021-02",
		"--zoom", "3")
	if err != nil {
		t.Fatalf("get-imagery error = %v", err)
	}
	if !strings.Contains(out, "wrote 2 frames for 1 targets") {
		t.Errorf("output = %q", out)
	}
	if _, err := store.GetObject(t.Context(), "b", imagery.FrameKey("imagery", "farm", "2021_02", 3)); err != nil {
		t.Fatalf("frame missing: %v", err)
	}

	outDir := t.TempDir()
	out, err = execute(t, "--config", cfgPath, "prepare-samples",
		"--manifest-path", "imagery/manifest.json",
		"--gcs-bucket", "b",
		"--gcs-project-name", "proj",
		"--src-base-dir", t.TempDir(),
		"--out-dir", outDir,
		"--tile-size", "128")
	if err != nil {
		t.Fatalf("prepare-samples error = %v", err)
	}
	if !strings.Contains(out, "4 tiles from 1 samples") {
		t.Errorf("output = %q", out)
	}
}

func TestTimelapseCmd(t *testing.T) {
	localBucket(t)
	srv := tileServer(t)
	cfgPath := fastConfig(t, srv)
	outDir := t.TempDir()

	preds := filepath.Join(t.TempDir(), "preds.csv")
	if err := os.WriteFile(preds, []byte("lat,lon,pred\n50.5,10.5,1\n51,11,0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "--config", cfgPath, "timelapse",
		"--preds-csv-path", preds, "--target-value", "1",
		"--planet-api-key", "PLAK",
		"--start", "2021-01", "--end", "2021-03",
		"--zooms", "2,3",
		"--duration", "250",
		"--make-gifs", "--save-images",
		"--out-dir", outDir)
	if err != nil {
		t.Fatalf("timelapse error = %v", err)
	}
	if !strings.Contains(out, "6 frames, 6 images, 2 gifs") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(outDir, "pred_1", "z3.gif")); err != nil {
		t.Errorf("gif missing: %v", err)
	}
}

func TestTimelapseCmd_FlagErrors(t *testing.T) {
	localBucket(t)
	dir := writeTargets(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no source", []string{"timelapse", "--make-gifs"}},
		{"both sources", []string{"timelapse", "--make-gifs", "--targets-dir", dir, "--preds-csv-path", "p.csv"}},
		{"no output", []string{"timelapse", "--targets-dir", dir}},
		{"target value without csv", []string{"timelapse", "--make-gifs", "--targets-dir", dir, "--target-value", "1"}},
		{"bad date", []string{"timelapse", "--save-images", "--targets-dir", dir, "--start", "March"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("expected error for %v", tt.args)
			}
		})
	}
}

func TestZoomFlagsOutOfRange(t *testing.T) {
	localBucket(t)
	dir := writeTargets(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"get-imagery", []string{"get-imagery", "--targets-dir", dir, "--bucket", "b", "--zoom", "40"}, "--zoom: zoom 40 out of range"},
		{"timelapse", []string{"timelapse", "--save-images", "--targets-dir", dir, "--zooms=3,-1"}, "--zooms: zoom -1 out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestGetImagery_UnpublishedMonth(t *testing.T) {
	localBucket(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name__is") == "global_monthly_2021_01_mosaic" {
			fmt.Fprint(w, `{"mosaics":[{"id":"m","name":"global_monthly_2021_01_mosaic"}]}`)
			return
		}
		fmt.Fprint(w, `{"mosaics":[]}`)
	}))
	t.Cleanup(srv.Close)

	_, err := execute(t, "--config", fastConfig(t, srv), "get-imagery",
		"--targets-dir", writeTargets(t),
		"--planet-api-key", "PLAK",
		"--bucket", "b",
		"--start", "2021-01", "--end", "2021-06")
	if err == nil || !strings.Contains(err.Error(), "global_monthly_2021_06_mosaic") {
		t.Errorf("error = %v, want missing 2021_06 mosaic", err)
	}
}

func TestRequiredFlags(t *testing.T) {
	localBucket(t)
	for _, args := range [][]string{
		{"get-imagery", "--bucket", "b"},
		{"prepare-samples", "--gcs-bucket", "b", "--src-base-dir", "x"},
		{"dl-dir"},
	} {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("expected missing flag error for %v", args)
		}
	}
}
