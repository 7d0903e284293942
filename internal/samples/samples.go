// Package samples implements prepare-samples: datasets listed in a sample
// manifest are downloaded, tiled and written as parquet shards.
package samples

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nucleus/lightpipe/internal/connector/gcs"
	"github.com/nucleus/lightpipe/internal/ids"
	"github.com/nucleus/lightpipe/internal/logging"
	"github.com/nucleus/lightpipe/internal/manifest"
	"github.com/nucleus/lightpipe/pkg/raster"
	"github.com/nucleus/lightpipe/pkg/sample"
)

// ErrNoLabels means a training run was asked for a sample without label data.
var ErrNoLabels = errors.New("samples: training sample has no label datasets")

// RunMetaName is the run description written at the root of a run directory.
const RunMetaName = "run.json"

// Options configure one prepare-samples invocation.
type Options struct {
	// ManifestPath is a local file, or an object key (optionally gs://bucket/key)
	// in Bucket.
	ManifestPath string
	// ID selects one sample uid; empty means all.
	ID         string
	Bucket     string
	Project    string
	SrcBaseDir string
	OutDir     string
	Train      bool

	TileSize    int
	PosOnly     bool
	NonNullOnly bool
	RowMajor    bool
	Seed        int64
	ShardSize   int

	// UploadPrefix is the bucket prefix of uploaded runs (default "samples").
	// Upload is skipped when NoUpload is set.
	UploadPrefix string
	NoUpload     bool
	// RunID names the run; empty generates one.
	RunID string
}

// SampleResult describes one prepared sample.
type SampleResult struct {
	UID    string   `json:"uid"`
	Tiles  int      `json:"tiles"`
	Total  int      `json:"total_tiles"`
	Shards []string `json:"shards"`
}

// Result summarizes a run.
type Result struct {
	RunID     string         `json:"run_id"`
	Project   string         `json:"project,omitempty"`
	Bucket    string         `json:"bucket"`
	Manifest  string         `json:"manifest"`
	Train     bool           `json:"train"`
	CreatedAt time.Time      `json:"created_at"`
	Samples   []SampleResult `json:"samples"`

	LocalDir  string `json:"-"`
	RemoteDir string `json:"remote_dir,omitempty"`
}

// Preparer runs prepare-samples against an object store.
type Preparer struct {
	Store gcs.ObjectStore
	// Workers bounds concurrent downloads (default 8).
	Workers int
	Logger  *zap.Logger
}

// Run prepares every selected sample.
func (p *Preparer) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if opts.SrcBaseDir == "" {
		return nil, fmt.Errorf("source base dir is required")
	}
	if opts.OutDir == "" {
		opts.OutDir = "samples"
	}
	if opts.UploadPrefix == "" {
		opts.UploadPrefix = "samples"
	}
	if opts.RunID == "" {
		opts.RunID = ids.NewRunID()
	}
	log := logging.OrNop(p.Logger).Named("samples")

	doc, err := p.loadManifest(ctx, opts)
	if err != nil {
		return nil, err
	}
	selected, err := doc.Select(opts.ID)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("manifest %s lists no samples", opts.ManifestPath)
	}

	runDir := filepath.Join(opts.OutDir, opts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}
	result := &Result{
		RunID:     opts.RunID,
		Project:   opts.Project,
		Bucket:    opts.Bucket,
		Manifest:  opts.ManifestPath,
		Train:     opts.Train,
		CreatedAt: time.Now().UTC(),
		LocalDir:  runDir,
	}
	log.Info("preparing samples",
		zap.String("run_id", opts.RunID),
		zap.Int("samples", len(selected)),
		zap.Bool("train", opts.Train))

	for _, s := range selected {
		res, err := p.prepare(ctx, s, runDir, opts)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", s.UID, err)
		}
		result.Samples = append(result.Samples, *res)
		log.Info("sample prepared",
			zap.String("uid", res.UID),
			zap.Int("tiles", res.Tiles),
			zap.Int("shards", len(res.Shards)))
	}

	if !opts.NoUpload {
		result.RemoteDir = gcs.JoinKey(opts.UploadPrefix, opts.RunID)
	}
	if err := writeJSON(filepath.Join(runDir, RunMetaName), result); err != nil {
		return nil, err
	}
	if result.RemoteDir != "" {
		tr := &gcs.Transfer{Store: p.Store, Bucket: opts.Bucket, Workers: p.Workers, Logger: p.Logger}
		if _, err := tr.UploadDir(ctx, runDir, result.RemoteDir); err != nil {
			return nil, fmt.Errorf("upload run: %w", err)
		}
	}
	return result, nil
}

func (p *Preparer) loadManifest(ctx context.Context, opts Options) (*manifest.Document, error) {
	if opts.ManifestPath == "" {
		return nil, fmt.Errorf("manifest path is required")
	}
	if fi, err := os.Stat(opts.ManifestPath); err == nil && fi.Mode().IsRegular() {
		data, err := os.ReadFile(opts.ManifestPath)
		if err != nil {
			return nil, err
		}
		return manifest.Parse(data)
	}
	key := strings.TrimPrefix(opts.ManifestPath, "gs://"+opts.Bucket+"/")
	data, err := p.Store.GetObject(ctx, opts.Bucket, strings.TrimPrefix(key, "/"))
	if err != nil {
		return nil, fmt.Errorf("read manifest gs://%s/%s: %w", opts.Bucket, key, err)
	}
	return manifest.Parse(data)
}

func (p *Preparer) prepare(ctx context.Context, s manifest.Sample, runDir string, opts Options) (*SampleResult, error) {
	if opts.Train && !s.HasLabels() {
		return nil, ErrNoLabels
	}
	paths, err := p.download(ctx, s, opts)
	if err != nil {
		return nil, err
	}

	datasets := make([]sample.Dataset, len(paths))
	labels := make([]bool, len(paths))
	metadata := make([]map[string]any, len(paths))
	for i, ds := range s.Datasets {
		datasets[i] = sample.FromPath(paths[i])
		labels[i] = ds.Label
		metadata[i] = ds.Metadata
	}
	m, err := sample.NewManifest(s.UID, datasets, labels, metadata)
	if err != nil {
		return nil, err
	}
	smp := sample.New(m, sample.Options{
		TileY:       opts.TileSize,
		TileX:       opts.TileSize,
		PosOnly:     opts.Train && opts.PosOnly,
		NonNullOnly: opts.NonNullOnly,
		RowMajor:    opts.RowMajor,
		Seed:        opts.Seed,
	})
	tileY, tileX := smp.TileSize()

	outDir := filepath.Join(runDir, s.UID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	shards := newShardWriter(outDir, opts.ShardSize)
	emit := func(t sample.Tile) error { return shards.Write(s.UID, t, tileY, tileX) }
	if opts.Train {
		err = smp.Shuffle(ctx, sample.TileOptions{}, emit)
	} else {
		err = smp.Tiles(ctx, sample.TileOptions{}, emit)
	}
	if cerr := shards.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	index := &TileIndex{
		SampleID:       s.UID,
		TileY:          tileY,
		TileX:          tileX,
		RowMajor:       opts.RowMajor,
		Shuffled:       opts.Train,
		BandMap:        smp.BandMap,
		TileCoords:     smp.TileCoords,
		ShuffleIndices: smp.ShuffleIndices,
		TilesWritten:   shards.total,
		Datasets:       paths,
	}
	if err := writeJSON(filepath.Join(outDir, IndexName), index); err != nil {
		return nil, err
	}

	res := &SampleResult{UID: s.UID, Tiles: shards.total, Total: len(smp.TileCoords)}
	for _, f := range shards.files {
		rel, err := filepath.Rel(runDir, f)
		if err != nil {
			return nil, err
		}
		res.Shards = append(res.Shards, filepath.ToSlash(rel))
	}
	return res, nil
}

// download fetches every dataset of s and its world file into SrcBaseDir,
// keeping files that are already present.
func (p *Preparer) download(ctx context.Context, s manifest.Sample, opts Options) ([]string, error) {
	tr := &gcs.Transfer{Store: p.Store, Bucket: opts.Bucket, Workers: p.Workers, Logger: p.Logger, SkipExisting: true}
	paths := make([]string, len(s.Datasets))
	for i, ds := range s.Datasets {
		dest, err := gcs.LocalPath(opts.SrcBaseDir, ds.Key)
		if err != nil {
			return nil, err
		}
		paths[i] = dest
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 8
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ds := range s.Datasets {
		dest := paths[i]
		g.Go(func() error {
			if _, _, err := tr.DownloadFile(gctx, ds.Key, dest); err != nil {
				return err
			}
			world := raster.WorldFilePath(ds.Key)
			if _, _, err := tr.DownloadFile(gctx, world, raster.WorldFilePath(dest)); err != nil && !gcs.IsNotFound(err) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
