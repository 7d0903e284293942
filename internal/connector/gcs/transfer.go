package gcs

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nucleus/lightpipe/internal/ids"
)

const defaultWorkers = 8

// TransferResult summarizes a directory transfer.
type TransferResult struct {
	Objects int
	Skipped int
	Bytes   int64
}

// Transfer moves whole directories between a bucket and the local disk.
type Transfer struct {
	Store   ObjectStore
	Bucket  string
	Workers int
	Logger  *zap.Logger

	// SkipExisting leaves local files alone: DownloadDir when their size
	// matches the object, DownloadFile whenever the file exists.
	SkipExisting bool
}

func (t *Transfer) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}

func (t *Transfer) workers() int {
	if t.Workers <= 0 {
		return defaultWorkers
	}
	return t.Workers
}

// DownloadDir copies every object under remoteDir into localDir, keeping the
// relative key layout. Keys ending in "/" are directory placeholders and are
// skipped.
func (t *Transfer) DownloadDir(ctx context.Context, remoteDir, localDir string) (*TransferResult, error) {
	if t.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	prefix := strings.Trim(remoteDir, "/")
	if prefix != "" {
		prefix += "/"
	}
	objects, err := t.Store.ListPrefix(ctx, t.Bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list gs://%s/%s: %w", t.Bucket, prefix, err)
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", localDir, err)
	}

	log := t.logger().Named("gcs")
	log.Info("downloading directory",
		zap.String("bucket", t.Bucket),
		zap.String("prefix", prefix),
		zap.Int("objects", len(objects)))

	var (
		result  TransferResult
		count   atomic.Int64
		skipped atomic.Int64
		bytes   atomic.Int64
	)

	type job struct{ key, dest string }
	jobs := make([]job, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		rel := strings.TrimPrefix(obj.Key, prefix)
		dest, err := LocalPath(localDir, rel)
		if err != nil {
			return nil, err
		}
		if t.SkipExisting {
			if info, statErr := os.Stat(dest); statErr == nil && info.Size() == obj.Size {
				skipped.Add(1)
				continue
			}
		}
		jobs = append(jobs, job{key: obj.Key, dest: dest})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers())
	for _, j := range jobs {
		g.Go(func() error {
			n, err := t.downloadFile(gctx, j.key, j.dest)
			if err != nil {
				return fmt.Errorf("download %s: %w", j.key, err)
			}
			count.Add(1)
			bytes.Add(n)
			log.Debug("downloaded object", zap.String("key", j.key), zap.Int64("bytes", n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Objects = int(count.Load())
	result.Skipped = int(skipped.Load())
	result.Bytes = bytes.Load()
	log.Info("download complete",
		zap.Int("objects", result.Objects),
		zap.Int("skipped", result.Skipped),
		zap.Int64("bytes", result.Bytes))
	return &result, nil
}

// downloadFile writes to a hidden temporary sibling and renames it into place so
// an interrupted run never leaves a truncated file under the final name.
func (t *Transfer) downloadFile(ctx context.Context, key, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+"."+ids.MustRandomString(8))
	n, err := t.Store.FGetObject(ctx, t.Bucket, key, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

// DownloadFile copies one object to dest. With SkipExisting, an existing local
// file is kept and reported as skipped.
func (t *Transfer) DownloadFile(ctx context.Context, key, dest string) (n int64, skipped bool, err error) {
	if t.Store == nil {
		return 0, false, fmt.Errorf("object store is required")
	}
	if t.SkipExisting {
		if fi, statErr := os.Stat(dest); statErr == nil && fi.Mode().IsRegular() {
			return fi.Size(), true, nil
		}
	}
	n, err = t.downloadFile(ctx, key, dest)
	if err != nil {
		return 0, false, fmt.Errorf("download %s: %w", key, err)
	}
	t.logger().Named("gcs").Debug("downloaded object", zap.String("key", key), zap.Int64("bytes", n))
	return n, false, nil
}

// UploadFile copies one local file to key.
func (t *Transfer) UploadFile(ctx context.Context, localPath, key string) (int64, error) {
	if t.Store == nil {
		return 0, fmt.Errorf("object store is required")
	}
	n, err := t.Store.FPutObject(ctx, t.Bucket, key, localPath)
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}
	return n, nil
}

// UploadDir copies every regular file under localDir to remoteDir.
func (t *Transfer) UploadDir(ctx context.Context, localDir, remoteDir string) (*TransferResult, error) {
	if t.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	var files []string
	err := filepath.WalkDir(localDir, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", localDir, err)
	}

	log := t.logger().Named("gcs")
	var (
		count atomic.Int64
		bytes atomic.Int64
	)
	keys := make([]string, len(files))
	for i, file := range files {
		rel, err := filepath.Rel(localDir, file)
		if err != nil {
			return nil, err
		}
		keys[i] = JoinKey(remoteDir, filepath.ToSlash(rel))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers())
	for i, src := range files {
		key := keys[i]
		g.Go(func() error {
			n, err := t.Store.FPutObject(gctx, t.Bucket, key, src)
			if err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}
			count.Add(1)
			bytes.Add(n)
			log.Debug("uploaded object", zap.String("key", key), zap.Int64("bytes", n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("upload complete",
		zap.String("bucket", t.Bucket),
		zap.String("prefix", remoteDir),
		zap.Int64("objects", count.Load()),
		zap.Int64("bytes", bytes.Load()))
	return &TransferResult{Objects: int(count.Load()), Bytes: bytes.Load()}, nil
}

// LocalPath maps a slash-separated relative key onto dir, refusing keys that
// would resolve outside of it.
func LocalPath(dir, rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", wrapError(CodeInvalidKey, false, fmt.Errorf("empty relative key %q", rel))
	}
	if strings.Contains(rel, "..") && path.Clean(rel) != strings.TrimPrefix(clean, "/") {
		return "", wrapError(CodeInvalidKey, false, fmt.Errorf("key %q escapes %s", rel, dir))
	}
	return filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
