package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ObjectStore abstracts the bucket operations the pipeline needs.
type ObjectStore interface {
	Ping(ctx context.Context) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListPrefix(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	FPutObject(ctx context.Context, bucket, key, localPath string) (int64, error)
	FGetObject(ctx context.Context, bucket, key, localPath string) (int64, error)
}

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Open returns a LocalStore for file:// endpoints and an S3Client otherwise.
func Open(cfg *Config) (ObjectStore, error) {
	if cfg == nil {
		return nil, wrapError(CodeEndpointUnreachable, false, fmt.Errorf("config is required"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.isLocal() {
		return NewLocalStore(cfg.objectRoot()), nil
	}
	return NewS3Client(cfg)
}

// LocalStore persists objects on disk, one directory per bucket.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new local object store rooted at dir.
func NewLocalStore(root string) *LocalStore {
	if root == "" {
		root = filepath.Join(os.TempDir(), "lightpipe-objects")
	}
	_ = os.MkdirAll(root, 0o755)
	return &LocalStore{root: root}
}

func (s *LocalStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(s.root, 0o755)
}

func (s *LocalStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.bucketPath(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (s *LocalStore) PutObject(ctx context.Context, bucket, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return wrapError(CodePermissionDenied, false, err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return wrapError(CodeWriteFailed, true, err)
	}
	return nil
}

func (s *LocalStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapError(CodeObjectNotFound, false, err)
		}
		return nil, wrapError(CodeWriteFailed, true, err)
	}
	return data, nil
}

func (s *LocalStore) ListPrefix(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, os.ErrNotExist)
	}
	base := s.bucketPath(bucket)
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil, wrapError(CodeBucketNotFound, false, err)
	}

	var objects []ObjectInfo
	err := filepath.WalkDir(base, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		objects = append(objects, ObjectInfo{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, wrapError(CodeWriteFailed, true, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *LocalStore) FPutObject(ctx context.Context, bucket, key, localPath string) (int64, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return 0, wrapError(CodeWriteFailed, false, err)
	}
	if err := s.PutObject(ctx, bucket, key, data, ""); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (s *LocalStore) FGetObject(ctx context.Context, bucket, key, localPath string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return 0, err
	}
	src, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, wrapError(CodeObjectNotFound, false, err)
		}
		return 0, wrapError(CodeWriteFailed, true, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, wrapError(CodePermissionDenied, false, err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return 0, wrapError(CodePermissionDenied, false, err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, wrapError(CodeWriteFailed, true, err)
	}
	return n, nil
}

func (s *LocalStore) bucketPath(bucket string) string {
	return filepath.Join(s.root, sanitizePath(bucket))
}

func (s *LocalStore) objectPath(bucket, key string) (string, error) {
	if bucket == "" {
		return "", wrapError(CodeBucketNotFound, false, os.ErrNotExist)
	}
	if key == "" {
		return "", wrapError(CodeInvalidKey, false, fmt.Errorf("object key is required"))
	}
	base := s.bucketPath(bucket)
	full := filepath.Join(base, filepath.FromSlash(key))
	if !strings.HasPrefix(full, base+string(os.PathSeparator)) {
		return "", wrapError(CodeInvalidKey, false, fmt.Errorf("key %q escapes bucket", key))
	}
	return full, nil
}

// JoinKey joins object key segments with "/" and drops empty parts.
func JoinKey(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
