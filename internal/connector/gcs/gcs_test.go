package gcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// =============================================================================
// CONFIG
// =============================================================================

func TestParseConfig_Defaults(t *testing.T) {
	t.Setenv(envEndpoint, "")
	cfg := ParseConfig(map[string]any{
		"access_key_id":     "GOOG1EXAMPLE",
		"secret_access_key": "secret",
		"bucket":            "gs://imagery",
	})
	if cfg.EndpointURL != DefaultEndpoint {
		t.Errorf("EndpointURL = %q, want %q", cfg.EndpointURL, DefaultEndpoint)
	}
	if cfg.Bucket != "imagery" {
		t.Errorf("Bucket = %q, want imagery", cfg.Bucket)
	}
	if cfg.Region != defaultRegion {
		t.Errorf("Region = %q", cfg.Region)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name     string
		path     string
		wantCode string
		wantKey  string
	}{
		{
			name:    "json hmac",
			path:    write("hmac.json", `{"access_key_id":"AK","secret_access_key":"SK","project_id":"proj"}`),
			wantKey: "AK",
		},
		{
			name:    "yaml hmac",
			path:    write("hmac.yaml", "accessKeyId: AY\nsecretAccessKey: SY\n"),
			wantKey: "AY",
		},
		{
			name:     "service account",
			path:     write("sa.json", `{"type":"service_account","private_key":"x"}`),
			wantCode: CodeAuthInvalid,
		},
		{
			name:     "missing secret",
			path:     write("partial.json", `{"access_key_id":"AK"}`),
			wantCode: CodeAuthInvalid,
		},
		{
			name:     "missing file",
			path:     filepath.Join(dir, "nope.json"),
			wantCode: CodeAuthInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadCredentials(tt.path)
			if tt.wantCode != "" {
				if CodeOf(err) != tt.wantCode {
					t.Fatalf("LoadCredentials() error = %v, want code %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadCredentials() error = %v", err)
			}
			if cfg.AccessKeyID != tt.wantKey {
				t.Errorf("AccessKeyID = %q, want %q", cfg.AccessKeyID, tt.wantKey)
			}
		})
	}
}

func TestLoadCredentials_Env(t *testing.T) {
	t.Setenv(envAccessKey, "ENVKEY")
	t.Setenv(envSecretKey, "ENVSECRET")
	cfg, err := LoadCredentials("")
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if cfg.AccessKeyID != "ENVKEY" || cfg.SecretAccessKey != "ENVSECRET" {
		t.Errorf("unexpected credentials %+v", cfg)
	}

	t.Setenv(envSecretKey, "")
	if _, err := LoadCredentials(""); CodeOf(err) != CodeAuthInvalid {
		t.Errorf("expected %s, got %v", CodeAuthInvalid, err)
	}
}

func TestOpen_LocalEndpoint(t *testing.T) {
	root := t.TempDir()
	store, err := Open(&Config{EndpointURL: "file://" + root})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, ok := store.(*LocalStore); !ok {
		t.Errorf("Open() returned %T, want *LocalStore", store)
	}
}

// =============================================================================
// LOCAL STORE
// =============================================================================

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	if err := store.PutObject(ctx, "bucket", "a/b/c.txt", []byte("hello"), "text/plain"); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	got, err := store.GetObject(ctx, "bucket", "a/b/c.txt")
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("GetObject() = %q", got)
	}

	_, err = store.GetObject(ctx, "bucket", "missing")
	if !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	if err := store.PutObject(ctx, "bucket", "../escape", []byte("x"), ""); CodeOf(err) != CodeInvalidKey {
		t.Errorf("expected %s for escaping key, got %v", CodeInvalidKey, err)
	}

	exists, err := store.BucketExists(ctx, "bucket")
	if err != nil || !exists {
		t.Errorf("BucketExists() = %v, %v", exists, err)
	}
}

func TestLocalStore_ListPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	for _, key := range []string{"imgs/t1/2021_01/z15.png", "imgs/t1/2021_02/z15.png", "other/x.txt"} {
		if err := store.PutObject(ctx, "b", key, []byte(key), ""); err != nil {
			t.Fatalf("PutObject(%s) error = %v", key, err)
		}
	}

	objects, err := store.ListPrefix(ctx, "b", "imgs/")
	if err != nil {
		t.Fatalf("ListPrefix() error = %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("ListPrefix() returned %d objects, want 2", len(objects))
	}
	if objects[0].Key != "imgs/t1/2021_01/z15.png" {
		t.Errorf("objects not sorted: %v", objects)
	}

	if _, err := store.ListPrefix(ctx, "nobucket", ""); CodeOf(err) != CodeBucketNotFound {
		t.Errorf("expected %s, got %v", CodeBucketNotFound, err)
	}
}

// =============================================================================
// TRANSFERS
// =============================================================================

func TestTransfer_DownloadDir(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	objects := map[string]string{
		"runs/r1/a.txt":       "alpha",
		"runs/r1/deep/b.txt":  "bravo",
		"runs/r10/ignored":    "not under r1/",
		"runs/r1/deep/c.json": "{}",
	}
	for key, body := range objects {
		if err := store.PutObject(ctx, "bkt", key, []byte(body), ""); err != nil {
			t.Fatalf("PutObject(%s) error = %v", key, err)
		}
	}

	local := t.TempDir()
	tr := &Transfer{Store: store, Bucket: "bkt", Workers: 2}
	res, err := tr.DownloadDir(ctx, "/runs/r1/", local)
	if err != nil {
		t.Fatalf("DownloadDir() error = %v", err)
	}
	if res.Objects != 3 {
		t.Errorf("Objects = %d, want 3", res.Objects)
	}
	if res.Bytes != int64(len("alpha")+len("bravo")+len("{}")) {
		t.Errorf("Bytes = %d", res.Bytes)
	}

	data, err := os.ReadFile(filepath.Join(local, "deep", "b.txt"))
	if err != nil || string(data) != "bravo" {
		t.Errorf("deep/b.txt = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(local, "ignored")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("object outside the directory was downloaded")
	}

	tr.SkipExisting = true
	res, err = tr.DownloadDir(ctx, "runs/r1", local)
	if err != nil {
		t.Fatalf("second DownloadDir() error = %v", err)
	}
	if res.Skipped != 3 || res.Objects != 0 {
		t.Errorf("second run = %+v, want all skipped", res)
	}
}

// listingStore serves a fixed listing and counts downloads.
type listingStore struct {
	*LocalStore
	keys      []string
	downloads atomic.Int32
}

func (s *listingStore) ListPrefix(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	out := make([]ObjectInfo, len(s.keys))
	for i, k := range s.keys {
		out[i] = ObjectInfo{Key: k, Size: 2}
	}
	return out, nil
}

func (s *listingStore) FGetObject(ctx context.Context, bucket, key, localPath string) (int64, error) {
	s.downloads.Add(1)
	return s.LocalStore.FGetObject(ctx, bucket, key, localPath)
}

func TestTransfer_DownloadDir_EscapingKey(t *testing.T) {
	ctx := context.Background()
	base := NewLocalStore(t.TempDir())
	if err := base.PutObject(ctx, "bkt", "data/ok.txt", []byte("ok"), ""); err != nil {
		t.Fatal(err)
	}
	store := &listingStore{LocalStore: base, keys: []string{"data/ok.txt", "data/../../evil.txt"}}

	local := t.TempDir()
	tr := &Transfer{Store: store, Bucket: "bkt", Workers: 1}
	_, err := tr.DownloadDir(ctx, "data", local)
	if CodeOf(err) != CodeInvalidKey {
		t.Fatalf("DownloadDir() error = %v, want %s", err, CodeInvalidKey)
	}
	if n := store.downloads.Load(); n != 0 {
		t.Errorf("downloads started = %d, want 0", n)
	}
	if _, err := os.Stat(filepath.Join(local, "ok.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ok.txt written despite the rejected listing")
	}
}

func TestTransfer_UploadDir(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	local := t.TempDir()
	if err := os.MkdirAll(filepath.Join(local, "s1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(local, "s1", "part-000000.parquet"), []byte("pq"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := &Transfer{Store: store, Bucket: "out"}
	res, err := tr.UploadDir(ctx, local, "samples/run-1")
	if err != nil {
		t.Fatalf("UploadDir() error = %v", err)
	}
	if res.Objects != 1 {
		t.Errorf("Objects = %d", res.Objects)
	}
	data, err := store.GetObject(ctx, "out", "samples/run-1/s1/part-000000.parquet")
	if err != nil || string(data) != "pq" {
		t.Errorf("uploaded object = %q, %v", data, err)
	}
}

func TestTransfer_SingleFiles(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	local := t.TempDir()
	src := filepath.Join(local, "frame.png")
	if err := os.WriteFile(src, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := &Transfer{Store: store, Bucket: "b", SkipExisting: true}
	if n, err := tr.UploadFile(ctx, src, "imagery/t1/frame.png"); err != nil || n != 3 {
		t.Fatalf("UploadFile() = %d, %v", n, err)
	}

	dest := filepath.Join(local, "copy", "frame.png")
	n, skipped, err := tr.DownloadFile(ctx, "imagery/t1/frame.png", dest)
	if err != nil || skipped || n != 3 {
		t.Fatalf("DownloadFile() = %d, %v, %v", n, skipped, err)
	}
	if _, skipped, err = tr.DownloadFile(ctx, "imagery/t1/frame.png", dest); err != nil || !skipped {
		t.Errorf("second DownloadFile() skipped = %v, err = %v", skipped, err)
	}
	if _, _, err := tr.DownloadFile(ctx, "imagery/none.png", filepath.Join(local, "none.png")); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		rel     string
		want    string
		wantErr bool
	}{
		{rel: "a/b.png", want: filepath.Join("root", "a", "b.png")},
		{rel: "a/../b.png", want: filepath.Join("root", "b.png")},
		{rel: "../b.png", wantErr: true},
		{rel: "a/../../b.png", wantErr: true},
		{rel: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := LocalPath("root", tt.rel)
		if (err != nil) != tt.wantErr {
			t.Errorf("LocalPath(%q) error = %v, wantErr %v", tt.rel, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("LocalPath(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}

func TestJoinKey(t *testing.T) {
	if got := JoinKey("/prefix/", "", "t1", "z15.png"); got != "prefix/t1/z15.png" {
		t.Errorf("JoinKey() = %q", got)
	}
}

// =============================================================================
// INTEGRATION
// =============================================================================

func TestS3Client_Integration_Ping(t *testing.T) {
	bucket := os.Getenv("LIGHTPIPE_GCS_BUCKET")
	if bucket == "" {
		t.Skip("LIGHTPIPE_GCS_BUCKET not set")
	}
	cfg, err := LoadCredentials(os.Getenv("LIGHTPIPE_GCS_CREDS"))
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	cfg.Bucket = bucket
	client, err := NewS3Client(cfg)
	if err != nil {
		t.Fatalf("NewS3Client() error = %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
