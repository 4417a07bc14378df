package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sqltranslator/sqltranslator/internal/config"
	"github.com/sqltranslator/sqltranslator/internal/storage"
)

func TestPutJoinsPrefixAndKey(t *testing.T) {
	api := newFakeBucket()
	store, err := newStore("archives", "/sqltranslator/prod/", api)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	_, err = store.Put(context.Background(), "/history/date=2026-03-01/entries-1-9.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{ContentType: storage.ParquetContentType})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := api.objects["archives/sqltranslator/prod/history/date=2026-03-01/entries-1-9.parquet"]; !ok {
		t.Fatalf("objects = %v", api.keys())
	}
	if api.lastContentType != storage.ParquetContentType {
		t.Fatalf("content type = %q", api.lastContentType)
	}
}

func TestStoreRejectsPathTraversal(t *testing.T) {
	store, err := newStore("archives", "", newFakeBucket())
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if _, err := store.Put(context.Background(), "../secrets.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
		t.Fatal("expected path traversal validation error")
	}
	if _, err := store.Get(context.Background(), "history/../../x"); err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	store, _ := newStore("archives", "p", newFakeBucket())
	_, err := store.Get(context.Background(), "history/missing.parquet")
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
}

func TestGetReturnsStoredBytes(t *testing.T) {
	api := newFakeBucket()
	store, _ := newStore("archives", "", api)
	if _, err := store.Put(context.Background(), "a.parquet", strings.NewReader("payload"), 7, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	reader, err := store.Get(context.Background(), "a.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = reader.Close() }()
	body, _ := io.ReadAll(reader)
	if string(body) != "payload" {
		t.Fatalf("body = %q", body)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	api := newFakeBucket()
	store, _ := newStore("archives", "", api)

	if err := store.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck() should fail for a missing bucket")
	}
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if api.createdRegion != "us-east-1" {
		t.Fatalf("created region = %q", api.createdRegion)
	}
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	api := newFakeBucket()
	api.deleteErr = storage.ErrObjectNotFound
	store, _ := newStore("archives", "", api)
	if err := store.Delete(context.Background(), "missing/file.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	api.deleteErr = errors.New("access denied")
	if err := store.Delete(context.Background(), "file.parquet"); err == nil || !strings.Contains(err.Error(), "s3://archives/file.parquet") {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{"https://minio.example.com", false, "minio.example.com", true, false},
		{"http://localhost:9000", true, "localhost:9000", true, false},
		{"localhost:9000", false, "localhost:9000", false, false},
		{"ftp://x", false, "", false, true},
		{"", false, "", false, true},
	}
	for _, tt := range tests {
		host, secure, err := parseEndpoint(tt.raw, tt.useSSL)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseEndpoint(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil || host != tt.wantHost || secure != tt.wantSecure {
			t.Fatalf("parseEndpoint(%q) = %q/%v/%v", tt.raw, host, secure, err)
		}
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.ObjectStoreConfig{Endpoint: "localhost:9000", Bucket: "b", Prefix: "p", UseSSL: true})
	if cfg.Endpoint != "localhost:9000" || cfg.Bucket != "b" || cfg.Prefix != "p" || !cfg.UseSSL {
		t.Fatalf("ConfigFrom() = %+v", cfg)
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{Bucket: "b"}); err == nil {
		t.Fatal("expected endpoint error")
	}
	if _, err := newStore("", "", newFakeBucket()); err == nil {
		t.Fatal("expected bucket error")
	}
}

type fakeBucket struct {
	objects         map[string][]byte
	buckets         map[string]bool
	lastContentType string
	createdRegion   string
	deleteErr       error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, buckets: map[string]bool{}}
}

func (f *fakeBucket) keys() []string {
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	return keys
}

func (f *fakeBucket) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.objects[bucket+"/"+key] = data
	f.lastContentType = contentType
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeBucket) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBucket) Stat(_ context.Context, bucket, key string) (storage.ObjectInfo, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeBucket) Delete(_ context.Context, bucket, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeBucket) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeBucket) CreateBucket(_ context.Context, bucket, region string) error {
	f.buckets[bucket] = true
	f.createdRegion = region
	return nil
}
