package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/config"
	"gitlab.com/timkado/api/post-loader-service/internal/adapters/logger"
)

// fakeBucket is a minimal path-style S3 endpoint for a single bucket.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]string
	puts    []*http.Request
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/avatars-bucket/")

	switch r.Method {
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, body)
	case http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		f.puts = append(f.puts, r)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestAdapter(t *testing.T, bucket *fakeBucket) *ImageStoreAdapter {
	t.Helper()
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	cfg := &config.Config{S3: config.S3Config{
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		Bucket:    "avatars-bucket",
		AccessKey: "test",
		SecretKey: "test",
	}}
	client, err := NewClient(context.Background(), config.StaticProvider{Config: cfg})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewImageStoreAdapter(cfg.S3.Bucket, client, logger.NewFromZap(zap.NewNop()))
}

func TestImageStoreAdapterRetrieve(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]string{"avatars/1": "PNGDATA"}}
	a := newTestAdapter(t, bucket)

	data, err := a.RetrieveImageData(context.Background(), 1)
	if err != nil || string(data) != "PNGDATA" {
		t.Fatalf("RetrieveImageData = (%q, %v)", data, err)
	}

	data, err = a.RetrieveImageData(context.Background(), 2)
	if err != nil || data != nil {
		t.Fatalf("RetrieveImageData for missing key = (%q, %v), want (nil, nil)", data, err)
	}
}

func TestImageStoreAdapterInsertSendsMetadata(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]string{}}
	a := newTestAdapter(t, bucket)

	if err := a.InsertImageData(context.Background(), []byte("PNG"), 5, "https://example.com/5.png"); err != nil {
		t.Fatalf("InsertImageData: %v", err)
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	if len(bucket.puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(bucket.puts))
	}
	put := bucket.puts[0]
	if put.URL.Path != "/avatars-bucket/avatars/5" {
		t.Fatalf("put path = %s", put.URL.Path)
	}
	if got := put.Header.Get("X-Amz-Meta-Source_url"); got != "https://example.com/5.png" {
		t.Fatalf("source_url metadata = %q", got)
	}
}
