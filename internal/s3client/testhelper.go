package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// FakeEndpoint serves an in-memory S3 API for the life of the test and
// returns its URL. The named buckets exist before the first request.
func FakeEndpoint(t testing.TB, buckets ...string) string {
	t.Helper()
	backend := s3mem.New()
	for _, b := range buckets {
		if err := backend.CreateBucket(b); err != nil {
			t.Fatalf("create bucket %q: %v", b, err)
		}
	}
	ts := httptest.NewServer(gofakes3.New(backend).Server())
	t.Cleanup(ts.Close)
	return ts.URL
}

// TestClient returns a Client bound to bucketName on a fresh FakeEndpoint.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{
		Endpoint:        FakeEndpoint(t, bucketName),
		Region:          "us-east-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		BucketName:      bucketName,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("s3client.New: %v", err)
	}
	return c
}
