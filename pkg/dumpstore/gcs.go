package dumpstore

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/planport/pkg/errors"
)

// GCSStore writes objects to a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	// newWriter opens an object writer; replaced in tests
	newWriter func(ctx context.Context, bucket, key string) io.WriteCloser
}

// NewGCSStore creates a Cloud Storage client. An empty credentialsFile uses
// application default credentials.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}

	s := &GCSStore{client: client, bucket: bucket}
	s.newWriter = func(ctx context.Context, bucket, key string) io.WriteCloser {
		w := client.Bucket(bucket).Object(key).NewWriter(ctx)
		w.ContentType = "text/csv"
		return w
	}
	return s, nil
}

// Put writes data to bucket/key.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	w := s.newWriter(ctx, s.bucket, key)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to write failure dump to GCS").
			WithDetail("bucket", s.bucket).
			WithDetail("key", key)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to finalize failure dump in GCS").
			WithDetail("bucket", s.bucket).
			WithDetail("key", key)
	}
	return "gs://" + s.bucket + "/" + key, nil
}

// Name returns "gcs".
func (s *GCSStore) Name() string { return "gcs" }

// Close closes the client.
func (s *GCSStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
