package dumpstore

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ajitpratap0/planport/pkg/errors"
)

// s3Uploader is the part of manager.Uploader used by S3Store.
type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store writes objects to an S3 bucket.
type S3Store struct {
	uploader s3Uploader
	bucket   string
}

// NewS3Store loads the default AWS configuration for region and creates an
// uploader for bucket.
func NewS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.Concurrency = 2
	})
	return &S3Store{uploader: uploader, bucket: bucket}, nil
}

// Put uploads data to bucket/key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload failure dump to S3").
			WithDetail("bucket", s.bucket).
			WithDetail("key", key)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Name returns "s3".
func (s *S3Store) Name() string { return "s3" }

// Close is a no-op.
func (s *S3Store) Close() error { return nil }
