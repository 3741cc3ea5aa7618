package aws

import (
	"bytes"
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectUploader stores a finished file.
type ObjectUploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// S3Bucket uploads objects to one bucket.
type S3Bucket struct {
	client *s3.Client
	bucket string
}

// NewS3Bucket creates an uploader for bucket. Path-style addressing keeps it
// working against LocalStack.
func NewS3Bucket(cfg sdkaws.Config, bucket string) *S3Bucket {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &S3Bucket{client: client, bucket: bucket}
}

// Upload puts the object and returns its s3:// location.
func (b *S3Bucket) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      sdkaws.String(b.bucket),
		Key:         sdkaws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: sdkaws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", b.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", b.bucket, key), nil
}
