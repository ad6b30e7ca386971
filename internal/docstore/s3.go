package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by the store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores documents in an S3 bucket. Object keys double as public IDs.
type S3 struct {
	client  S3API
	bucket  string
	baseURL string
}

// NewS3 loads the default AWS configuration for region and returns a store
// writing to bucket. baseURL is the public prefix for object URLs; when empty
// the virtual-hosted bucket URL is used.
func NewS3(ctx context.Context, bucket, region, baseURL string) (*S3, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket not set")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return NewS3WithClient(s3.NewFromConfig(cfg), bucket, baseURL), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client S3API, bucket, baseURL string) *S3 {
	return &S3{client: client, bucket: bucket, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *S3) Upload(ctx context.Context, f File, folder string) (Ref, error) {
	// The SDK needs a seekable body to compute checksums.
	data, err := io.ReadAll(f.Body)
	if err != nil {
		return Ref{}, fmt.Errorf("reading %s: %w", f.Name, err)
	}

	base, ext := objectName(f.Name)
	key := path.Join(folder, base+ext)

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if f.ContentType != "" {
		input.ContentType = aws.String(f.ContentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Ref{}, fmt.Errorf("uploading %s to s3: %w", f.Name, err)
	}

	return Ref{URL: s.baseURL + "/" + key, PublicID: key}, nil
}

func (s *S3) Delete(ctx context.Context, publicID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("deleting %s from s3: %w", publicID, err)
	}
	return nil
}
