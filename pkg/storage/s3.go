package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	pkglogger "github.com/openarchive/preserv-backend/pkg/logger"
)

// S3Client wraps the AWS S3 client for S3/R2/MinIO compatible asset storage
type S3Client struct {
	client   *s3.Client
	bucket   string
	basePath string // prefix for all objects (e.g. "assetstore/")
}

// S3Config holds S3-compatible storage configuration
type S3Config struct {
	Endpoint        string // e.g. https://xxx.r2.cloudflarestorage.com
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	BasePath        string
	ForcePathStyle  bool // true for MinIO/R2
}

// NewS3Client creates a new S3-compatible storage client
func NewS3Client(cfg S3Config) (*S3Client, error) {
	opts := func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}

	client := s3.New(s3.Options{}, opts)

	pkglogger.GetLogger().Info().
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Msg("S3 storage client initialized")

	basePath := cfg.BasePath
	if basePath != "" && !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}

	return &S3Client{
		client:   client,
		bucket:   cfg.Bucket,
		basePath: basePath,
	}, nil
}

// Upload streams body into the bucket under key
func (c *S3Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	fullKey := c.basePath + key

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

// Download opens the object under key for reading
func (c *S3Client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.basePath + key),
	}

	out, err := c.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("s3 download failed: %w", err)
	}
	return out.Body, nil
}

// Delete removes the object under key
func (c *S3Client) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.basePath + key),
	}

	if _, err := c.client.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// ObjectURL returns the canonical URL of the object under key
func (c *S3Client) ObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s%s", c.bucket, c.basePath, key)
}
