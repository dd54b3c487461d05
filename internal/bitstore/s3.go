package bitstore

import (
	"context"
	"io"

	"github.com/openarchive/preserv-backend/pkg/storage"
)

// S3Backend stores assets in S3-compatible object storage through the
// shared storage client.
type S3Backend struct {
	client *storage.S3Client
}

// NewS3Backend creates the backend over an initialized S3 client.
func NewS3Backend(client *storage.S3Client) *S3Backend {
	return &S3Backend{client: client}
}

func (b *S3Backend) Name() string { return "s3" }

// Put streams through a pipe into a background upload. Close blocks until
// the upload finishes and reports its error.
func (b *S3Backend) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := b.client.Upload(ctx, key, pr, "")
		if err != nil {
			// unblock a writer stuck on a full pipe
			pr.CloseWithError(err)
		}
		done <- err
	}()
	return &s3UploadWriter{pw: pw, done: done}, nil
}

func (b *S3Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.client.Download(ctx, key)
}

func (b *S3Backend) Remove(ctx context.Context, key string) error {
	return b.client.Delete(ctx, key)
}

func (b *S3Backend) URL(key string) string {
	return b.client.ObjectURL(key)
}

type s3UploadWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *s3UploadWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3UploadWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}
