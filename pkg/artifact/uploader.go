package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/metrics"
	"github.com/minio/minio-go/v7"
)

const contentTypeGzip = "application/gzip"

// ObjectClient is the subset of *minio.Client used by the uploader
type ObjectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// Location identifies an uploaded artifact
type Location struct {
	Bucket string
	Key    string
}

// URL returns the artifact address handed to the hosting service
func (l Location) URL() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// Uploader stores model artifacts in a single bucket
type Uploader struct {
	client ObjectClient
	cfg    Config
}

// NewUploader creates an uploader over an existing client
func NewUploader(client ObjectClient, cfg Config) *Uploader {
	return &Uploader{client: client, cfg: cfg}
}

// Bucket returns the configured bucket name
func (u *Uploader) Bucket() string {
	return u.cfg.Bucket
}

// ObjectKey returns the key an artifact filename is stored under
func (u *Uploader) ObjectKey(filename string) string {
	prefix := strings.Trim(u.cfg.Prefix, "/")
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}

// Upload streams the file at filePath to the bucket under key.
// There is no retry and no cleanup of a partial upload.
func (u *Uploader) Upload(ctx context.Context, filePath, key string) (Location, error) {
	if u.client == nil {
		return Location{}, errors.New("object store not initialized")
	}
	if key == "" {
		return Location{}, errors.New("object key is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return Location{}, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Location{}, fmt.Errorf("stat artifact: %w", err)
	}

	if u.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.UploadTimeout)
		defer cancel()
	}

	timer := metrics.NewTimer()
	_, err = u.client.PutObject(ctx, u.cfg.Bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentTypeGzip,
	})
	if err != nil {
		return Location{}, fmt.Errorf("put object %s/%s: %w", u.cfg.Bucket, key, err)
	}

	logger := log.WithComponent("artifact")
	logger.Info().
		Str("bucket", u.cfg.Bucket).
		Str("key", key).
		Int64("size", info.Size()).
		Dur("duration", timer.Duration()).
		Msg("Artifact uploaded")

	return Location{Bucket: u.cfg.Bucket, Key: key}, nil
}

// Delete removes an uploaded artifact
func (u *Uploader) Delete(ctx context.Context, bucket, key string) error {
	if u.client == nil {
		return errors.New("object store not initialized")
	}
	if err := u.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// EnsureBucket creates the bucket if it does not exist
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.cfg.Bucket, minio.MakeBucketOptions{Region: u.cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", u.cfg.Bucket, err)
	}
	return nil
}

// CheckBucket reports an error unless the bucket is reachable and present
func (u *Uploader) CheckBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket missing: %s", u.cfg.Bucket)
	}
	return nil
}
