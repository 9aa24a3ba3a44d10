// Package s3 implements an S3-compatible object-store Backend using
// minio-go, grounded on restic's internal/backend/s3
// (which also wraps an S3 client library) and on superleo-aistore's
// object-store-backend posture.
package s3

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sunsided/yeet-yoink/internal/backbone"
	"github.com/sunsided/yeet-yoink/internal/backend"
	"github.com/sunsided/yeet-yoink/internal/config"
	"github.com/sunsided/yeet-yoink/internal/errors"
)

// Factory constructs Backend instances of kind "s3".
type Factory struct{}

func (Factory) BackendName() string    { return "s3" }
func (Factory) BackendVersion() string { return "1" }

func (Factory) TryFromConfig(cfg config.BackendConfig) ([]backend.Backend, error) {
	endpoint, _ := cfg.Params["endpoint"].(string)
	bucket, _ := cfg.Params["bucket"].(string)
	accessKey, _ := cfg.Params["access_key"].(string)
	secretKey, _ := cfg.Params["secret_key"].(string)
	useSSL, _ := cfg.Params["use_ssl"].(bool)
	tag, _ := cfg.Params["tag"].(string)

	if endpoint == "" || bucket == "" {
		return nil, errors.New("s3 backend requires \"endpoint\" and \"bucket\" parameters")
	}
	if tag == "" {
		tag = "s3:" + bucket
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "constructing minio client")
	}

	return []backend.Backend{New(tag, bucket, client)}, nil
}

// Backend distributes files to an S3-compatible object store.
type Backend struct {
	tag    string
	bucket string
	client *minio.Client
}

var _ backend.Backend = (*Backend)(nil)

// New returns a Backend that uploads to and downloads from bucket via
// client.
func New(tag, bucket string, client *minio.Client) *Backend {
	return &Backend{tag: tag, bucket: bucket, client: client}
}

func (b *Backend) Tag() string { return b.tag }

func (b *Backend) DistributeFile(ctx context.Context, id backbone.FileId, summary backbone.FileSummary, provider backend.FileProvider) error {
	rd, err := provider.OpenReader(id)
	if err != nil {
		return errors.Wrap(err, "opening file for s3 backend")
	}
	defer rd.Close()

	opts := minio.PutObjectOptions{}
	if summary.ContentType != "" {
		opts.ContentType = summary.ContentType
	}

	_, err = b.client.PutObject(ctx, b.bucket, id.String(), rd, int64(summary.SizeBytes), opts)
	if err != nil {
		return errors.Wrap(err, "uploading object to s3 backend")
	}
	return nil
}

func (b *Backend) CanReceive() bool { return true }

func (b *Backend) ReceiveFile(ctx context.Context, id backbone.FileId) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, id.String(), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "fetching object from s3 backend")
	}
	// Validate the object actually exists; GetObject is lazy and only
	// surfaces errors on first read/stat.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, errors.Wrap(err, "stating object from s3 backend")
	}
	return obj, nil
}
