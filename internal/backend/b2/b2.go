// Package b2 implements a Backblaze B2 Backend using
// github.com/kurin/blazer, grounded on the dracher-blazer example repo
// (the upstream of this library) — in particular its
// Writer.ConcurrentUploads knob, mirrored here.
package b2

import (
	"context"
	"io"

	"github.com/kurin/blazer/b2"

	"github.com/sunsided/yeet-yoink/internal/backbone"
	"github.com/sunsided/yeet-yoink/internal/backend"
	"github.com/sunsided/yeet-yoink/internal/config"
	"github.com/sunsided/yeet-yoink/internal/errors"
)

// Factory constructs Backend instances of kind "b2".
type Factory struct{}

func (Factory) BackendName() string    { return "b2" }
func (Factory) BackendVersion() string { return "1" }

func (Factory) TryFromConfig(cfg config.BackendConfig) ([]backend.Backend, error) {
	account, _ := cfg.Params["account_id"].(string)
	key, _ := cfg.Params["application_key"].(string)
	bucketName, _ := cfg.Params["bucket"].(string)
	tag, _ := cfg.Params["tag"].(string)

	if account == "" || key == "" || bucketName == "" {
		return nil, errors.New("b2 backend requires \"account_id\", \"application_key\" and \"bucket\" parameters")
	}
	if tag == "" {
		tag = "b2:" + bucketName
	}

	ctx := context.Background()
	client, err := b2.NewClient(ctx, account, key)
	if err != nil {
		return nil, errors.Wrap(err, "authorizing b2 account")
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "resolving b2 bucket")
	}

	return []backend.Backend{New(tag, bucket)}, nil
}

// Backend distributes files to a Backblaze B2 bucket.
type Backend struct {
	tag    string
	bucket *b2.Bucket

	// ConcurrentUploads mirrors blazer's Writer.ConcurrentUploads: how
	// many large-file parts to upload in parallel per distribute call.
	ConcurrentUploads int
}

var _ backend.Backend = (*Backend)(nil)

// New returns a Backend that uploads to bucket.
func New(tag string, bucket *b2.Bucket) *Backend {
	return &Backend{tag: tag, bucket: bucket, ConcurrentUploads: 4}
}

func (b *Backend) Tag() string { return b.tag }

func (b *Backend) DistributeFile(ctx context.Context, id backbone.FileId, summary backbone.FileSummary, provider backend.FileProvider) error {
	rd, err := provider.OpenReader(id)
	if err != nil {
		return errors.Wrap(err, "opening file for b2 backend")
	}
	defer rd.Close()

	obj := b.bucket.Object(id.String())
	w := obj.NewWriter(ctx)
	w.ConcurrentUploads = b.ConcurrentUploads
	if summary.ContentType != "" {
		w.ContentType = summary.ContentType
	}

	if _, err := io.Copy(w, rd); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "uploading file to b2 backend")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "finalizing b2 upload")
	}
	return nil
}

func (b *Backend) CanReceive() bool { return true }

// ReceiveFile opens a reader for id. blazer's Reader is lazy: NewReader
// never contacts B2, and a missing object only surfaces as an error on
// the first Read. A single byte is read eagerly here and stitched back
// onto the returned stream, so a missing object is reported here rather
// than after the caller has already started sending a 200 response.
func (b *Backend) ReceiveFile(ctx context.Context, id backbone.FileId) (io.ReadCloser, error) {
	obj := b.bucket.Object(id.String())
	r := obj.NewReader(ctx)

	probe := make([]byte, 1)
	n, err := r.Read(probe)
	if err != nil && err != io.EOF {
		r.Close()
		return nil, errors.Wrap(err, "reading object from b2 backend")
	}

	return &peekedReadCloser{
		peeked: probe[:n],
		atEOF:  err == io.EOF,
		r:      r,
	}, nil
}

// peekedReadCloser replays a single probed byte (and a possible EOF
// observed while probing) before reading the rest of r.
type peekedReadCloser struct {
	peeked []byte
	atEOF  bool
	r      io.ReadCloser
}

func (p *peekedReadCloser) Read(buf []byte) (int, error) {
	if len(p.peeked) > 0 {
		n := copy(buf, p.peeked)
		p.peeked = p.peeked[n:]
		return n, nil
	}
	if p.atEOF {
		return 0, io.EOF
	}
	return p.r.Read(buf)
}

func (p *peekedReadCloser) Close() error {
	return p.r.Close()
}
