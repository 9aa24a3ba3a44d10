// Package local implements a filesystem-mirror Backend in the style of
// restic's internal/backend/local: files are written into a destination
// directory on disk rather than into restic's content-addressed
// repository layout, restyled against the yeetyoink Backend interface's
// distribute/receive contract.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	"github.com/sunsided/yeet-yoink/internal/backbone"
	"github.com/sunsided/yeet-yoink/internal/backend"
	"github.com/sunsided/yeet-yoink/internal/config"
	"github.com/sunsided/yeet-yoink/internal/debug"
	"github.com/sunsided/yeet-yoink/internal/errors"
)

// Factory constructs Backend instances of kind "local".
type Factory struct{}

func (Factory) BackendName() string    { return "local" }
func (Factory) BackendVersion() string { return "1" }

func (Factory) TryFromConfig(cfg config.BackendConfig) ([]backend.Backend, error) {
	dir, _ := cfg.Params["path"].(string)
	if dir == "" {
		return nil, errors.New("local backend requires a \"path\" parameter")
	}
	tag, _ := cfg.Params["tag"].(string)
	if tag == "" {
		tag = "local:" + dir
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating local backend directory")
	}

	return []backend.Backend{New(tag, dir)}, nil
}

// Backend mirrors distributed files into a directory on disk, keyed by
// file id.
type Backend struct {
	tag string
	dir string

	// limiter gates outbound writes the way restic's
	// internal/backend/limiter gates every backend operation. New
	// configures it with an unlimited rate, so it does not throttle.
	limiter *rate.Limiter
}

var _ backend.Backend = (*Backend)(nil)

// New returns a Backend that mirrors files into dir.
func New(tag, dir string) *Backend {
	return &Backend{
		tag:     tag,
		dir:     dir,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func (b *Backend) Tag() string { return b.tag }

func (b *Backend) DistributeFile(ctx context.Context, id backbone.FileId, _ backbone.FileSummary, provider backend.FileProvider) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "waiting for local backend rate limiter")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		return b.writeOnce(id, provider)
	}, policy)
}

// writeOnce mirrors the file to disk gzip-compressed, so compressible
// payloads take less space than the original; ReceiveFile decompresses
// transparently, so callers see byte-identical content.
func (b *Backend) writeOnce(id backbone.FileId, provider backend.FileProvider) error {
	rd, err := provider.OpenReader(id)
	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "opening file for local backend"))
	}
	defer rd.Close()

	dest := b.pathFor(id)
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating local backend destination file")
	}

	gz, _ := gzip.NewWriterLevel(out, gzip.BestSpeed)
	if _, err := io.Copy(gz, rd); err != nil {
		gz.Close()
		out.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "copying file into local backend")
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "flushing local backend compression stream")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "closing local backend destination file")
	}
	if err := os.Rename(tmp, dest); err != nil {
		return errors.Wrap(err, "finalizing local backend destination file")
	}

	debug.Log("local backend %s: mirrored %s to %s", b.tag, id, dest)
	return nil
}

func (b *Backend) CanReceive() bool { return true }

func (b *Backend) ReceiveFile(ctx context.Context, id backbone.FileId) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(b.pathFor(id))
	if err != nil {
		return nil, errors.Wrap(err, "opening file from local backend")
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "decompressing file from local backend")
	}
	return &gzipReadCloser{Reader: gz, file: f}, nil
}

// gzipReadCloser closes both the gzip stream and its underlying file.
type gzipReadCloser struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Close() error {
	gzErr := g.Reader.Close()
	fErr := g.file.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}

func (b *Backend) pathFor(id backbone.FileId) string {
	return filepath.Join(b.dir, id.String()+".gz")
}
