// Package mem implements an in-memory Backend in the style of restic's
// internal/backend/mem (mem_backend.go): a map of handle to bytes guarded
// by a single mutex, restyled here as a yeetyoink Backend instead of a
// restic repository backend. Intended for tests and local development,
// never for production fan-out.
package mem

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/sunsided/yeet-yoink/internal/backbone"
	"github.com/sunsided/yeet-yoink/internal/backend"
	"github.com/sunsided/yeet-yoink/internal/config"
	"github.com/sunsided/yeet-yoink/internal/errors"
)

// Factory constructs Backend instances of kind "mem".
type Factory struct{}

func (Factory) BackendName() string    { return "mem" }
func (Factory) BackendVersion() string { return "1" }

func (Factory) TryFromConfig(cfg config.BackendConfig) ([]backend.Backend, error) {
	tag, _ := cfg.Params["tag"].(string)
	if tag == "" {
		tag = "mem"
	}
	return []backend.Backend{New(tag)}, nil
}

// Backend is a mock backend that stores all data in a map in memory,
// keyed by file id plus content hash, similar to the way restic's mem
// backend keys by xxhash-derived handle.
type Backend struct {
	tag string

	mu   sync.Mutex
	data map[string][]byte
}

var _ backend.Backend = (*Backend)(nil)

// New returns a Backend that keeps everything it is given in memory.
func New(tag string) *Backend {
	return &Backend{tag: tag, data: make(map[string][]byte)}
}

func (b *Backend) Tag() string { return b.tag }

func (b *Backend) DistributeFile(_ context.Context, id backbone.FileId, _ backbone.FileSummary, provider backend.FileProvider) error {
	rd, err := provider.OpenReader(id)
	if err != nil {
		return errors.Wrap(err, "opening file for mem backend")
	}
	defer rd.Close()

	buf, err := io.ReadAll(rd)
	if err != nil {
		return errors.Wrap(err, "reading file for mem backend")
	}

	key := contentKey(id, buf)
	b.mu.Lock()
	b.data[key] = buf
	b.mu.Unlock()
	return nil
}

func (b *Backend) CanReceive() bool { return true }

func (b *Backend) ReceiveFile(_ context.Context, id backbone.FileId) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, buf := range b.data {
		if keyMatchesID(key, id) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
	}
	return nil, errors.New("not found in mem backend")
}

// contentKey derives a lookup key from the file id and an xxhash of its
// content, the way restic's mem backend content-addresses its in-memory
// map.
func contentKey(id backbone.FileId, content []byte) string {
	h := xxhash.Sum64(content)
	return id.String() + "#" + strconv.FormatUint(h, 16)
}

func keyMatchesID(key string, id backbone.FileId) bool {
	prefix := id.String() + "#"
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}
