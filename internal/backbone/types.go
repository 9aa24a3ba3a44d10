// Package backbone implements the transient file store's core: the
// in-memory registry of in-flight files, the stream-to-disk writer with
// dual hashing, the single-writer/multi-reader shared temporary file, and
// the per-file lifetime controller that applies the temporal lease and
// triggers reaping.
package backbone

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// FileId is a short, URL-safe, random 128-bit identifier. It is rendered
// as unpadded, URL-safe base64 of a UUIDv4.
type FileId struct {
	raw uuid.UUID
}

// NewFileId generates a fresh, random FileId.
func NewFileId() FileId {
	return FileId{raw: uuid.New()}
}

// String renders the FileId in its compact, URL-safe form.
func (id FileId) String() string {
	return base64.RawURLEncoding.EncodeToString(id.raw[:])
}

// ParseFileId parses a FileId previously produced by String.
func ParseFileId(s string) (FileId, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return FileId{}, err
	}
	var id FileId
	id.raw, err = uuid.FromBytes(b)
	if err != nil {
		return FileId{}, err
	}
	return id, nil
}

// FileHashes holds the two digests computed while streaming a file to
// disk.
type FileHashes struct {
	MD5    [16]byte
	SHA256 [32]byte
}

// FileSummary describes a completed upload.
type FileSummary struct {
	ID          FileId
	SizeBytes   uint64
	Hashes      FileHashes
	ContentType string // empty means "not provided"
	ExpiresAt   time.Time
}
