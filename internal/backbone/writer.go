package backbone

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"hash"
	"time"

	"github.com/sunsided/yeet-yoink/internal/debug"
	"github.com/sunsided/yeet-yoink/internal/errors"
)

// CompletionMode selects whether Finalize performs a final flush before
// terminating the writer.
type CompletionMode int

const (
	// Sync performs a final flush before finalizing.
	Sync CompletionMode = iota
	// NoSync assumes a prior SyncData call already covered the tail.
	NoSync
)

// ErrChecksumMismatch is returned by Finalize when the client-supplied
// expected MD5 disagrees with the computed digest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// WriteResult is delivered exactly once on the writer's completion
// channel.
type WriteResult struct {
	Summary *FileSummary // nil when Failed
	Failed  bool
	Err     error // the cause of failure; nil unless Failed
}

// FileWriter is a streaming writer that consumes chunks, updates MD5+
// SHA-256 incrementally, flushes, and emits a finalization result.
type FileWriter struct {
	handle *fileWriteHandle
	md5    hash.Hash
	sha256 hash.Hash

	expectedMD5 []byte
	contentType string
	leaseFor    time.Duration

	written  uint64
	done     chan WriteResult
	finished bool
}

// newFileWriter constructs a FileWriter over handle. done receives exactly
// one WriteResult over the writer's lifetime, including abnormal
// termination.
func newFileWriter(handle *fileWriteHandle, expectedMD5 []byte, contentType string, lease time.Duration, done chan WriteResult) *FileWriter {
	return &FileWriter{
		handle:      handle,
		md5:         md5.New(),
		sha256:      sha256.New(),
		expectedMD5: expectedMD5,
		contentType: contentType,
		leaseFor:    lease,
		done:        done,
	}
}

// Write appends bytes, updating both hashers over the identical sequence
// accepted by the underlying file.
func (w *FileWriter) Write(chunk []byte) (int, error) {
	n, err := w.handle.Write(chunk)
	if n > 0 {
		w.md5.Write(chunk[:n])
		w.sha256.Write(chunk[:n])
		w.written += uint64(n)
	}
	if err != nil {
		return n, err
	}
	debug.Log("wrote %d bytes, %d total", n, w.written)
	return n, nil
}

// SyncData flushes OS buffers and publishes the write tail so readers can
// observe the written bytes.
func (w *FileWriter) SyncData() error {
	return w.handle.Flush()
}

// Finalize terminates the writer. On success it emits WriteResult{Summary}
// on the completion channel and returns the summary; on failure (I/O error
// or checksum mismatch) it emits WriteResult{Failed: true} and returns an
// error without publishing success.
func (w *FileWriter) Finalize(mode CompletionMode) (*FileSummary, error) {
	if w.finished {
		return nil, errors.New("writer already finalized")
	}
	w.finished = true

	if mode == Sync {
		if err := w.SyncData(); err != nil {
			if closeErr := w.handle.Close(err); closeErr != nil {
				debug.Log("file writer: close after sync failure also failed: %v", closeErr)
			}
			w.fail(err)
			return nil, err
		}
	}

	sum := w.computeHashes()

	if len(w.expectedMD5) > 0 {
		if !bytes.Equal(sum.MD5[:], w.expectedMD5) {
			if closeErr := w.handle.Close(nil); closeErr != nil {
				debug.Log("file writer: close after checksum mismatch also failed: %v", closeErr)
			}
			w.fail(ErrChecksumMismatch)
			return nil, ErrChecksumMismatch
		}
	}

	sum.SizeBytes = w.written
	sum.ContentType = w.contentType
	sum.ExpiresAt = time.Now().Add(w.leaseFor)

	if err := w.handle.Close(nil); err != nil {
		w.fail(err)
		return nil, err
	}

	w.done <- WriteResult{Summary: &sum}
	return &sum, nil
}

// Abort is called when the writer is dropped before Finalize (e.g. the
// client disconnected mid-upload). It emits WriteResult{Failed: true}.
func (w *FileWriter) Abort(cause error) {
	if w.finished {
		return
	}
	w.finished = true
	if closeErr := w.handle.Close(cause); closeErr != nil {
		debug.Log("file writer: close after abort also failed: %v", closeErr)
	}
	w.fail(cause)
}

// fail delivers the terminal WriteResult for a failed write. cause is the
// reason the write failed (a checksum mismatch, a read/write I/O error, or
// the client disconnecting); it is recorded on the record so the registry
// can log what went wrong when it reaps the record. GetFile does not
// surface it: a failed file is reported as expired, then unknown.
func (w *FileWriter) fail(cause error) {
	w.done <- WriteResult{Failed: true, Err: cause}
}

func (w *FileWriter) computeHashes() FileSummary {
	var sum FileSummary
	copy(sum.Hashes.MD5[:], w.md5.Sum(nil))
	copy(sum.Hashes.SHA256[:], w.sha256.Sum(nil))
	return sum
}
