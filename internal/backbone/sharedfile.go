package backbone

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sunsided/yeet-yoink/internal/errors"
)

// SharedTemporaryFile owns a single on-disk file with exactly one writer
// and any number of concurrent readers. The write tail is published
// atomically after each flush so readers can observe a consistent
// watermark without locking against the writer.
//
// The notify condition variable mirrors the descNotify *sync.Cond pattern
// used by distribution's blobWriter to wake blocked readers whenever the
// watermark advances or the writer completes.
type SharedTemporaryFile struct {
	path string
	file *os.File

	watermark int64 // atomic: bytes made durable and visible to readers

	mu          sync.Mutex
	cond        *sync.Cond
	writerDone  bool
	writeErr    error
	writerTaken bool
}

// Create allocates a fresh file in dir (the OS temp directory when dir is
// empty), opened for both writing and reading.
func Create(dir string) (*SharedTemporaryFile, error) {
	f, err := os.CreateTemp(dir, "yeetyoink-*.bin")
	if err != nil {
		return nil, errors.Wrap(err, "creating shared temporary file")
	}
	stf := &SharedTemporaryFile{
		path: f.Name(),
		file: f,
	}
	stf.cond = sync.NewCond(&stf.mu)
	return stf, nil
}

// Path returns the on-disk path backing this file.
func (f *SharedTemporaryFile) Path() string {
	return f.path
}

// Writer returns the single write handle for this file. Calling it more
// than once returns an error.
func (f *SharedTemporaryFile) Writer() (*fileWriteHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writerTaken {
		return nil, errors.New("writer already taken for this shared temporary file")
	}
	f.writerTaken = true
	return &fileWriteHandle{shared: f}, nil
}

// Reader returns a read handle positioned at offset zero. Multiple
// readers may coexist with the writer and with each other.
func (f *SharedTemporaryFile) Reader() (*fileReadHandle, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, errors.Wrap(err, "opening shared temporary file for reading")
	}
	return &fileReadHandle{shared: f, file: fh}, nil
}

// Remove deletes the backing file. Safe to call once all readers and the
// writer have released their handles; on most platforms the inode stays
// alive for handles still open at the time of removal.
func (f *SharedTemporaryFile) Remove() error {
	return os.Remove(f.path)
}

func (f *SharedTemporaryFile) publish(n int64) {
	atomic.AddInt64(&f.watermark, n)
	f.mu.Lock()
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *SharedTemporaryFile) markDone(err error) {
	f.mu.Lock()
	f.writerDone = true
	f.writeErr = err
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *SharedTemporaryFile) currentWatermark() int64 {
	return atomic.LoadInt64(&f.watermark)
}

// fileWriteHandle is the single append-only writer over a
// SharedTemporaryFile.
type fileWriteHandle struct {
	shared *SharedTemporaryFile
}

// Write appends bytes to the file. It does not itself publish a watermark
// update; callers must call Flush to make bytes visible to readers (see
// FileWriter.SyncData, which drives this).
func (w *fileWriteHandle) Write(p []byte) (int, error) {
	n, err := w.shared.file.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "writing to shared temporary file")
	}
	return n, nil
}

// Flush publishes all bytes written so far to waiting readers and
// guarantees they are durable on disk.
func (w *fileWriteHandle) Flush() error {
	if err := w.shared.file.Sync(); err != nil {
		return errors.Wrap(err, "flushing shared temporary file")
	}
	info, err := w.shared.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stating shared temporary file")
	}
	w.shared.mu.Lock()
	delta := info.Size() - w.shared.currentWatermark()
	w.shared.mu.Unlock()
	if delta > 0 {
		w.shared.publish(delta)
	}
	return nil
}

// Close signals that no further bytes will be written. writeErr, if
// non-nil, is surfaced to readers as a terminal I/O error once they catch
// up to the published watermark.
func (w *fileWriteHandle) Close(writeErr error) error {
	w.shared.markDone(writeErr)
	return w.shared.file.Close()
}

// fileReadHandle is one of potentially many concurrent readers over a
// SharedTemporaryFile.
type fileReadHandle struct {
	shared *SharedTemporaryFile
	file   *os.File
	offset int64
}

// Read implements io.Reader. It returns available bytes up to the current
// watermark; if caught up while the writer is still live it blocks until
// more data is published or the writer signals completion.
func (r *fileReadHandle) Read(p []byte) (int, error) {
	for {
		watermark := r.shared.currentWatermark()
		if r.offset < watermark {
			if avail := watermark - r.offset; int64(len(p)) > avail {
				p = p[:avail]
			}
			n, err := r.file.ReadAt(p, r.offset)
			if n > 0 {
				r.offset += int64(n)
			}
			if err == io.EOF && n > 0 {
				// We read up to the current end of the durable region, but
				// more may still be coming; suppress EOF unless the writer
				// is actually done.
				err = nil
			}
			return n, err
		}

		r.shared.mu.Lock()
		done := r.shared.writerDone
		writeErr := r.shared.writeErr
		if !done {
			r.shared.cond.Wait()
			r.shared.mu.Unlock()
			continue
		}
		r.shared.mu.Unlock()

		if writeErr != nil {
			return 0, errors.Wrap(writeErr, "shared temporary file writer failed")
		}
		return 0, io.EOF
	}
}

// Close releases this reader's file handle. The underlying inode is kept
// alive by the OS as long as any handle (including the writer's) remains
// open.
func (r *fileReadHandle) Close() error {
	return r.file.Close()
}
