package backbone

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sunsided/yeet-yoink/internal/errors"
	"github.com/sunsided/yeet-yoink/internal/rendezvous"
)

// DistributionSink receives DistributeFile notifications once a file has
// finished writing and entered its temporal lease. It is the narrow
// interface the backbone depends on; the concrete backend dispatcher
// (internal/backend) implements it.
type DistributionSink interface {
	DistributeFile(id FileId, summary FileSummary)
}

// GetReaderError enumerates the lookup failures of GetFile.
type GetReaderError struct {
	Kind  string // "unknown", "expired", "error"
	ID    FileId
	Cause error
}

func (e *GetReaderError) Error() string {
	switch e.Kind {
	case "expired":
		return "file expired: " + e.ID.String()
	case "error":
		if e.Cause == nil {
			return "file error: " + e.ID.String() + ": write failed"
		}
		return "file error: " + e.ID.String() + ": " + e.Cause.Error()
	default:
		return "unknown file: " + e.ID.String()
	}
}

func errUnknownFile(id FileId) error { return &GetReaderError{Kind: "unknown", ID: id} }
func errFileExpired(id FileId) error { return &GetReaderError{Kind: "expired", ID: id} }
func errFileError(id FileId, cause error) error {
	return &GetReaderError{Kind: "error", ID: id, Cause: cause}
}

// ErrDuplicateID is returned by NewFile on an (exceedingly rare) id
// collision.
var ErrDuplicateID = errors.New("duplicate file id")

// backboneCommand is the internal command processed by the registry's
// single-writer command loop.
type backboneCommand struct {
	id               FileId
	readyForDist     bool
	summary          FileSummary
	removeWriter     bool
}

// Registry is the backbone registry: a process-wide mapping FileId ->
// FileRecord, arbitrating creation, lookup and removal. NewFile inserts
// records (and deletes them again if file setup fails) directly under mu;
// removal of a record after its write has ended happens only inside the
// internal command loop.
type Registry struct {
	mu    sync.RWMutex
	files map[FileId]*fileRecord

	cmdCh chan backboneCommand

	tempDir string
	lease   time.Duration

	sink  atomic.Value // holds DistributionSink
	guard rendezvous.Guard

	// lifetimeWG tracks only the per-file runLifetime goroutines, which
	// are the sole other senders on cmdCh. Close must wait for it to
	// drain before closing cmdCh, or a lifetime goroutine still sleeping
	// out its lease would panic trying to send on a closed channel.
	lifetimeWG sync.WaitGroup

	// done is closed once runCommandLoop returns, i.e. once cmdCh is
	// closed and every already-queued command (including forwarded
	// DistributeFile calls into a DistributionSink) has been processed.
	// Callers that also own the sink's lifetime, such as the composition
	// root closing the dispatcher's channel, must wait on this before
	// tearing the sink down, or a notification still in flight could be
	// forwarded into an already-closed sink channel.
	done chan struct{}

	closeOnce sync.Once
}

// NewRegistry constructs a Registry. sink receives ReadyForDistribution
// notifications (forwarded as DistributeFile) and may be nil if the
// backend dispatcher is constructed after the registry (it is typically
// wired in immediately afterwards via SetSink, since the dispatcher's own
// FileProvider is the registry itself). guard is used to track the
// registry's own background tasks (the command loop and every per-file
// lifetime task) so shutdown can await their quiescence via
// guard.AwaitAll().
func NewRegistry(tempDir string, lease time.Duration, commandBuffer int, sink DistributionSink, guard rendezvous.Guard) *Registry {
	r := &Registry{
		files:   make(map[FileId]*fileRecord),
		cmdCh:   make(chan backboneCommand, commandBuffer),
		tempDir: tempDir,
		lease:   lease,
		guard:   guard.Fork(),
		done:    make(chan struct{}),
	}
	if sink != nil {
		r.sink.Store(sink)
	}
	go r.runCommandLoop()
	return r
}

// SetSink binds (or rebinds) the DistributionSink. Safe to call
// concurrently with the running command loop; takes effect for the next
// command processed.
func (r *Registry) SetSink(sink DistributionSink) {
	r.sink.Store(sink)
}

// NewFile creates a SharedTemporaryFile, constructs a FileRecord, inserts
// it into the map atomically before any writer is handed out, and returns
// a FileWriter.
func (r *Registry) NewFile(contentType string, expectedMD5 []byte) (FileId, *FileWriter, error) {
	id := NewFileId()

	r.mu.Lock()
	if _, exists := r.files[id]; exists {
		r.mu.Unlock()
		return FileId{}, nil, ErrDuplicateID
	}
	rec := newFileRecord(id)
	r.files[id] = rec
	r.mu.Unlock()

	shared, err := Create(r.tempDir)
	if err != nil {
		r.mu.Lock()
		delete(r.files, id)
		r.mu.Unlock()
		return FileId{}, nil, err
	}
	rec.setFile(shared)

	handle, err := shared.Writer()
	if err != nil {
		r.mu.Lock()
		delete(r.files, id)
		r.mu.Unlock()
		if removeErr := shared.Remove(); removeErr != nil {
			log.Warn().Str("file_id", id.String()).Err(removeErr).Msg("failed to remove temporary file after writer setup failure")
		}
		return FileId{}, nil, err
	}

	done := make(chan WriteResult, 1)
	writer := newFileWriter(handle, expectedMD5, contentType, r.lease, done)

	lifetimeGuard := r.guard.Fork()
	r.lifetimeWG.Add(1)
	go func() {
		defer r.lifetimeWG.Done()
		runLifetime(id, rec, done, r.lease, r.cmdCh, lifetimeGuard)
	}()

	return id, writer, nil
}

// GetFile looks up id and, if present and not expired, returns a reader
// over its shared file.
func (r *Registry) GetFile(id FileId) (*fileReadHandle, *FileSummary, error) {
	r.mu.RLock()
	rec, ok := r.files[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, errUnknownFile(id)
	}

	state, summary, shared, _ := rec.snapshot()
	switch state {
	case stateExpired, stateRemoved, stateFailed:
		// A failed write is reaped the same way an expired lease is: the
		// record is removed shortly after, so a lookup landing in the
		// race window before removal sees the same "gone" response as an
		// expired file.
		return nil, nil, errFileExpired(id)
	}

	if shared == nil {
		return nil, nil, errUnknownFile(id)
	}

	reader, err := shared.Reader()
	if err != nil {
		return nil, nil, errFileError(id, err)
	}
	return reader, summary, nil
}

// OpenReader implements the backend.FileProvider interface consumed by
// distribution backends: it opens a reader over the
// buffered file without exposing the rest of the Registry's surface.
func (r *Registry) OpenReader(id FileId) (io.ReadCloser, error) {
	rd, _, err := r.GetFile(id)
	if err != nil {
		return nil, err
	}
	return rd, nil
}

// Close stops accepting new commands. It does not block: cmdCh is closed
// once every in-flight runLifetime goroutine has finished sending its
// final command, from a background goroutine, so a lease still counting
// down at shutdown never panics trying to send on a closed channel.
// Callers should follow with guard.AwaitAll() on the guard passed to
// NewRegistry to await quiescence.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		go func() {
			r.lifetimeWG.Wait()
			close(r.cmdCh)
		}()
	})
}

// Wait blocks until the command loop has processed every command queued
// before cmdCh was closed, including forwarding any trailing
// DistributeFile notifications into the sink. Callers that own the
// sink's own shutdown (closing the dispatcher's command channel, say)
// must call Wait after Close and before tearing the sink down, or a
// notification still being forwarded could land on an already-closed
// sink channel.
func (r *Registry) Wait() {
	<-r.done
}

func (r *Registry) runCommandLoop() {
	defer r.guard.Completed()
	defer close(r.done)
	for cmd := range r.cmdCh {
		switch {
		case cmd.readyForDist:
			// rec.markReady was already applied synchronously by the
			// lifetime task before this command was sent; the map still
			// holds the record, so distribution is dispatched with the
			// file present and readable.
			if sink, ok := r.sink.Load().(DistributionSink); ok && sink != nil {
				sink.DistributeFile(cmd.id, cmd.summary)
			}
		case cmd.removeWriter:
			r.mu.Lock()
			rec, ok := r.files[cmd.id]
			if ok {
				delete(r.files, cmd.id)
			}
			r.mu.Unlock()
			if !ok {
				continue
			}
			if state, _, _, cause := rec.snapshot(); state == stateFailed && cause != nil {
				log.Warn().Str("file_id", cmd.id.String()).Err(cause).Msg("reaping a file whose write failed")
			}
			// The file is ephemeral by design: reaping a record must
			// reclaim its backing disk space, not just forget the map
			// entry. Any reader that already opened a handle keeps the
			// inode alive until it closes it, same as an unlink on an
			// open file anywhere else.
			if shared := rec.markRemoved(); shared != nil {
				if err := shared.Remove(); err != nil {
					log.Warn().Str("file_id", cmd.id.String()).Err(err).Msg("failed to remove reaped temporary file")
				}
			}
		}
	}
}
