package backbone

import (
	"sync"
	"time"

	"github.com/sunsided/yeet-yoink/internal/debug"
	"github.com/sunsided/yeet-yoink/internal/rendezvous"
)

type recordState int

const (
	stateWriting recordState = iota
	stateLeased
	stateExpired
	stateFailed
	stateRemoved
)

// fileRecord is the per-file state machine: Writing ->
// ReadyForDistribution -> Leased -> Expired/Failed. The file slot is
// guarded by its own lock so the lifetime task can close it while readers
// may still hold independent handles open on the underlying inode.
type fileRecord struct {
	id FileId

	mu      sync.RWMutex
	state   recordState
	file    *SharedTemporaryFile
	summary *FileSummary
	err     error
}

func newFileRecord(id FileId) *fileRecord {
	return &fileRecord{id: id, state: stateWriting}
}

func (r *fileRecord) setFile(f *SharedTemporaryFile) {
	r.mu.Lock()
	r.file = f
	r.mu.Unlock()
}

func (r *fileRecord) snapshot() (recordState, *FileSummary, *SharedTemporaryFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, r.summary, r.file, r.err
}

func (r *fileRecord) markReady(summary FileSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateWriting {
		return
	}
	r.summary = &summary
	r.state = stateLeased
}

func (r *fileRecord) markFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateFailed
	r.err = err
}

func (r *fileRecord) markExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateLeased {
		r.state = stateExpired
	}
}

// markRemoved transitions the record to its terminal state and hands back
// whatever SharedTemporaryFile it held, so the caller can unlink it on
// disk. Any reader handles opened before this call keep the underlying
// inode alive until they close it themselves; dropping our reference here
// only stops new readers from being created.
func (r *fileRecord) markRemoved() *SharedTemporaryFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateRemoved
	f := r.file
	r.file = nil
	return f
}

// runLifetime is the background lifetime task spawned by Registry.NewFile.
// It awaits the writer's completion message, publishes readiness, applies
// the temporal lease, and finally triggers reaping.
func runLifetime(id FileId, rec *fileRecord, done <-chan WriteResult, lease time.Duration, cmdCh chan<- backboneCommand, guard rendezvous.Guard) {
	defer guard.Completed()

	result, ok := <-done
	if !ok || result.Failed {
		debug.Log("file %s: writer failed or channel dropped: %v", id, result.Err)
		rec.markFailed(result.Err)
		cmdCh <- backboneCommand{id: id, removeWriter: true}
		return
	}

	debug.Log("file %s: write completed, publishing readiness", id)
	rec.markReady(*result.Summary)
	cmdCh <- backboneCommand{id: id, readyForDist: true, summary: *result.Summary}

	debug.Log("file %s: accepting readers for %s", id, lease)
	time.Sleep(lease)

	debug.Log("file %s: lease expired, reaping", id)
	rec.markExpired()
	cmdCh <- backboneCommand{id: id, removeWriter: true}
}
