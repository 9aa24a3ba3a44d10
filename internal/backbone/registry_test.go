package backbone

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sunsided/yeet-yoink/internal/rendezvous"
)

type recordingSink struct {
	calls chan FileId
}

func newRecordingSink() *recordingSink {
	return &recordingSink{calls: make(chan FileId, 8)}
}

func (s *recordingSink) DistributeFile(id FileId, _ FileSummary) {
	s.calls <- id
}

func TestRegistryNewFileThenGetFileRoundTrips(t *testing.T) {
	guard := rendezvous.New()
	registry := NewRegistry(t.TempDir(), time.Hour, 8, nil, guard)
	defer registry.Close()

	id, writer, err := registry.NewFile("text/plain", nil)
	require.NoError(t, err)

	content := []byte("round trip contents")
	_, err = writer.Write(content)
	require.NoError(t, err)
	_, err = writer.Finalize(Sync)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, summary, err := registry.GetFile(id)
		return err == nil && summary != nil
	}, time.Second, time.Millisecond)

	reader, summary, err := registry.GetFile(id)
	require.NoError(t, err)
	require.Equal(t, "text/plain", summary.ContentType)

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, content, got)
}

func TestRegistryNotifiesSinkOnceReady(t *testing.T) {
	guard := rendezvous.New()
	sink := newRecordingSink()
	registry := NewRegistry(t.TempDir(), time.Hour, 8, sink, guard)
	defer registry.Close()

	id, writer, err := registry.NewFile("", nil)
	require.NoError(t, err)
	_, err = writer.Write([]byte("x"))
	require.NoError(t, err)
	_, err = writer.Finalize(NoSync)
	require.NoError(t, err)

	select {
	case gotID := <-sink.calls:
		require.Equal(t, id, gotID)
	case <-time.After(time.Second):
		t.Fatal("sink was never notified of the completed file")
	}
}

func TestRegistrySetSinkBindsLateArrivingSink(t *testing.T) {
	guard := rendezvous.New()
	registry := NewRegistry(t.TempDir(), time.Hour, 8, nil, guard)
	defer registry.Close()

	sink := newRecordingSink()
	registry.SetSink(sink)

	id, writer, err := registry.NewFile("", nil)
	require.NoError(t, err)
	_, err = writer.Write([]byte("y"))
	require.NoError(t, err)
	_, err = writer.Finalize(NoSync)
	require.NoError(t, err)

	select {
	case gotID := <-sink.calls:
		require.Equal(t, id, gotID)
	case <-time.After(time.Second):
		t.Fatal("late-bound sink was never notified")
	}
}

func TestRegistryGetFileUnknownID(t *testing.T) {
	guard := rendezvous.New()
	registry := NewRegistry(t.TempDir(), time.Hour, 8, nil, guard)
	defer registry.Close()

	_, _, err := registry.GetFile(NewFileId())
	require.Error(t, err)
	gerr, ok := err.(*GetReaderError)
	require.True(t, ok)
	require.Equal(t, "unknown", gerr.Kind)
}

func TestRegistryGetFileAfterLeaseExpires(t *testing.T) {
	guard := rendezvous.New()
	registry := NewRegistry(t.TempDir(), 10*time.Millisecond, 8, nil, guard)
	defer registry.Close()

	id, writer, err := registry.NewFile("", nil)
	require.NoError(t, err)
	_, err = writer.Write([]byte("z"))
	require.NoError(t, err)
	_, err = writer.Finalize(NoSync)
	require.NoError(t, err)

	// Once the lease elapses the file is gone from the caller's
	// perspective, whether GetFile observes it mid-expiry ("expired") or
	// after the background removal races ahead ("unknown"): GetFile
	// reports "expired" until the record is removed and "unknown" after.
	require.Eventually(t, func() bool {
		_, _, err := registry.GetFile(id)
		if err == nil {
			return false
		}
		gerr, ok := err.(*GetReaderError)
		return ok && (gerr.Kind == "expired" || gerr.Kind == "unknown")
	}, time.Second, 2*time.Millisecond)
}

func TestRegistryReapRemovesBackingFileFromDisk(t *testing.T) {
	guard := rendezvous.New()
	registry := NewRegistry(t.TempDir(), 10*time.Millisecond, 8, nil, guard)
	defer registry.Close()

	id, writer, err := registry.NewFile("", nil)
	require.NoError(t, err)
	_, err = writer.Write([]byte("disk space should not leak"))
	require.NoError(t, err)
	_, err = writer.Finalize(NoSync)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, summary, err := registry.GetFile(id)
		return err == nil && summary != nil
	}, time.Second, time.Millisecond)

	registry.mu.RLock()
	rec := registry.files[id]
	registry.mu.RUnlock()
	require.NotNil(t, rec)
	_, _, shared, _ := rec.snapshot()
	require.NotNil(t, shared)
	path := shared.Path()

	_, err = os.Stat(path)
	require.NoError(t, err, "backing file must exist while the lease is active")

	require.Eventually(t, func() bool {
		_, statErr := os.Stat(path)
		return os.IsNotExist(statErr)
	}, time.Second, 2*time.Millisecond, "reaping an expired record must unlink its backing temporary file")
}

// TestRegistryCloseDoesNotPanicWithLeaseStillRunning guards against
// closing cmdCh while a runLifetime goroutine is still sleeping out its
// lease and will later try to send on it: that send must never race a
// closed channel.
func TestRegistryCloseDoesNotPanicWithLeaseStillRunning(t *testing.T) {
	guard := rendezvous.New()
	registry := NewRegistry(t.TempDir(), 200*time.Millisecond, 8, nil, guard)

	_, writer, err := registry.NewFile("", nil)
	require.NoError(t, err)
	_, err = writer.Write([]byte("still within its lease"))
	require.NoError(t, err)
	_, err = writer.Finalize(NoSync)
	require.NoError(t, err)

	registry.Close()

	done := make(chan struct{})
	go func() {
		guard.AwaitAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("guard.AwaitAll did not return after Close")
	}
}

// TestRegistryWaitReturnsOnlyAfterSinkNotified guards the shutdown
// ordering a composition root relies on: a sink (in production, the
// backend dispatcher) must have already received any trailing
// DistributeFile notification by the time Wait returns, so callers can
// safely tear the sink's own channel down right after.
func TestRegistryWaitReturnsOnlyAfterSinkNotified(t *testing.T) {
	guard := rendezvous.New()
	sink := newRecordingSink()
	registry := NewRegistry(t.TempDir(), 20*time.Millisecond, 8, sink, guard)

	id, writer, err := registry.NewFile("", nil)
	require.NoError(t, err)
	_, err = writer.Write([]byte("payload"))
	require.NoError(t, err)
	_, err = writer.Finalize(NoSync)
	require.NoError(t, err)

	registry.Close()

	waitDone := make(chan struct{})
	go func() {
		registry.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the lease expired and the lifetime goroutine finished")
	}

	select {
	case gotID := <-sink.calls:
		require.Equal(t, id, gotID)
	default:
		t.Fatal("sink was not notified before Wait returned")
	}
}
