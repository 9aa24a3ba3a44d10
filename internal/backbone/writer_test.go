package backbone

import (
	"crypto/md5"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, expectedMD5 []byte) (*FileWriter, *SharedTemporaryFile, chan WriteResult) {
	t.Helper()
	shared, err := Create(t.TempDir())
	require.NoError(t, err)

	handle, err := shared.Writer()
	require.NoError(t, err)

	done := make(chan WriteResult, 1)
	w := newFileWriter(handle, expectedMD5, "text/plain", 50*time.Millisecond, done)
	return w, shared, done
}

func TestFileWriterComputesBothHashes(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	w, _, done := newTestWriter(t, nil)

	n, err := w.Write(content)
	require.NoError(t, err)
	require.Equal(t, len(content), n)
	require.NoError(t, w.SyncData())

	summary, err := w.Finalize(NoSync)
	require.NoError(t, err)

	wantMD5 := md5.Sum(content)
	wantSHA256 := sha256.Sum256(content)
	require.Equal(t, wantMD5, summary.Hashes.MD5)
	require.Equal(t, wantSHA256, summary.Hashes.SHA256)
	require.Equal(t, uint64(len(content)), summary.SizeBytes)
	require.Equal(t, "text/plain", summary.ContentType)
	require.WithinDuration(t, time.Now().Add(50*time.Millisecond), summary.ExpiresAt, 20*time.Millisecond)

	result := <-done
	require.False(t, result.Failed)
	if diff := cmp.Diff(summary, *result.Summary, cmpopts.EquateComparable(FileId{})); diff != "" {
		t.Fatalf("WriteResult.Summary mismatch (-finalize +completion):\n%s", diff)
	}
}

func TestFileWriterAcceptsMatchingContentMD5(t *testing.T) {
	content := []byte("matching digest")
	sum := md5.Sum(content)
	w, _, done := newTestWriter(t, sum[:])

	_, err := w.Write(content)
	require.NoError(t, err)

	summary, err := w.Finalize(Sync)
	require.NoError(t, err)
	require.Equal(t, sum, summary.Hashes.MD5)
	require.False(t, (<-done).Failed)
}

func TestFileWriterRejectsMismatchedContentMD5(t *testing.T) {
	content := []byte("actual content")
	wrongDigest := md5.Sum([]byte("different content"))
	w, _, done := newTestWriter(t, wrongDigest[:])

	_, err := w.Write(content)
	require.NoError(t, err)

	summary, err := w.Finalize(NoSync)
	require.ErrorIs(t, err, ErrChecksumMismatch)
	require.Nil(t, summary)
	require.True(t, (<-done).Failed)
}

func TestFileWriterFinalizeIsNotReentrant(t *testing.T) {
	w, _, done := newTestWriter(t, nil)
	_, err := w.Write([]byte("payload"))
	require.NoError(t, err)

	_, err = w.Finalize(NoSync)
	require.NoError(t, err)
	<-done

	_, err = w.Finalize(NoSync)
	require.Error(t, err)
}

func TestFileWriterAbortSignalsFailure(t *testing.T) {
	w, _, done := newTestWriter(t, nil)
	_, err := w.Write([]byte("partial"))
	require.NoError(t, err)

	w.Abort(errors.New("client disconnected"))
	result := <-done
	require.True(t, result.Failed)
	require.Nil(t, result.Summary)

	// Abort after Abort is a no-op and must not panic or double-send.
	w.Abort(nil)
}
