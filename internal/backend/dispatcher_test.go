package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sunsided/yeet-yoink/internal/backbone"
	"github.com/sunsided/yeet-yoink/internal/rendezvous"
)

type fakeBackend struct {
	tag         string
	canReceive  bool
	distributed chan backbone.FileId
	distErr     error
	distDelay   time.Duration
	receiveData []byte
	receiveErr  error
}

func (b *fakeBackend) Tag() string { return b.tag }

func (b *fakeBackend) DistributeFile(ctx context.Context, id backbone.FileId, _ backbone.FileSummary, _ FileProvider) error {
	if b.distDelay > 0 {
		select {
		case <-time.After(b.distDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.distributed != nil {
		b.distributed <- id
	}
	return b.distErr
}

func (b *fakeBackend) CanReceive() bool { return b.canReceive }

func (b *fakeBackend) ReceiveFile(context.Context, backbone.FileId) (io.ReadCloser, error) {
	if b.receiveErr != nil {
		return nil, b.receiveErr
	}
	return io.NopCloser(bytes.NewReader(b.receiveData)), nil
}

type fakeProvider struct{}

func (fakeProvider) OpenReader(backbone.FileId) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func TestDistributeToAllCallsBackendsInRegistrationOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	recording := func(tag string) *fakeBackend {
		return &fakeBackend{tag: tag}
	}
	backends := []Backend{recording("a"), recording("b"), recording("c")}
	wrapped := make([]Backend, len(backends))
	for i, be := range backends {
		be := be.(*fakeBackend)
		wrapped[i] = &orderTrackingBackend{fakeBackend: be, onStart: func() {
			mu.Lock()
			order = append(order, be.tag)
			mu.Unlock()
		}}
	}

	id := backbone.NewFileId()
	distributeToAll(context.Background(), wrapped, fakeProvider{}, id, backbone.FileSummary{})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b", "c"}, order)
}

type orderTrackingBackend struct {
	*fakeBackend
	onStart func()
}

func (b *orderTrackingBackend) DistributeFile(ctx context.Context, id backbone.FileId, summary backbone.FileSummary, provider FileProvider) error {
	b.onStart()
	return b.fakeBackend.DistributeFile(ctx, id, summary, provider)
}

func TestDistributeToAllSwallowsPerBackendErrors(t *testing.T) {
	called := make(chan backbone.FileId, 2)
	backends := []Backend{
		&fakeBackend{tag: "failing", distErr: errors.New("boom"), distributed: called},
		&fakeBackend{tag: "ok", distributed: called},
	}

	id := backbone.NewFileId()
	done := make(chan struct{})
	go func() {
		distributeToAll(context.Background(), backends, fakeProvider{}, id, backbone.FileSummary{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distributeToAll blocked despite a failing backend")
	}
	require.Len(t, called, 2)
}

func TestReceiveFirstSuccessSkipsWriteOnlyBackends(t *testing.T) {
	backends := []Backend{
		&fakeBackend{tag: "write-only", canReceive: false},
		&fakeBackend{tag: "readable", canReceive: true, receiveData: []byte("payload")},
	}

	reply := make(chan ReceiveResult, 1)
	receiveFirstSuccess(context.Background(), backends, backbone.NewFileId(), reply)

	result := <-reply
	require.NoError(t, result.Err)
	data, err := io.ReadAll(result.Reader)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestReceiveFirstSuccessFallsThroughOnError(t *testing.T) {
	backends := []Backend{
		&fakeBackend{tag: "broken", canReceive: true, receiveErr: errors.New("not found here")},
		&fakeBackend{tag: "working", canReceive: true, receiveData: []byte("here")},
	}

	reply := make(chan ReceiveResult, 1)
	receiveFirstSuccess(context.Background(), backends, backbone.NewFileId(), reply)

	result := <-reply
	require.NoError(t, result.Err)
	data, err := io.ReadAll(result.Reader)
	require.NoError(t, err)
	require.Equal(t, "here", string(data))
}

func TestReceiveFirstSuccessReturnsNotFoundWhenNoBackendCanServe(t *testing.T) {
	backends := []Backend{
		&fakeBackend{tag: "a", canReceive: true, receiveErr: errors.New("nope")},
		&fakeBackend{tag: "b", canReceive: false},
	}

	reply := make(chan ReceiveResult, 1)
	receiveFirstSuccess(context.Background(), backends, backbone.NewFileId(), reply)

	result := <-reply
	require.ErrorIs(t, result.Err, ErrNotFound)
}

func TestDispatcherGetSenderIsHandedOutOnce(t *testing.T) {
	builder := NewBuilder(fakeProvider{}, rendezvous.New(), nil)
	d := builder.Build(4)

	_, ok := d.GetSender()
	require.True(t, ok)

	_, ok = d.GetSender()
	require.False(t, ok)
}
