package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sunsided/yeet-yoink/internal/backbone"
)

func TestDistributeFileCommandCarriesIDAndSummary(t *testing.T) {
	id := backbone.NewFileId()
	summary := backbone.FileSummary{ID: id, SizeBytes: 42}

	cmd := DistributeFile(id, summary)
	require.Equal(t, kindDistribute, cmd.kind)
	require.Equal(t, id, cmd.id)
	require.Equal(t, summary, cmd.summary)
}

func TestReceiveFileCommandCarriesReplyChannel(t *testing.T) {
	id := backbone.NewFileId()
	reply := make(chan ReceiveResult, 1)

	cmd := ReceiveFile(id, reply)
	require.Equal(t, kindReceive, cmd.kind)
	require.Equal(t, id, cmd.id)
	require.NotNil(t, cmd.reply)
}

func TestErrNotFoundMessage(t *testing.T) {
	require.Equal(t, "no backend could provide the requested file", ErrNotFound.Error())
}
