//go:build unix

package stream

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/cvmmap/internal/protocol"
	"github.com/bryanchriswhite/cvmmap/internal/shm"
)

func TestStream_SharedMemory_DeclaredSizeSmallerThanSegment(t *testing.T) {
	dir := t.TempDir()
	f, err := os.OpenFile(filepath.Join(dir, "psm_default"), os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(24))

	handle := shm.New("psm_default", shm.Options{Dir: dir})
	s, ch := newTestStream(t, handle, Options{})
	send(t, ch, protocol.Encode(protocol.FrameHeader{
		FrameCount: 1, Width: 4, Height: 2, Channels: 3, BufferSize: 10,
	}))

	fr, err := s.Next(context.Background())
	require.NoError(t, err)

	// The shape governs the view; the declared size is only a lower bound.
	assert.Equal(t, 24, fr.View.Len())
	assert.Equal(t, 24, handle.Len())

	_, err = f.WriteAt([]byte{7}, 23)
	require.NoError(t, err)
	assert.Equal(t, byte(7), fr.View.At(1, 3, 2))

	require.NoError(t, s.Close())
	_, err = os.Stat(filepath.Join(dir, "psm_default"))
	assert.NoError(t, err, "segment must survive the client")
}

func TestStream_SharedMemory_MissingSegment(t *testing.T) {
	handle := shm.New("missing_seg", shm.Options{Dir: t.TempDir()})
	s, ch := newTestStream(t, handle, Options{})
	send(t, ch, protocol.Encode(protocol.FrameHeader{
		FrameCount: 1, Width: 4, Height: 2, Channels: 3, BufferSize: 24,
	}))

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, shm.ErrAttachmentFailed)
	assert.Equal(t, StateClosed, s.State())
	assert.Zero(t, s.Stats().Yielded)
}
