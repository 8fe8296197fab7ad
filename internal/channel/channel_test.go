package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ConnectFailed(t *testing.T) {
	m := NewMemory(4)
	err := m.Connect(context.Background(), "")
	assert.ErrorIs(t, err, ErrConnectFailed)
}

func TestMemory_NotConnected(t *testing.T) {
	m := NewMemory(4)
	_, err := m.Receive(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, m.Poll(context.Background()), ErrNotConnected)
}

func TestMemory_PollThenReceive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)
	require.NoError(t, m.Connect(ctx, "inproc://frames"))
	assert.Equal(t, "inproc://frames", m.Address())

	require.NoError(t, m.Send(ctx, []byte("a")))
	require.NoError(t, m.Send(ctx, []byte("b")))

	require.NoError(t, m.Poll(ctx))
	// A second poll does not consume another datagram.
	require.NoError(t, m.Poll(ctx))

	b, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), b)

	b, err = m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), b)
}

func TestMemory_PollCancelled(t *testing.T) {
	m := NewMemory(1)
	require.NoError(t, m.Connect(context.Background(), "inproc://x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Poll(ctx), context.DeadlineExceeded)
}

func TestMemory_FailDrainsQueueFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)
	require.NoError(t, m.Connect(ctx, "inproc://x"))

	require.NoError(t, m.Send(ctx, []byte("last")))
	m.Fail(errors.New("peer went away"))

	b, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("last"), b)

	_, err = m.Receive(ctx)
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Contains(t, err.Error(), "peer went away")
}

func TestMemory_SendBlocksAtHighWaterMark(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(1)
	require.NoError(t, m.Connect(ctx, "inproc://x"))
	require.NoError(t, m.Send(ctx, []byte("1")))

	sendCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Send(sendCtx, []byte("2")), context.DeadlineExceeded)
}

func TestMemory_Close(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(1)
	require.NoError(t, m.Connect(ctx, "inproc://x"))
	require.NoError(t, m.Close())

	_, err := m.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Send(ctx, []byte("x")), ErrClosed)
}

func TestMemory_SendAfterFailAlwaysRejected(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		m := NewMemory(4)
		require.NoError(t, m.Connect(ctx, "inproc://x"))
		m.Fail(errors.New("gone"))
		require.ErrorIs(t, m.Send(ctx, []byte("x")), ErrDisconnected)
		require.NoError(t, m.Close())
		require.ErrorIs(t, m.Send(ctx, []byte("x")), ErrDisconnected)
	}
}
