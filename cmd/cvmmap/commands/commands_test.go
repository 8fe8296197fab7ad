//go:build unix

package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/cvmmap"
	"github.com/bryanchriswhite/cvmmap/internal/channel"
	"github.com/bryanchriswhite/cvmmap/internal/protocol"
	"github.com/bryanchriswhite/cvmmap/internal/stream"
)

type recorder struct {
	mu     sync.Mutex
	counts []uint32
	ids    map[string]bool
	live   *current
	after  int
	cancel context.CancelFunc
}

func (r *recorder) Start() error    { return nil }
func (r *recorder) Stop() error     { return nil }
func (r *recorder) Name() string    { return "recorder" }
func (r *recorder) IsRunning() bool { return true }

func (r *recorder) WriteFrame(f stream.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, f.Header.FrameCount)
	if r.live != nil {
		r.ids[r.live.Stats().ID] = true
	}
	if len(r.counts) == r.after {
		r.cancel()
	}
	return nil
}

func newSegment(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "psm_default"), make([]byte, 24), 0o600))
	return dir
}

// failingChannels hands out channels that deliver n frames and then drop
func failingChannels(n uint32) (func() cvmmap.Channel, *int) {
	var made int
	return func() cvmmap.Channel {
		made++
		m := channel.NewMemory(int(n) + 1)
		ctx := context.Background()
		for i := uint32(1); i <= n; i++ {
			m.Send(ctx, protocol.Encode(protocol.FrameHeader{FrameCount: i, Width: 4, Height: 2, Channels: 3, BufferSize: 24}))
		}
		m.Fail(errors.New("producer went away"))
		return m
	}, &made
}

func TestConsume_RestartsFailedStream(t *testing.T) {
	dir := newSegment(t)
	newChannel, made := failingChannels(2)
	client := cvmmap.New("psm_default", "inproc://test",
		cvmmap.WithSharedMemoryDir(dir),
		cvmmap.WithChannel(newChannel),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	live := &current{}
	rec := &recorder{ids: map[string]bool{}, live: live, after: 4, cancel: cancel}
	require.NoError(t, consume(ctx, client, live, 5*time.Millisecond, rec))

	assert.Equal(t, []uint32{1, 2, 1, 2}, rec.counts)
	assert.Len(t, rec.ids, 2)
	assert.Equal(t, 2, *made)
	assert.Equal(t, stream.StateClosed, live.Stats().State)
}

func TestConsume_NoRetry(t *testing.T) {
	dir := newSegment(t)
	newChannel, made := failingChannels(1)
	client := cvmmap.New("psm_default", "inproc://test",
		cvmmap.WithSharedMemoryDir(dir),
		cvmmap.WithChannel(newChannel),
	)

	rec := &recorder{ids: map[string]bool{}, cancel: func() {}}
	err := consume(context.Background(), client, &current{}, 0, rec)
	assert.ErrorIs(t, err, channel.ErrDisconnected)
	assert.Equal(t, []uint32{1}, rec.counts)
	assert.Equal(t, 1, *made)
}

func TestCurrent_NoStream(t *testing.T) {
	st := (&current{}).Stats()
	assert.Equal(t, stream.StateIdle, st.State)
	assert.Empty(t, st.ID)
}

func TestWatchFrames_Limit(t *testing.T) {
	dir := newSegment(t)
	newChannel, _ := failingChannels(3)
	s := cvmmap.New("psm_default", "inproc://test",
		cvmmap.WithSharedMemoryDir(dir),
		cvmmap.WithChannel(newChannel),
	).Stream()
	defer s.Close()

	var seen []uint32
	err := watchFrames(context.Background(), s, 2, func(f cvmmap.Frame) error {
		seen = append(seen, f.Header.FrameCount)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, seen)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))

	_, err = execute(t, "--config", path, "config", "set", "segment_name", "cam0")
	require.NoError(t, err)

	out, err = execute(t, "--config", path, "config", "get", "segment_name")
	require.NoError(t, err)
	assert.Equal(t, "cam0", strings.TrimSpace(out))

	_, err = execute(t, "--config", path, "config", "set", "socket", "dealer")
	assert.Error(t, err)

	out, err = execute(t, "--config", path, "config", "show", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"segment_name": "cam0"`)

	_, err = execute(t, "--config", path, "config", "get", "no_such_key")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	assert.Equal(t, fmt.Sprintf("%016x", xxhash.Sum64(a)), fingerprint(a))
	assert.Len(t, fingerprint(nil), 16)
	assert.NotEqual(t, fingerprint(a), fingerprint([]byte{1, 2, 3, 5}))
}
