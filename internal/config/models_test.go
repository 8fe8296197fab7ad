package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, path, m.GetConfigPath())
	assert.Equal(t, filepath.Dir(path), m.GetConfigDir())

	_, err = os.Stat(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, "psm_default", cfg.SegmentName)
	assert.Equal(t, "ipc:///tmp/0", cfg.Address)
	assert.Equal(t, "pull", cfg.Socket)
	assert.NoError(t, cfg.Validate())
}

func TestNewManager_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("segment_name: cam1\nsocket: sub\n"), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, "cam1", cfg.SegmentName)
	assert.Equal(t, "sub", cfg.Socket)
	assert.Equal(t, 16, cfg.HighWaterMark)
	assert.Equal(t, "png", cfg.Dump.Format)
}

func TestNewManager_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("socket: dealer\n"), 0o644))

	_, err := NewManager(path)
	assert.ErrorContains(t, err, "invalid socket")
}

func TestManager_SetAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	require.NoError(t, m.Set("server_port", "9090"))
	require.NoError(t, m.Set("strict_dimensions", "true"))
	require.NoError(t, m.Set("dump.format", "TIFF"))

	v, err := m.Lookup("server_port")
	require.NoError(t, err)
	assert.Equal(t, 9090, v)

	v, err = m.Lookup("dump.format")
	require.NoError(t, err)
	assert.Equal(t, "tiff", v)

	assert.Error(t, m.Set("server_port", "abc"))
	assert.Error(t, m.Set("server_port", "70000"))
	assert.Error(t, m.Set("viewer.quality", "0"))
	assert.Error(t, m.Set("nope", "1"))
	_, err = m.Lookup("nope")
	assert.Error(t, err)

	// Persisted across reloads.
	reloaded, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, reloaded.Get().ServerPort)
	assert.True(t, reloaded.Get().StrictDimensions)
}

func TestManager_Apply(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	v := viper.New()
	v.Set("address", "tcp://127.0.0.1:5555")
	v.Set("high_water_mark", 4)
	v.Set("log_level", "")

	require.NoError(t, m.Apply(v))
	cfg := m.Get()
	assert.Equal(t, "tcp://127.0.0.1:5555", cfg.Address)
	assert.Equal(t, 4, cfg.HighWaterMark)
	assert.Equal(t, "info", cfg.LogLevel)

	bad := viper.New()
	bad.Set("socket", "router")
	assert.Error(t, m.Apply(bad))
}

func TestKeysAreAllSettable(t *testing.T) {
	for _, key := range Keys() {
		_, err := (&Manager{config: Defaults()}).Lookup(key)
		assert.NoError(t, err, key)
	}
}
