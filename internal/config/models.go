package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/cvmmap/internal/logger"
)

// Config represents the client configuration
type Config struct {
	SegmentName      string `json:"segment_name" yaml:"segment_name"`
	Address          string `json:"address" yaml:"address"`
	Socket           string `json:"socket" yaml:"socket"`
	Topic            string `json:"topic,omitempty" yaml:"topic,omitempty"`
	HighWaterMark    int    `json:"high_water_mark" yaml:"high_water_mark"`
	ShmDir           string `json:"shm_dir" yaml:"shm_dir"`
	StrictDimensions bool   `json:"strict_dimensions" yaml:"strict_dimensions"`

	LogLevel   string `json:"log_level" yaml:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty"`
	ServerPort int    `json:"server_port" yaml:"server_port"`

	Viewer ViewerConfig `json:"viewer" yaml:"viewer"`
	Dump   DumpConfig   `json:"dump" yaml:"dump"`
}

// ViewerConfig controls the MJPEG viewer started by `serve`
type ViewerConfig struct {
	FPS     int  `json:"fps" yaml:"fps"`
	Quality int  `json:"quality" yaml:"quality"`
	Overlay bool `json:"overlay" yaml:"overlay"`
}

// DumpConfig controls the disk writer started by `dump`
type DumpConfig struct {
	Dir    string `json:"dir" yaml:"dir"`
	Format string `json:"format" yaml:"format"`
	Every  int    `json:"every" yaml:"every"`
}

var (
	validSockets = map[string]bool{"pull": true, "sub": true}
	validFormats = map[string]bool{"png": true, "bmp": true, "tiff": true, "raw": true}
	validLevels  = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
)

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		SegmentName:   "psm_default",
		Address:       "ipc:///tmp/0",
		Socket:        "pull",
		HighWaterMark: 16,
		ShmDir:        "/dev/shm",
		LogLevel:      "info",
		ServerPort:    8080,
		Viewer: ViewerConfig{
			FPS:     15,
			Quality: 85,
			Overlay: true,
		},
		Dump: DumpConfig{
			Dir:    "frames",
			Format: "png",
			Every:  1,
		},
	}
}

// Validate checks field ranges and enumerations
func (c *Config) Validate() error {
	if c.SegmentName == "" {
		return fmt.Errorf("segment_name is required")
	}
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if !validSockets[c.Socket] {
		return fmt.Errorf("invalid socket: %s (use: pull, sub)", c.Socket)
	}
	if c.HighWaterMark < 1 {
		return fmt.Errorf("high_water_mark must be positive, got %d", c.HighWaterMark)
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (use: trace, debug, info, warn, error)", c.LogLevel)
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid port number: %d", c.ServerPort)
	}
	if c.Viewer.FPS < 1 {
		return fmt.Errorf("viewer.fps must be positive, got %d", c.Viewer.FPS)
	}
	if c.Viewer.Quality < 1 || c.Viewer.Quality > 100 {
		return fmt.Errorf("viewer.quality must be within 1-100, got %d", c.Viewer.Quality)
	}
	if !validFormats[c.Dump.Format] {
		return fmt.Errorf("invalid dump format: %s (use: png, bmp, tiff, raw)", c.Dump.Format)
	}
	if c.Dump.Every < 1 {
		return fmt.Errorf("dump.every must be positive, got %d", c.Dump.Every)
	}
	return nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/cvmmap/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "cvmmap", "config.yaml"), nil
}

// NewManager loads the config file, creating it with defaults if missing
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		def, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
	}

	m := &Manager{
		configPath: path,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("segment", m.config.SegmentName).
		Str("address", m.config.Address).
		Msg("Config loaded")

	return m, nil
}

// load reads the configuration from disk; missing keys keep their defaults
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the configuration after validating it and saves it
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// Apply overrides fields with any keys explicitly set in v (flags, env).
// The result is not saved.
func (m *Manager) Apply(v *viper.Viper) error {
	cfg := m.Get()
	for _, key := range Keys() {
		if !v.IsSet(key) {
			continue
		}
		val := v.GetString(key)
		if val == "" {
			continue
		}
		if err := setField(cfg, key, val); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Set parses value for key, validates the result and saves it
func (m *Manager) Set(key, value string) error {
	cfg := m.Get()
	if err := setField(cfg, key, value); err != nil {
		return err
	}
	return m.Update(cfg)
}

// Lookup returns the value stored under a dotted key
func (m *Manager) Lookup(key string) (interface{}, error) {
	cfg := m.Get()
	switch key {
	case "segment_name":
		return cfg.SegmentName, nil
	case "address":
		return cfg.Address, nil
	case "socket":
		return cfg.Socket, nil
	case "topic":
		return cfg.Topic, nil
	case "high_water_mark":
		return cfg.HighWaterMark, nil
	case "shm_dir":
		return cfg.ShmDir, nil
	case "strict_dimensions":
		return cfg.StrictDimensions, nil
	case "log_level":
		return cfg.LogLevel, nil
	case "log_pretty":
		return cfg.LogPretty, nil
	case "server_port":
		return cfg.ServerPort, nil
	case "viewer.fps":
		return cfg.Viewer.FPS, nil
	case "viewer.quality":
		return cfg.Viewer.Quality, nil
	case "viewer.overlay":
		return cfg.Viewer.Overlay, nil
	case "dump.dir":
		return cfg.Dump.Dir, nil
	case "dump.format":
		return cfg.Dump.Format, nil
	case "dump.every":
		return cfg.Dump.Every, nil
	default:
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
}

// Keys lists every settable configuration key
func Keys() []string {
	return []string{
		"segment_name", "address", "socket", "topic", "high_water_mark", "shm_dir",
		"strict_dimensions", "log_level", "log_pretty", "server_port",
		"viewer.fps", "viewer.quality", "viewer.overlay", "dump.dir", "dump.format", "dump.every",
	}
}

func setField(cfg *Config, key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %s", key, value)
		}
		return n, nil
	}
	atob := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %s (use: true or false)", key, value)
		}
		return b, nil
	}

	var err error
	switch key {
	case "segment_name":
		cfg.SegmentName = value
	case "address":
		cfg.Address = value
	case "socket":
		cfg.Socket = strings.ToLower(value)
	case "topic":
		cfg.Topic = value
	case "high_water_mark":
		cfg.HighWaterMark, err = atoi()
	case "shm_dir":
		cfg.ShmDir = value
	case "strict_dimensions":
		cfg.StrictDimensions, err = atob()
	case "log_level":
		cfg.LogLevel = strings.ToLower(value)
	case "log_pretty":
		cfg.LogPretty, err = atob()
	case "server_port":
		cfg.ServerPort, err = atoi()
	case "viewer.fps":
		cfg.Viewer.FPS, err = atoi()
	case "viewer.quality":
		cfg.Viewer.Quality, err = atoi()
	case "viewer.overlay":
		cfg.Viewer.Overlay, err = atob()
	case "dump.dir":
		cfg.Dump.Dir = value
	case "dump.format":
		cfg.Dump.Format = strings.ToLower(value)
	case "dump.every":
		cfg.Dump.Every, err = atoi()
	default:
		return fmt.Errorf("configuration key not found: %s", key)
	}
	return err
}

// GetConfigPath returns the config file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the directory holding the config file
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
