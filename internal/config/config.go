// Package config handles player configuration file management.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/lo"
)

// ErrInvalidConfig matches every validation failure returned by Validate
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the player configuration
type Config struct {
	// LibraryPaths are the song directories offered for selection
	LibraryPaths []string `json:"libraryPaths"`

	Audio AudioConfig `json:"audio"`

	Behavior BehaviorConfig `json:"behavior"`
}

// AudioConfig contains engine and output settings
type AudioConfig struct {
	// CompressionFactor is the decimation ratio; the device runs at rate/factor
	CompressionFactor int `json:"compressionFactor"`

	// BufferSize is the sink buffer in bytes of decimated PCM
	BufferSize int `json:"bufferSize"`

	// ProgressInterval is the number of worker iterations between progress events
	ProgressInterval int `json:"progressInterval"`

	// Volume level 0.0 - 1.0 (default: 1.0)
	DefaultVolume float64 `json:"defaultVolume"`
}

// BehaviorConfig contains behavior-related settings
type BehaviorConfig struct {
	// RememberHistory records every selected file in history.json
	RememberHistory bool `json:"rememberHistory"`

	// AutoPlayOnSelect starts playback as soon as a file is selected
	AutoPlayOnSelect bool `json:"autoPlayOnSelect"`

	// WatchLibrary rescans song directories when their contents change
	WatchLibrary bool `json:"watchLibrary"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LibraryPaths: []string{},
		Audio: AudioConfig{
			CompressionFactor: 2,
			BufferSize:        32768,
			ProgressInterval:  50,
			DefaultVolume:     1.0,
		},
		Behavior: BehaviorConfig{
			RememberHistory:  true,
			AutoPlayOnSelect: true,
			WatchLibrary:     false,
		},
	}
}

// Validate checks the values the engine depends on
func (c *Config) Validate() error {
	f := c.Audio.CompressionFactor
	if f < 1 || (f != 1 && f%2 != 0) {
		return fmt.Errorf("%w: compressionFactor must be 1 or an even number, got %d", ErrInvalidConfig, f)
	}
	if c.Audio.BufferSize <= 0 {
		return fmt.Errorf("%w: bufferSize must be positive, got %d", ErrInvalidConfig, c.Audio.BufferSize)
	}
	if c.Audio.ProgressInterval <= 0 {
		return fmt.Errorf("%w: progressInterval must be positive, got %d", ErrInvalidConfig, c.Audio.ProgressInterval)
	}
	if c.Audio.DefaultVolume < 0 || c.Audio.DefaultVolume > 1 {
		return fmt.Errorf("%w: defaultVolume must be between 0.0 and 1.0, got %v", ErrInvalidConfig, c.Audio.DefaultVolume)
	}
	return nil
}

// DefaultDir returns ~/.config/falplayer, or the OS equivalent
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, "falplayer"), nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.RWMutex
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk, creating it with defaults if missing.
// Fields absent from the file keep their defaults.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.config = DefaultConfig()
		return m.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%s: %w", m.configPath, err)
	}

	m.config = config
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := *m.config
	c.LibraryPaths = append([]string(nil), m.config.LibraryPaths...)
	return c
}

// Dir returns the directory holding config.json and the other state files
func (m *Manager) Dir() string {
	return m.configDir
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}

// Update validates and stores a new configuration
func (m *Manager) Update(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &config
	return m.saveLocked()
}

// AddLibraryPath adds a song directory. Adding a known directory is a no-op.
func (m *Manager) AddLibraryPath(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lo.Contains(m.config.LibraryPaths, path) {
		return nil
	}
	m.config.LibraryPaths = append(m.config.LibraryPaths, path)
	return m.saveLocked()
}

// RemoveLibraryPath removes a song directory
func (m *Manager) RemoveLibraryPath(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config.LibraryPaths = lo.Without(m.config.LibraryPaths, path)
	return m.saveLocked()
}
