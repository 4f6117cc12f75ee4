package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	BackendURL    string        `json:"backend_url" yaml:"backend_url"`
	DataDir       string        `json:"data_dir" yaml:"data_dir"`
	DefaultVolume int           `json:"default_volume" yaml:"default_volume"`
	Settings      api.Settings  `json:"settings" yaml:"settings"`
	Log           logger.Config `json:"log" yaml:"log"`
	StateStore    string        `json:"state_store" yaml:"state_store"`
	RedisAddr     string        `json:"redis_addr" yaml:"redis_addr"`
	PostgresDSN   string        `json:"postgres_dsn" yaml:"postgres_dsn"`
	BlobStore     string        `json:"blob_store" yaml:"blob_store"`
	Minio         MinioConfig   `json:"minio" yaml:"minio"`
	MPRIS         bool          `json:"mpris" yaml:"mpris"`
	KeyBindings   KeyMap        `json:"key_bindings" yaml:"key_bindings"`
}

// MinioConfig points the download store at an S3-compatible bucket
type MinioConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
}

// KeyMap defines keyboard shortcuts
type KeyMap struct {
	PlayPause   string `json:"play_pause" yaml:"play_pause"`
	Stop        string `json:"stop" yaml:"stop"`
	Next        string `json:"next" yaml:"next"`
	Previous    string `json:"previous" yaml:"previous"`
	VolumeUp    string `json:"volume_up" yaml:"volume_up"`
	VolumeDown  string `json:"volume_down" yaml:"volume_down"`
	SeekForward string `json:"seek_forward" yaml:"seek_forward"`
	SeekBack    string `json:"seek_back" yaml:"seek_back"`
	Shuffle     string `json:"shuffle" yaml:"shuffle"`
	Repeat      string `json:"repeat" yaml:"repeat"`
	Retry       string `json:"retry" yaml:"retry"`
	Remove      string `json:"remove" yaml:"remove"`
	PlayNext    string `json:"play_next" yaml:"play_next"`
	Quit        string `json:"quit" yaml:"quit"`
}

// Store backends
const (
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMinio    = "minio"
)

// DefaultSettings mirrors the web client's first-run preferences.
func DefaultSettings() api.Settings {
	return api.Settings{
		AudioQuality:     "lossless",
		AutoPlay:         true,
		CrossfadeSeconds: 3,
		NormalizeVolume:  true,
	}
}

// GetDefaultConfig returns default configuration
func GetDefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		BackendURL:    "http://localhost:3001/api",
		DataDir:       dataDir,
		DefaultVolume: 80,
		Settings:      DefaultSettings(),
		Log:           logger.DefaultConfig(dataDir),
		StateStore:    StoreFile,
		RedisAddr:     "localhost:6379",
		BlobStore:     StoreFile,
		Minio: MinioConfig{
			Endpoint: "localhost:9000",
			Bucket:   "supersonic-downloads",
		},
		MPRIS: true,
		KeyBindings: KeyMap{
			PlayPause:   " ",
			Stop:        "s",
			Next:        "n",
			Previous:    "p",
			VolumeUp:    "+",
			VolumeDown:  "-",
			SeekForward: "right",
			SeekBack:    "left",
			Shuffle:     "S",
			Repeat:      "r",
			Retry:       "R",
			Remove:      "d",
			PlayNext:    "a",
			Quit:        "q",
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig reads and unmarshals configuration from file. Missing keys
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	config := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

// SaveConfig marshals and saves configuration to file
func SaveConfig(config *Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadOrCreate loads config from path or creates default if not exists
func LoadOrCreate(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Save default config if file didn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := SaveConfig(config, path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	return config, nil
}

// Load reads the config at path, then layers .env and SUPERSONIC_*
// environment variables on top.
func Load(path string) (*Config, error) {
	config, err := LoadOrCreate(path)
	if err != nil {
		return nil, err
	}
	// A missing .env is normal; the process environment still applies.
	_ = godotenv.Load()
	ApplyEnv(config)
	return config, nil
}

// ApplyEnv overrides config fields from SUPERSONIC_* variables.
func ApplyEnv(c *Config) {
	c.BackendURL = getEnv("SUPERSONIC_BACKEND_URL", c.BackendURL)
	c.DataDir = getEnv("SUPERSONIC_DATA_DIR", c.DataDir)
	c.StateStore = getEnv("SUPERSONIC_STATE_STORE", c.StateStore)
	c.RedisAddr = getEnv("SUPERSONIC_REDIS_ADDR", c.RedisAddr)
	c.PostgresDSN = getEnv("SUPERSONIC_POSTGRES_DSN", c.PostgresDSN)
	c.BlobStore = getEnv("SUPERSONIC_BLOB_STORE", c.BlobStore)
	c.Minio.Endpoint = getEnv("SUPERSONIC_MINIO_ENDPOINT", c.Minio.Endpoint)
	c.Minio.AccessKey = getEnv("SUPERSONIC_MINIO_ACCESS_KEY", c.Minio.AccessKey)
	c.Minio.SecretKey = getEnv("SUPERSONIC_MINIO_SECRET_KEY", c.Minio.SecretKey)
	c.Minio.Bucket = getEnv("SUPERSONIC_MINIO_BUCKET", c.Minio.Bucket)
	c.Log.Level = getEnv("SUPERSONIC_LOG_LEVEL", c.Log.Level)
	c.DefaultVolume = getEnvInt("SUPERSONIC_VOLUME", c.DefaultVolume)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	// Check environment variable first
	if path := os.Getenv("SUPERSONIC_CONFIG"); path != "" {
		return path
	}

	// Use XDG config directory if available
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "supersonic", "config.json")
	}

	// Fall back to home directory
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(home, ".config", "supersonic", "config.json")
}

func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "supersonic")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "supersonic")
}
