// Package config loads the Fermata configuration from a TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	MPD     MPDConfig     `toml:"mpd"`
	Library LibraryConfig `toml:"library"`
	LastFM  LastFMConfig  `toml:"lastfm"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	StaticDir   string `toml:"static_dir"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
}

// MPDConfig contains playback engine connection settings.
type MPDConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
}

// LibraryConfig contains library store and scan settings.
type LibraryConfig struct {
	DatabasePath    string `toml:"database_path"`
	PrefsPath       string `toml:"prefs_path"`
	MusicDir        string `toml:"music_dir"`
	ScanOnStartup   bool   `toml:"scan_on_startup"`
	WatchForChanges bool   `toml:"watch_for_changes"`
}

// LastFMConfig contains Last.fm API credentials.
// Key and secret are normally supplied via FERMATA_LASTFM_API_KEY and
// FERMATA_LASTFM_API_SECRET rather than the config file.
type LastFMConfig struct {
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "3001",
			Host:        "0.0.0.0",
			ReadTimeout: 30,
		},
		MPD: MPDConfig{
			Host: "localhost",
			Port: 6600,
		},
		Library: LibraryConfig{
			DatabasePath:    "data/library.db",
			PrefsPath:       "data/prefs.json",
			MusicDir:        "",
			ScanOnStartup:   true,
			WatchForChanges: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration file at path, applying defaults for anything
// the file does not set. A missing file is not an error; the defaults are
// returned and a file is written so the user has something to edit.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// .env is optional; it carries the Last.fm API credentials on dev machines.
	_ = godotenv.Load()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		cfg.applyEnv()
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the configuration to path in TOML format.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables on top of the file values.
// Environment always wins so secrets never need to live in the TOML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("FERMATA_LASTFM_API_KEY"); v != "" {
		c.LastFM.APIKey = v
	}
	if v := os.Getenv("FERMATA_LASTFM_API_SECRET"); v != "" {
		c.LastFM.APISecret = v
	}
	if v := os.Getenv("FERMATA_MPD_PASSWORD"); v != "" {
		c.MPD.Password = v
	}
}
