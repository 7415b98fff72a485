// Package config loads the RadioWave YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen          = ":25565"
	defaultStaticListen    = "127.0.0.1:25566"
	defaultStaticDir       = "public"
	defaultDirTimeoutSec   = 10
	defaultPreloadLimit    = 5
	defaultPreloadParallel = 3
	defaultProbeTimeoutSec = 5
	defaultCacheVersion    = "radio-app-v7"
	defaultCachePath       = "data/shell-cache.db"
	defaultMPDHost         = "localhost"
	defaultMPDPort         = 6600
	defaultWatchdogSec     = 8
	defaultMaxAttempts     = 2
	defaultDBPath          = "data/radiowave.db"
	defaultMusicDir        = "data/music"
	defaultMaxUploadMB     = 200
)

// ErrConfigMissing is returned after a template has been written to a missing path.
var ErrConfigMissing = errors.New("config file missing, a template was written")

// ValidationError aggregates config validation issues.
type ValidationError struct {
	Issues []string
}

func (v ValidationError) Error() string {
	if len(v.Issues) == 0 {
		return "config validation failed"
	}
	if len(v.Issues) == 1 {
		return v.Issues[0]
	}
	return fmt.Sprintf("config validation failed: %s", v.Issues)
}

// Config is the full server configuration.
type Config struct {
	Listen       string          `yaml:"listen"`
	StaticListen string          `yaml:"static_listen"`
	StaticDir    string          `yaml:"static_dir"`
	Directory    DirectoryConfig `yaml:"directory"`
	Preload      PreloadConfig   `yaml:"preload"`
	Cache        CacheConfig     `yaml:"cache"`
	Player       PlayerConfig    `yaml:"player"`
	Library      LibraryConfig   `yaml:"library"`
}

// DirectoryConfig configures the station directory client.
type DirectoryConfig struct {
	Mirrors       []string `yaml:"mirrors"`
	DiscoveryURL  string   `yaml:"discovery_url"`
	SkipDiscovery bool     `yaml:"skip_discovery"`
	TimeoutSec    int      `yaml:"timeout_sec"`
	UserAgent     string   `yaml:"user_agent"`
}

// PreloadConfig tunes the stream preload window.
type PreloadConfig struct {
	Limit           int `yaml:"limit"`
	Concurrency     int `yaml:"concurrency"`
	ProbeTimeoutSec int `yaml:"probe_timeout_sec"`
}

// CacheConfig configures the offline shell cache.
type CacheConfig struct {
	Version string `yaml:"version"`
	Path    string `yaml:"path"`
	// ShellOrigin overrides the local static server as the source of shell assets.
	ShellOrigin string   `yaml:"shell_origin"`
	Manifest    []string `yaml:"manifest"`
}

// PlayerConfig configures playback through MPD.
type PlayerConfig struct {
	MPDHost     string `yaml:"mpd_host"`
	MPDPort     int    `yaml:"mpd_port"`
	MPDPassword string `yaml:"mpd_password"`
	WatchdogSec int    `yaml:"watchdog_sec"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// LibraryConfig configures favorites and uploads.
type LibraryConfig struct {
	DBPath      string `yaml:"db_path"`
	MusicDir    string `yaml:"music_dir"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads config from path. An empty path yields the defaults. When the file does
// not exist a template is written there and ErrConfigMissing is returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if writeErr := writeTemplate(path); writeErr != nil {
				return nil, writeErr
			}
			return nil, ErrConfigMissing
		}
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if vErr := cfg.validate(); len(vErr.Issues) > 0 {
		return nil, vErr
	}
	return &cfg, nil
}

// DirectoryTimeout is the per-request directory timeout.
func (c *Config) DirectoryTimeout() time.Duration {
	return time.Duration(c.Directory.TimeoutSec) * time.Second
}

// ProbeTimeout bounds one preload probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Preload.ProbeTimeoutSec) * time.Second
}

// Watchdog bounds one playback attempt.
func (c *Config) Watchdog() time.Duration {
	return time.Duration(c.Player.WatchdogSec) * time.Second
}

// MaxUploadBytes bounds a single uploaded track.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Library.MaxUploadMB) << 20
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.StaticListen == "" {
		c.StaticListen = defaultStaticListen
	}
	if c.StaticDir == "" {
		c.StaticDir = defaultStaticDir
	}
	if c.Directory.TimeoutSec == 0 {
		c.Directory.TimeoutSec = defaultDirTimeoutSec
	}
	if c.Preload.Limit == 0 {
		c.Preload.Limit = defaultPreloadLimit
	}
	if c.Preload.Concurrency == 0 {
		c.Preload.Concurrency = defaultPreloadParallel
	}
	if c.Preload.ProbeTimeoutSec == 0 {
		c.Preload.ProbeTimeoutSec = defaultProbeTimeoutSec
	}
	if c.Cache.Version == "" {
		c.Cache.Version = defaultCacheVersion
	}
	if c.Cache.Path == "" {
		c.Cache.Path = defaultCachePath
	}
	if c.Player.MPDHost == "" {
		c.Player.MPDHost = defaultMPDHost
	}
	if c.Player.MPDPort == 0 {
		c.Player.MPDPort = defaultMPDPort
	}
	if c.Player.WatchdogSec == 0 {
		c.Player.WatchdogSec = defaultWatchdogSec
	}
	if c.Player.MaxAttempts == 0 {
		c.Player.MaxAttempts = defaultMaxAttempts
	}
	if c.Library.DBPath == "" {
		c.Library.DBPath = defaultDBPath
	}
	if c.Library.MusicDir == "" {
		c.Library.MusicDir = defaultMusicDir
	}
	if c.Library.MaxUploadMB == 0 {
		c.Library.MaxUploadMB = defaultMaxUploadMB
	}
}

func (c Config) validate() ValidationError {
	issues := make([]string, 0)

	for _, m := range c.Directory.Mirrors {
		if !isHTTPURL(m) {
			issues = append(issues, fmt.Sprintf("directory.mirrors: %q is not an http(s) url", m))
		}
	}
	if c.Directory.DiscoveryURL != "" && !isHTTPURL(c.Directory.DiscoveryURL) {
		issues = append(issues, "directory.discovery_url must be an http(s) url")
	}
	if c.Directory.TimeoutSec <= 0 {
		issues = append(issues, "directory.timeout_sec must be > 0")
	}
	if c.Preload.Limit <= 0 {
		issues = append(issues, "preload.limit must be > 0")
	}
	if c.Preload.Concurrency <= 0 {
		issues = append(issues, "preload.concurrency must be > 0")
	}
	if c.Preload.ProbeTimeoutSec <= 0 {
		issues = append(issues, "preload.probe_timeout_sec must be > 0")
	}
	if c.Cache.ShellOrigin != "" && !isHTTPURL(c.Cache.ShellOrigin) {
		issues = append(issues, "cache.shell_origin must be an http(s) url")
	}
	if c.Player.MPDPort <= 0 || c.Player.MPDPort > 65535 {
		issues = append(issues, "player.mpd_port must be in (0,65535]")
	}
	if c.Player.WatchdogSec <= 0 {
		issues = append(issues, "player.watchdog_sec must be > 0")
	}
	if c.Player.MaxAttempts <= 0 {
		issues = append(issues, "player.max_attempts must be > 0")
	}
	if c.Library.MaxUploadMB <= 0 {
		issues = append(issues, "library.max_upload_mb must be > 0")
	}

	return ValidationError{Issues: issues}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func writeTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tpl := bytes.NewBufferString("# RadioWave configuration\n")
	tpl.WriteString("listen: \":25565\"\n")
	tpl.WriteString("static_listen: \"127.0.0.1:25566\"\n")
	tpl.WriteString("static_dir: public\n")
	tpl.WriteString("directory:\n")
	tpl.WriteString("  # mirrors: [\"https://de1.api.radio-browser.info\"]\n")
	tpl.WriteString("  skip_discovery: false\n")
	tpl.WriteString("  timeout_sec: 10\n")
	tpl.WriteString("preload:\n")
	tpl.WriteString("  limit: 5\n")
	tpl.WriteString("  concurrency: 3\n")
	tpl.WriteString("  probe_timeout_sec: 5\n")
	tpl.WriteString("cache:\n")
	tpl.WriteString("  version: radio-app-v7\n")
	tpl.WriteString("  path: data/shell-cache.db\n")
	tpl.WriteString("  # shell_origin: https://radio.example.com/\n")
	tpl.WriteString("player:\n")
	tpl.WriteString("  mpd_host: localhost\n")
	tpl.WriteString("  mpd_port: 6600\n")
	tpl.WriteString("  watchdog_sec: 8\n")
	tpl.WriteString("  max_attempts: 2\n")
	tpl.WriteString("library:\n")
	tpl.WriteString("  db_path: data/radiowave.db\n")
	tpl.WriteString("  music_dir: data/music\n")
	tpl.WriteString("  max_upload_mb: 200\n")

	if err := os.WriteFile(path, tpl.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config template: %w", err)
	}
	return nil
}
