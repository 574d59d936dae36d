package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds mpdbridge runtime configuration loaded from TOML.
type Config struct {
	MPD    MPDConfig    `toml:"mpd"`
	Art    ArtConfig    `toml:"art"`
	Notify NotifyConfig `toml:"notify"`
	Relay  RelayConfig  `toml:"relay"`
	UI     UIConfig     `toml:"ui"`
	Log    LogConfig    `toml:"log"`
}

type MPDConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	// MusicDirectory enables reading embedded art from local audio files.
	MusicDirectory string `toml:"music_directory"`
	KeepaliveSecs  int    `toml:"keepalive_secs"`
	RetrySecs      int    `toml:"retry_secs"`
	EventBuffer    int    `toml:"event_buffer"`
}

// ArtConfig holds cover art cache settings.
type ArtConfig struct {
	Disabled bool   `toml:"disabled"`
	CacheDir string `toml:"cache_dir"`
}

// NotifyConfig holds desktop notification settings.
type NotifyConfig struct {
	Disabled    bool   `toml:"disabled"`
	AppName     string `toml:"app_name"`
	DefaultIcon string `toml:"default_icon"`
}

// RelayConfig holds the HTTP/websocket relay settings.
type RelayConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type UIConfig struct {
	Theme      string `toml:"theme"`
	ArtCols    int    `toml:"art_cols"`
	ArtRows    int    `toml:"art_rows"`
	VolumeStep int    `toml:"volume_step"`
	NoArt      bool   `toml:"no_art"`
}

type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
	// ToFile writes logs under the user state directory instead of stderr.
	ToFile bool `toml:"to_file"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads configuration from disk. If path is empty, a default OS-specific
// location is used and a missing file yields the defaults. Environment
// overrides from MPD_HOST and MPD_PORT are applied last.
func Load(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		var err error
		cfgPath, err = defaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	var cfg Config
	data, err := os.ReadFile(cfgPath)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == "":
	case err != nil:
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, cfgPath, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, cfgPath, err
	}

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, err
	}

	return &cfg, cfgPath, nil
}

// LoadEnv loads variables from .env files into the process environment.
// Variables already set are kept. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

func defaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	name := "mpdbridge"
	if runtime.GOOS == "windows" {
		name = "MPDBridge"
	}
	return filepath.Join(dir, name, "config.toml"), nil
}

func applyDefaults(cfg *Config) {
	if cfg.MPD.Host == "" {
		cfg.MPD.Host = "localhost"
	}
	if cfg.MPD.Port == 0 {
		cfg.MPD.Port = 6600
	}
	if cfg.MPD.KeepaliveSecs == 0 {
		cfg.MPD.KeepaliveSecs = 55
	}
	if cfg.MPD.RetrySecs == 0 {
		cfg.MPD.RetrySecs = 5
	}
	if cfg.MPD.EventBuffer == 0 {
		cfg.MPD.EventBuffer = 50
	}
	if cfg.Relay.Listen == "" {
		cfg.Relay.Listen = "127.0.0.1:6680"
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = "default"
	}
	if cfg.UI.ArtCols == 0 {
		cfg.UI.ArtCols = 20
	}
	if cfg.UI.ArtRows == 0 {
		cfg.UI.ArtRows = 10
	}
	if cfg.UI.VolumeStep == 0 {
		cfg.UI.VolumeStep = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// applyEnv honours the MPD_HOST and MPD_PORT conventions shared by MPD
// clients. MPD_HOST may carry a password as "password@host".
func applyEnv(cfg *Config) error {
	if v := lookupEnv("MPD_HOST"); v != "" {
		if pass, host, ok := strings.Cut(v, "@"); ok && host != "" {
			cfg.MPD.Password = pass
			v = host
		}
		cfg.MPD.Host = v
	}
	if v := lookupEnv("MPD_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MPD_PORT %q: %w", v, err)
		}
		cfg.MPD.Port = port
	}
	return nil
}

// Validate performs semantic validation of config.
func Validate(cfg Config) error {
	if cfg.MPD.Host == "" {
		return errors.New("mpd.host is required")
	}
	if cfg.MPD.Port <= 0 || cfg.MPD.Port > 65535 {
		return fmt.Errorf("mpd.port must be 1-65535, got %d", cfg.MPD.Port)
	}
	if cfg.MPD.KeepaliveSecs < 0 || cfg.MPD.RetrySecs < 0 || cfg.MPD.EventBuffer < 0 {
		return errors.New("mpd intervals and event_buffer must not be negative")
	}
	if dir := cfg.MPD.MusicDirectory; dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("mpd.music_directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("mpd.music_directory %s is not a directory", dir)
		}
	}
	if cfg.Relay.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Relay.Listen); err != nil {
			return fmt.Errorf("relay.listen: %w", err)
		}
	}
	if cfg.UI.VolumeStep < 1 || cfg.UI.VolumeStep > 100 {
		return fmt.Errorf("ui.volume_step must be 1-100")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level: %s", cfg.Log.Level)
	}
	return nil
}

// Addr returns the host:port of the MPD server.
func (c Config) Addr() string {
	return net.JoinHostPort(c.MPD.Host, strconv.Itoa(c.MPD.Port))
}

// KeepaliveInterval returns the keepalive period.
func (c Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.MPD.KeepaliveSecs) * time.Second
}

// RetryInterval returns the delay between reconnect attempts.
func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.MPD.RetrySecs) * time.Second
}

// lookupEnv is a test seam.
var lookupEnv = os.Getenv
