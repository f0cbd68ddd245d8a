package config

import (
	"fmt"
	"path/filepath"
	"time"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Storage    StorageConfig
	Cache      CacheConfig
	YouTube    YouTubeConfig
	Perplexity PerplexityConfig
	Gemini     GeminiConfig
	API        APIConfig
}

type ServerConfig struct {
	Port      int
	RateLimit int // requests per minute per client IP
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

type CacheConfig struct {
	Backend   string // "badger" or "redis"
	RedisAddr string
	TTL       time.Duration
}

type YouTubeConfig struct {
	BaseURL string
	Timeout time.Duration
	QPS     float64
	APIKeys []string
}

type PerplexityConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type GeminiConfig struct {
	BaseURL string
	Models  []string
	APIKey  string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 120,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Cache: CacheConfig{
			Backend:   "badger",
			RedisAddr: "localhost:6379",
			TTL:       24 * time.Hour,
		},
		YouTube: YouTubeConfig{
			BaseURL: "https://youtube.googleapis.com/",
			Timeout: 30 * time.Second,
			QPS:     5,
		},
		Perplexity: PerplexityConfig{
			BaseURL: "https://api.perplexity.ai",
			Model:   "sonar",
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Models:  []string{"gemini-2.0-flash", "gemini-2.0-flash-lite", "gemini-2.5-flash", "gemini-flash-latest"},
		},
	}
}

// Load reads configuration from $XDG_CONFIG_HOME/learntube/config.json and
// applies LEARNTUBE_* environment overrides. Secrets are read from the
// environment only. Missing provider credentials are not an error; the
// affected clients fall back to offline behavior.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Cache.Backend {
	case "badger", "redis":
	default:
		return fmt.Errorf("invalid cache.backend %q: want badger or redis", c.Cache.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return nil
}

// DBPath is where the document store lives.
func (c Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "learntube.db")
}

// CacheDir is where the badger cache lives.
func (c Config) CacheDir() string {
	return filepath.Join(c.Storage.DataDir, "cache")
}

// PIDPath is the pid file written by `learntube start`.
func (c Config) PIDPath() string {
	return filepath.Join(c.Storage.DataDir, "learntube.pid")
}

// LockPath guards against two servers sharing one data dir.
func (c Config) LockPath() string {
	return filepath.Join(c.Storage.DataDir, "learntube.lock")
}
