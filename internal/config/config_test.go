package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func tempBackend(t *testing.T) *fileBackend {
	t.Helper()
	return newFileBackend(filepath.Join(t.TempDir(), "config.json"))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	cfg, err := loadWith(tempBackend(t))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "badger" || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Perplexity.Model != "sonar" {
		t.Errorf("model = %q, want sonar", cfg.Perplexity.Model)
	}
	if len(cfg.Gemini.Models) != 4 {
		t.Errorf("gemini models = %v", cfg.Gemini.Models)
	}
	if cfg.Storage.DataDir != "/tmp/xdg-data/learntube" {
		t.Errorf("data dir = %q", cfg.Storage.DataDir)
	}
	if cfg.DBPath() != "/tmp/xdg-data/learntube/learntube.db" {
		t.Errorf("db path = %q", cfg.DBPath())
	}
}

func TestLoad_FileValues(t *testing.T) {
	b := tempBackend(t)
	if err := b.SetInt("server.port", 9090); err != nil {
		t.Fatal(err)
	}
	if err := b.SetString("cache.ttl", "2h"); err != nil {
		t.Fatal(err)
	}
	if err := b.SetString("gemini.models", "m1, m2"); err != nil {
		t.Fatal(err)
	}

	// Reload from disk to exercise the JSON round trip.
	cfg, err := loadWith(newFileBackend(b.path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 2*time.Hour {
		t.Errorf("ttl = %v, want 2h", cfg.Cache.TTL)
	}
	if !slices.Equal(cfg.Gemini.Models, []string{"m1", "m2"}) {
		t.Errorf("models = %v", cfg.Gemini.Models)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	b := tempBackend(t)
	b.SetInt("server.port", 9090)
	t.Setenv("LEARNTUBE_SERVER_PORT", "7070")
	t.Setenv("LEARNTUBE_YOUTUBE_QPS", "2.5")
	t.Setenv("LEARNTUBE_YOUTUBE_API_KEYS", "k1, ,k2")
	t.Setenv("LEARNTUBE_PERPLEXITY_API_KEY", "pkey")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env value 7070", cfg.Server.Port)
	}
	if cfg.YouTube.QPS != 2.5 {
		t.Errorf("qps = %v", cfg.YouTube.QPS)
	}
	if !slices.Equal(cfg.YouTube.APIKeys, []string{"k1", "k2"}) {
		t.Errorf("api keys = %v", cfg.YouTube.APIKeys)
	}
	if cfg.Perplexity.APIKey != "pkey" {
		t.Errorf("perplexity key not read from env")
	}
}

func TestLoad_BadEnvKeepsDefault(t *testing.T) {
	t.Setenv("LEARNTUBE_SERVER_PORT", "not-a-number")
	t.Setenv("LEARNTUBE_CACHE_TTL", "-5m")

	cfg, err := loadWith(tempBackend(t))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("ttl = %v, want default", cfg.Cache.TTL)
	}
}

func TestLoad_SecretsIgnoredInFile(t *testing.T) {
	b := tempBackend(t)
	b.SetString("api.token", "from-file")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.API.Token != "" {
		t.Errorf("token = %q, secrets must come from env only", cfg.API.Token)
	}
}

func TestLoad_InvalidCacheBackend(t *testing.T) {
	t.Setenv("LEARNTUBE_CACHE_BACKEND", "memcached")
	if _, err := loadWith(tempBackend(t)); err == nil {
		t.Fatal("expected error for unknown cache backend")
	}
}

func TestSetKey(t *testing.T) {
	b := tempBackend(t)

	if err := setKeyIn(b, "cache.backend", "redis"); err != nil {
		t.Fatalf("setKeyIn: %v", err)
	}
	if v, ok, _ := b.GetString("cache.backend"); !ok || v != "redis" {
		t.Errorf("cache.backend = %q", v)
	}

	tests := []struct {
		key, value string
		want       string
	}{
		{"server.port", "abc", "invalid integer"},
		{"cache.ttl", "soon", "invalid duration"},
		{"youtube.qps", "fast", "invalid float"},
		{"perplexity.api_key", "x", "cannot set secret"},
		{"nope", "x", "unknown config key"},
	}
	for _, tt := range tests {
		err := setKeyIn(b, tt.key, tt.value)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("setKeyIn(%s, %s) = %v, want error containing %q", tt.key, tt.value, err, tt.want)
		}
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.API.Token = "secret-token"
	for _, k := range ShowAll(cfg) {
		if strings.Contains(k.Value, "secret-token") {
			t.Errorf("ShowAll leaked secret via %s", k.Key)
		}
	}
	if slices.Contains(ValidKeys(), "api.token") {
		t.Error("ValidKeys lists a secret")
	}
	if st := SecretStatus(cfg); !st["LEARNTUBE_API_TOKEN"] || st["LEARNTUBE_GEMINI_API_KEY"] {
		t.Errorf("secret status = %v", st)
	}
}

func TestFileBackend_ReadsBackWithoutReload(t *testing.T) {
	b := tempBackend(t)
	if err := b.SetInt("server.port", 9090); err != nil {
		t.Fatal(err)
	}
	if err := b.SetFloat("youtube.qps", 2.5); err != nil {
		t.Fatal(err)
	}

	if v, ok, err := b.GetInt("server.port"); err != nil || !ok || v != 9090 {
		t.Errorf("GetInt = %d, %v, %v; want 9090", v, ok, err)
	}
	if v, ok, err := b.GetFloat("youtube.qps"); err != nil || !ok || v != 2.5 {
		t.Errorf("GetFloat = %v, %v, %v; want 2.5", v, ok, err)
	}
	if v, _, _ := b.GetString("server.port"); v != "9090" {
		t.Errorf("GetString(server.port) = %q, want literal text", v)
	}

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.YouTube.QPS != 2.5 {
		t.Errorf("port = %d, qps = %v", cfg.Server.Port, cfg.YouTube.QPS)
	}
}

func TestLoad_HandWrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"server.port": "9191", "server.rate_limit": 30, "youtube.qps": "0.5", "log.level": "debug"}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9191 || cfg.Server.RateLimit != 30 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.YouTube.QPS != 0.5 || cfg.Log.Level != "debug" {
		t.Errorf("qps = %v, level = %q", cfg.YouTube.QPS, cfg.Log.Level)
	}
}

func TestLoad_NonIntegerPortFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.port": 80.5}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadWith(newFileBackend(path)); err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("err = %v, want a server.port read error", err)
	}
}

func TestSetKey_FloatStoredAsNumber(t *testing.T) {
	b := tempBackend(t)
	if err := setKeyIn(b, "youtube.qps", "7.5"); err != nil {
		t.Fatalf("setKeyIn: %v", err)
	}
	if string(b.values["youtube.qps"]) != "7.5" {
		t.Errorf("stored %s, want a JSON number", b.values["youtube.qps"])
	}
}
