package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "LEARNTUBE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.rate_limit", typ: kInt, env: "LEARNTUBE_SERVER_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Server.RateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.RateLimit },
	},
	{
		key: "log.level", typ: kString, env: "LEARNTUBE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LEARNTUBE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "cache.backend", typ: kString, env: "LEARNTUBE_CACHE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Cache.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.Backend },
	},
	{
		key: "cache.redis_addr", typ: kString, env: "LEARNTUBE_CACHE_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisAddr },
	},
	{
		key: "cache.ttl", typ: kDuration, env: "LEARNTUBE_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.TTL },
	},
	{
		key: "youtube.base_url", typ: kString, env: "LEARNTUBE_YOUTUBE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.YouTube.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.YouTube.BaseURL },
	},
	{
		key: "youtube.timeout", typ: kDuration, env: "LEARNTUBE_YOUTUBE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.YouTube.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.YouTube.Timeout },
	},
	{
		key: "youtube.qps", typ: kFloat, env: "LEARNTUBE_YOUTUBE_QPS",
		apply:   func(cfg *Config, v any) { cfg.YouTube.QPS = v.(float64) },
		extract: func(cfg Config) any { return cfg.YouTube.QPS },
	},
	{
		key: "youtube.api_keys", typ: kList, env: "LEARNTUBE_YOUTUBE_API_KEYS",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.YouTube.APIKeys = v.([]string) },
		extract: func(cfg Config) any { return cfg.YouTube.APIKeys },
	},
	{
		key: "perplexity.base_url", typ: kString, env: "LEARNTUBE_PERPLEXITY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Perplexity.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Perplexity.BaseURL },
	},
	{
		key: "perplexity.model", typ: kString, env: "LEARNTUBE_PERPLEXITY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Perplexity.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Perplexity.Model },
	},
	{
		key: "perplexity.api_key", typ: kString, env: "LEARNTUBE_PERPLEXITY_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Perplexity.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Perplexity.APIKey },
	},
	{
		key: "gemini.base_url", typ: kString, env: "LEARNTUBE_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.models", typ: kList, env: "LEARNTUBE_GEMINI_MODELS",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Models = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Gemini.Models, ",") },
	},
	{
		key: "gemini.api_key", typ: kString, env: "LEARNTUBE_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "api.token", typ: kString, env: "LEARNTUBE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

// parseValue converts raw text into the Go value a keySpec's apply expects.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		d, err := time.ParseDuration(raw)
		if err == nil && d <= 0 {
			err = fmt.Errorf("duration must be positive")
		}
		return d, err
	case kList:
		return splitList(raw), nil
	default:
		return raw, nil
	}
}

func typeName(typ keyType) string {
	switch typ {
	case kInt:
		return "integer"
	case kFloat:
		return "float"
	case kDuration:
		return "duration"
	case kList:
		return "list"
	default:
		return "string"
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		case kFloat:
			v, ok, err := b.GetFloat(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", typeName(s.typ), s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", typeName(s.typ), s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
