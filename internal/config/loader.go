package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"modelbridge/internal/common/fsutil"
	"modelbridge/internal/transport"
)

// Defaults applied by WithDefaults.
const (
	DefaultAddr      = "127.0.0.1:39280"
	DefaultEngineURL = "http://127.0.0.1:39281"
	DefaultLogLevel  = "info"
)

// Config holds runtime parameters for the bridge.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr                string   `json:"addr" yaml:"addr" toml:"addr"`
	EngineURL           string   `json:"engine_url" yaml:"engine_url" toml:"engine_url"`
	SocketURL           string   `json:"socket_url" yaml:"socket_url" toml:"socket_url"`
	APIKey              string   `json:"api_key" yaml:"api_key" toml:"api_key"`
	LogLevel            string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	// HealthRetries counts extra startup health attempts after the first.
	// Zero means the engine default of 20; a negative value disables retries.
	HealthRetries       int      `json:"health_retries" yaml:"health_retries" toml:"health_retries"`
	HealthRetryDelayMS  int      `json:"health_retry_delay_ms" yaml:"health_retry_delay_ms" toml:"health_retry_delay_ms"`
	ListChangedDelayMS  int      `json:"list_changed_delay_ms" yaml:"list_changed_delay_ms" toml:"list_changed_delay_ms"`
	RequestTimeoutMS    int      `json:"request_timeout_ms" yaml:"request_timeout_ms" toml:"request_timeout_ms"`
	CORSOrigins         []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	// EngineWaitTimeoutMS bounds how long a facade request waits on the
	// engine queue. Zero leaves requests bounded only by the client.
	EngineWaitTimeoutMS int      `json:"engine_wait_timeout_ms" yaml:"engine_wait_timeout_ms" toml:"engine_wait_timeout_ms"`
	// MaxBodyBytes caps JSON request bodies. Zero keeps the built-in 1 MiB limit.
	MaxBodyBytes        int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml. A leading ~ is expanded.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", p, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", p, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", p, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MODELBRIDGE_* variables when set.
// lookup is os.LookupEnv in production.
func (c Config) ApplyEnv(lookup func(string) (string, bool)) (Config, error) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	str("MODELBRIDGE_ADDR", &c.Addr)
	str("MODELBRIDGE_ENGINE_URL", &c.EngineURL)
	str("MODELBRIDGE_SOCKET_URL", &c.SocketURL)
	str("MODELBRIDGE_API_KEY", &c.APIKey)
	str("MODELBRIDGE_LOG_LEVEL", &c.LogLevel)
	if err := num("MODELBRIDGE_HEALTH_RETRIES", &c.HealthRetries); err != nil {
		return c, err
	}
	if err := num("MODELBRIDGE_HEALTH_RETRY_DELAY_MS", &c.HealthRetryDelayMS); err != nil {
		return c, err
	}
	if err := num("MODELBRIDGE_LIST_CHANGED_DELAY_MS", &c.ListChangedDelayMS); err != nil {
		return c, err
	}
	if err := num("MODELBRIDGE_REQUEST_TIMEOUT_MS", &c.RequestTimeoutMS); err != nil {
		return c, err
	}
	if err := num("MODELBRIDGE_ENGINE_WAIT_TIMEOUT_MS", &c.EngineWaitTimeoutMS); err != nil {
		return c, err
	}
	if v, ok := lookup("MODELBRIDGE_MAX_BODY_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, fmt.Errorf("MODELBRIDGE_MAX_BODY_BYTES: %w", err)
		}
		c.MaxBodyBytes = n
	}
	if v, ok := lookup("MODELBRIDGE_CORS_ORIGINS"); ok && v != "" {
		c.CORSOrigins = splitCSV(v)
	}
	return c, nil
}

// WithDefaults fills unspecified fields.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.EngineURL == "" {
		c.EngineURL = DefaultEngineURL
	}
	c.EngineURL = strings.TrimRight(c.EngineURL, "/")
	if c.SocketURL == "" {
		c.SocketURL = transport.SocketURLFromHTTP(c.EngineURL)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

// HealthRetryDelay returns the configured delay, zero when unset.
func (c Config) HealthRetryDelay() time.Duration {
	return time.Duration(c.HealthRetryDelayMS) * time.Millisecond
}

// ListChangedDelay returns the configured delay, zero when unset.
func (c Config) ListChangedDelay() time.Duration {
	return time.Duration(c.ListChangedDelayMS) * time.Millisecond
}

// RequestTimeout returns the configured timeout, zero when unset.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// EngineWaitTimeout returns the facade's engine wait bound, zero when unset.
func (c Config) EngineWaitTimeout() time.Duration {
	return time.Duration(c.EngineWaitTimeoutMS) * time.Millisecond
}

// splitCSV splits a comma-separated list, trimming spaces and dropping empty entries.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
