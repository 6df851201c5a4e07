// Package config loads todosync settings.
//
// Settings come from three layers, later ones winning: built-in defaults, an
// optional YAML file, and TODOSYNC_* environment variables. The merged result
// is checked against an embedded CUE schema before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/todosync/internal/bgsync"
	"github.com/roach88/todosync/internal/intercept"
	"github.com/roach88/todosync/internal/realtime"
	"github.com/roach88/todosync/internal/tasks"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TODOSYNC_"

// Config is the full set of todosync settings.
type Config struct {
	API      APIConfig      `yaml:"api" envPrefix:"API_"`
	Static   StaticConfig   `yaml:"static" envPrefix:"STATIC_"`
	Cache    CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Network  NetworkConfig  `yaml:"network" envPrefix:"NETWORK_"`
	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Realtime RealtimeConfig `yaml:"realtime" envPrefix:"REALTIME_"`
	Sync     SyncConfig     `yaml:"sync" envPrefix:"SYNC_"`
	Proxy    ProxyConfig    `yaml:"proxy" envPrefix:"PROXY_"`
}

// APIConfig locates the remote task API.
type APIConfig struct {
	BaseURL   string   `yaml:"base_url" env:"BASE_URL"`
	Endpoints []string `yaml:"endpoints" env:"ENDPOINTS" envSeparator:","`
	Token     string   `yaml:"token" env:"TOKEN"`
}

// StaticConfig locates the application shell and the assets to pre-cache.
type StaticConfig struct {
	Origin   string   `yaml:"origin" env:"ORIGIN"`
	Manifest []string `yaml:"manifest" env:"MANIFEST" envSeparator:","`
}

// CacheConfig names the cache partitions and the offline fallback paths.
type CacheConfig struct {
	Prefix          string   `yaml:"prefix" env:"PREFIX"`
	Version         string   `yaml:"version" env:"VERSION"`
	ResourceMarkers []string `yaml:"resource_markers" env:"RESOURCE_MARKERS" envSeparator:","`
}

// NetworkConfig bounds outbound requests.
type NetworkConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// RealtimeConfig controls the websocket channel.
type RealtimeConfig struct {
	URL            string        `yaml:"url" env:"URL"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" env:"RECONNECT_DELAY"`
	MaxAttempts    int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	DialTimeout    time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// SyncConfig controls background sync.
type SyncConfig struct {
	Tag           string        `yaml:"tag" env:"TAG"`
	ProbeInterval time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`
	// ReplayTimeout bounds one replay pass; 0 means unbounded.
	ReplayTimeout time.Duration `yaml:"replay_timeout" env:"REPLAY_TIMEOUT"`
}

// ProxyConfig controls the local caching proxy.
type ProxyConfig struct {
	Listen string `yaml:"listen" env:"LISTEN"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:   "https://api.oluwasetemi.dev",
			Endpoints: append([]string(nil), tasks.DefaultEndpoints...),
		},
		Static: StaticConfig{
			Origin:   "http://localhost:5173",
			Manifest: []string{"/", "/index.html", "/manifest.json", "/vite.svg"},
		},
		Cache: CacheConfig{
			Prefix:          "todo",
			Version:         "v1",
			ResourceMarkers: append([]string(nil), intercept.DefaultResourceMarkers...),
		},
		Network: NetworkConfig{
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path: "todosync.db",
		},
		Realtime: RealtimeConfig{
			URL:            "wss://api.oluwasetemi.dev/ws/tasks",
			ReconnectDelay: realtime.DefaultReconnectDelay,
			MaxAttempts:    realtime.DefaultMaxAttempts,
			DialTimeout:    realtime.DefaultDialTimeout,
		},
		Sync: SyncConfig{
			Tag:           bgsync.DefaultTag,
			ProbeInterval: 15 * time.Second,
			ReplayTimeout: 5 * time.Minute,
		},
		Proxy: ProxyConfig{
			Listen: "127.0.0.1:8787",
		},
	}
}

// Load builds the configuration from the YAML file at path (skipped when
// path is empty) and the process environment, then validates it.
func Load(path string) (Config, error) {
	return load(path, nil)
}

// load is Load with an explicit environment; nil means the process environment.
func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
