package utils

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Catalog  CatalogConfig  `yaml:"catalog"`
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Prefetch PrefetchConfig `yaml:"prefetch"`
	Session  SessionConfig  `yaml:"session"`
	Schema   SchemaConfig   `yaml:"schema"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
}

type CatalogConfig struct {
	// URL is the root catalog every session browses.
	URL string `yaml:"url"`
	// IndexPath is the base generated route links are mounted under.
	IndexPath string `yaml:"index_path"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type GRPCConfig struct {
	// Addr of the health service; empty disables it.
	Addr string `yaml:"addr"`
}

type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	UserAgent    string        `yaml:"user_agent"`
}

type PrefetchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type SessionConfig struct {
	Secret      string        `yaml:"secret"`
	Issuer      string        `yaml:"issuer"`
	TTL         time.Duration `yaml:"ttl"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type SchemaConfig struct {
	// URLTemplate locates schemas; {kind} and {version} are substituted.
	URLTemplate string `yaml:"url_template"`
}

type HistoryConfig struct {
	// Path of the sqlite navigation log; empty disables it.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}

	return Config{
		Catalog: CatalogConfig{IndexPath: "/"},
		HTTP:    HTTPConfig{Addr: ":8080"},
		GRPC:    GRPCConfig{Addr: ":9090"},
		Fetch: FetchConfig{
			Timeout:      15 * time.Second,
			MaxBodyBytes: 16 << 20,
			UserAgent:    "stacnav/1.0",
		},
		Prefetch: PrefetchConfig{Concurrency: 10},
		Session: SessionConfig{
			// dev default (change for production)
			Secret:      "dev-secret-change-me",
			Issuer:      "stacnav",
			TTL:         24 * time.Hour,
			IdleTimeout: 30 * time.Minute,
		},
		Schema: SchemaConfig{
			URLTemplate: "https://schemas.stacspec.org/v{version}/{kind}-spec/json-schema/{kind}.json",
		},
		History: HistoryConfig{Path: filepath.Join(home, ".stacnav", "history.db")},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig layers defaults, the optional YAML file at path, and STACNAV_*
// environment variables, then validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("STACNAV_CATALOG_URL", &c.Catalog.URL)
	str("STACNAV_INDEX_PATH", &c.Catalog.IndexPath)
	str("STACNAV_HTTP_ADDR", &c.HTTP.Addr)
	str("STACNAV_GRPC_ADDR", &c.GRPC.Addr)
	str("STACNAV_USER_AGENT", &c.Fetch.UserAgent)
	str("STACNAV_SESSION_SECRET", &c.Session.Secret)
	str("STACNAV_SESSION_ISSUER", &c.Session.Issuer)
	str("STACNAV_SCHEMA_URL_TEMPLATE", &c.Schema.URLTemplate)
	str("STACNAV_HISTORY_PATH", &c.History.Path)
	str("STACNAV_LOG_LEVEL", &c.Log.Level)
	str("STACNAV_LOG_FORMAT", &c.Log.Format)

	if err := dur("STACNAV_FETCH_TIMEOUT", &c.Fetch.Timeout); err != nil {
		return err
	}
	if err := dur("STACNAV_SESSION_TTL", &c.Session.TTL); err != nil {
		return err
	}
	if err := dur("STACNAV_SESSION_IDLE_TIMEOUT", &c.Session.IdleTimeout); err != nil {
		return err
	}

	if v, ok := lookup("STACNAV_PREFETCH_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STACNAV_PREFETCH_CONCURRENCY: %w", err)
		}
		c.Prefetch.Concurrency = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Catalog.URL == "" {
		return fmt.Errorf("catalog.url is required")
	}
	u, err := url.Parse(c.Catalog.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("catalog.url must be an absolute url, got %q", c.Catalog.URL)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Prefetch.Concurrency <= 0 {
		return fmt.Errorf("prefetch.concurrency must be positive")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	return nil
}
