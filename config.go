package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "BLOG_"

// Config is the merged configuration: defaults, then the optional YAML
// file, then BLOG_* environment variables. BLOG_API_URL sets api.url.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	API     APIConfig     `koanf:"api"`
	Session SessionConfig `koanf:"session"`
	Posts   PostsConfig   `koanf:"posts"`
	Log     LogConfig     `koanf:"log"`
	DevAPI  DevAPIConfig  `koanf:"devapi"`
}

type HTTPConfig struct {
	// Addr defaults to loopback. The process holds a single session, so
	// binding beyond loopback shares the signed-in user with every client.
	Addr string `koanf:"addr"`
	// SecureCookies marks the CSRF cookie Secure. Enable behind TLS.
	SecureCookies bool `koanf:"securecookies"`
}

type APIConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type SessionConfig struct {
	// Path of the SQLite file holding the tokens. Empty or ":memory:"
	// keeps the session in memory only.
	Path string `koanf:"path"`
}

type PostsConfig struct {
	PageSize int `koanf:"pagesize"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type DevAPIConfig struct {
	Addr       string        `koanf:"addr"`
	DB         string        `koanf:"db"`
	AccessTTL  time.Duration `koanf:"accessttl"`
	RefreshTTL time.Duration `koanf:"refreshttl"`
	Paginate   bool          `koanf:"paginate"`
	PageSize   int           `koanf:"pagesize"`
	LoginRate  int           `koanf:"loginrate"`
	SeedUser   string        `koanf:"seeduser"`
	SeedPass   string        `koanf:"seedpass"`
}

func defaultConfig() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: "127.0.0.1:8080"},
		API:     APIConfig{URL: "http://localhost:8000/api", Timeout: 30 * time.Second},
		Session: SessionConfig{Path: "session.db"},
		Posts:   PostsConfig{PageSize: 6},
		Log:     LogConfig{Level: "info", Format: "text"},
		DevAPI: DevAPIConfig{
			Addr:       ":8000",
			DB:         "devapi.db",
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			PageSize:   10,
			LoginRate:  10,
			SeedUser:   "demo",
			SeedPass:   "password123",
		},
	}
}

// loadConfig merges path (if set) and the environment over the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	transform := func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := k.Load(env.Provider(envPrefix, ".", transform), nil); err != nil {
		return cfg, fmt.Errorf("loading environment: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.Posts.PageSize <= 0 {
		return cfg, fmt.Errorf("posts.pagesize must be positive, got %d", cfg.Posts.PageSize)
	}
	return cfg, nil
}
