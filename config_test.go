package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	if cfg.Posts.PageSize != 6 {
		t.Errorf("expected page size 6, got %d", cfg.Posts.PageSize)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", cfg.API.Timeout)
	}
	if cfg.HTTP.Addr != "127.0.0.1:8080" {
		t.Errorf("expected loopback addr '127.0.0.1:8080', got %q", cfg.HTTP.Addr)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.yaml")
	data := []byte(`
api:
  url: http://file.example/api
  timeout: 5s
posts:
  pagesize: 9
devapi:
  paginate: true
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("BLOG_API_URL", "http://env.example/api")
	t.Setenv("BLOG_LOG_LEVEL", "debug")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"env overrides file", cfg.API.URL, "http://env.example/api"},
		{"duration from file", cfg.API.Timeout, 5 * time.Second},
		{"int from file", cfg.Posts.PageSize, 9},
		{"bool from file", cfg.DevAPI.Paginate, true},
		{"env only", cfg.Log.Level, "debug"},
		{"default kept", cfg.Session.Path, "session.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, tt.got)
			}
		})
	}
}

func TestLoadConfig_InvalidPageSize(t *testing.T) {
	t.Setenv("BLOG_POSTS_PAGESIZE", "0")

	if _, err := loadConfig(""); err == nil {
		t.Error("expected error for zero page size")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
