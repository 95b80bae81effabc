package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultHTTPListen = "0.0.0.0:7442"
	defaultStateDir   = "~/.trellis/vined"
)

// Config captures runtime settings for the vined document host daemon.
type Config struct {
	HTTPListen   string
	StateDir     string
	DocumentPath string
	APIKey       string
}

// FromEnv loads configuration using environment variables with defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPListen:   getenv("VINED_HTTP_LISTEN", defaultHTTPListen),
		StateDir:     expandPath(getenv("VINED_STATE_DIR", defaultStateDir)),
		DocumentPath: expandPath(getenv("VINED_DOCUMENT_PATH", "")),
		APIKey:       strings.TrimSpace(os.Getenv("VINED_API_KEY")),
	}

	if cfg.HTTPListen = strings.TrimSpace(cfg.HTTPListen); cfg.HTTPListen == "" {
		return Config{}, fmt.Errorf("http listen address required")
	}

	if cfg.StateDir == "" {
		return Config{}, fmt.Errorf("state directory required")
	}

	if cfg.DocumentPath == "" {
		cfg.DocumentPath = filepath.Join(cfg.StateDir, "document.json")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}
