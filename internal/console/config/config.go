package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDBPath        = "~/.trellis/console.db"
	defaultAPIPort       = "7070"
	defaultAPIListenAddr = "0.0.0.0:" + defaultAPIPort
)

// ConsoleConfig captures the runtime configuration required by the console
// daemon. When DocumentHostURL is set the console persists through the remote
// document host instead of its local database.
type ConsoleConfig struct {
	DatabasePath    string
	APIListenAddr   string
	DocumentHostURL string
	DocumentHostKey string
}

// FromEnv loads console configuration from environment variables, applying
// opinionated defaults when unset.
func FromEnv() (ConsoleConfig, error) {
	cfg := ConsoleConfig{
		DatabasePath:    getenv("TRELLIS_DB_PATH", defaultDBPath),
		APIListenAddr:   getenv("TRELLIS_API_LISTEN", defaultAPIListenAddr),
		DocumentHostURL: strings.TrimSpace(os.Getenv("TRELLIS_DOCUMENT_HOST")),
		DocumentHostKey: strings.TrimSpace(os.Getenv("TRELLIS_DOCUMENT_HOST_KEY")),
	}

	cfg.DatabasePath = expandPath(cfg.DatabasePath)

	listenAddr := strings.TrimSpace(cfg.APIListenAddr)
	if listenAddr == "" {
		return ConsoleConfig{}, fmt.Errorf("api listen address required")
	}
	if _, _, err := net.SplitHostPort(listenAddr); err != nil {
		return ConsoleConfig{}, fmt.Errorf("invalid api listen address %q: %w", listenAddr, err)
	}
	cfg.APIListenAddr = listenAddr

	if cfg.DocumentHostURL != "" {
		parsed, err := url.Parse(cfg.DocumentHostURL)
		if err != nil {
			return ConsoleConfig{}, fmt.Errorf("invalid document host url %q: %w", cfg.DocumentHostURL, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return ConsoleConfig{}, fmt.Errorf("document host url %q must include scheme and host", cfg.DocumentHostURL)
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
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
