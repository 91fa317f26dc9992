package main

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds bridge configuration, loaded from environment variables.
// Command-line flags override it.
type Config struct {
	Port        int
	StaticDir   string
	MaxSessions int
	ScratchDir  string
	Profiles    string
	LogLevel    string
}

func loadConfig() Config {
	cfg := Config{
		Port:        8420,
		MaxSessions: 10,
		ScratchDir:  filepath.Join(os.TempDir(), "casbridge"),
		LogLevel:    "info",
	}

	if v := os.Getenv("CASBRIDGE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("CASBRIDGE_STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if v := os.Getenv("CASBRIDGE_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}
	if v := os.Getenv("CASBRIDGE_SCRATCH_DIR"); v != "" {
		cfg.ScratchDir = v
	}
	if v := os.Getenv("CASBRIDGE_PROFILES"); v != "" {
		cfg.Profiles = v
	}
	if v := os.Getenv("CASBRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
