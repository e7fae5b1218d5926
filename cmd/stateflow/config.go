package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all stateflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath        string `json:"db_path"`
	LogLevel      string `json:"log_level"`
	MaxIterations int    `json:"max_iterations"`
	StrictRouting bool   `json:"strict_routing"`
	Scheduler     bool   `json:"scheduler"`
	MemoryStore   bool   `json:"memory_store"`
}

func defaultConfig() Config {
	return Config{
		DBPath:    filepath.Join(stateflowDir(), "stateflow.db"),
		LogLevel:  "info",
		Scheduler: true,
	}
}

func stateflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stateflow"
	}
	return filepath.Join(home, ".stateflow")
}

func settingsPath() string {
	return filepath.Join(stateflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STATEFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STATEFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STATEFLOW_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}
	if v := os.Getenv("STATEFLOW_STRICT_ROUTING"); v != "" {
		cfg.StrictRouting = v == "true" || v == "1"
	}
	if v := os.Getenv("STATEFLOW_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}
	if v := os.Getenv("STATEFLOW_MEMORY_STORE"); v != "" {
		cfg.MemoryStore = v == "true" || v == "1"
	}

	return cfg
}
