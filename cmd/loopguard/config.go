package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/albert-ai/loopguard/internal/loop"
	"github.com/albert-ai/loopguard/internal/scheduler"
)

// Duration is a time.Duration written as "90s" or "5m" in settings.json.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5m\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds all loopguard server configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	DBPath          string   `json:"db_path"`
	LogLevel        string   `json:"log_level"`
	HistoryCap      int      `json:"history_cap"`
	MaxIterations   int      `json:"max_iterations"`
	Timeout         Duration `json:"timeout"`
	IdleTTL         Duration `json:"idle_ttl"`
	JanitorSchedule string   `json:"janitor_schedule"`
	Retention       Duration `json:"retention"`
	MetricsAddr     string   `json:"metrics_addr,omitempty"`
}

func defaultConfig() Config {
	return Config{
		DBPath:          filepath.Join(loopguardDir(), "loopguard.db"),
		LogLevel:        "info",
		HistoryCap:      loop.DefaultHistoryCap,
		MaxIterations:   loop.DefaultMaxIterations,
		Timeout:         Duration(loop.DefaultTimeout),
		IdleTTL:         Duration(30 * time.Minute),
		JanitorSchedule: scheduler.DefaultSchedule,
		Retention:       Duration(30 * 24 * time.Hour),
	}
}

func loopguardDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".loopguard"
	}
	return filepath.Join(home, ".loopguard")
}

func settingsPath() string {
	return filepath.Join(loopguardDir(), "settings.json")
}

// loadConfig layers settings.json and env vars over the defaults. A
// malformed value in either layer is skipped so the previous layer stands.
func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		fromFile := cfg
		if json.Unmarshal(data, &fromFile) == nil {
			cfg = fromFile
		}
	}

	// Layer 3: env vars override.
	applyEnv(&cfg, os.Getenv)
	return cfg
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("LOOPGUARD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("LOOPGUARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("LOOPGUARD_JANITOR_SCHEDULE"); v != "" {
		cfg.JanitorSchedule = v
	}
	if v := getenv("LOOPGUARD_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	envInt(getenv, "LOOPGUARD_HISTORY_CAP", &cfg.HistoryCap)
	envInt(getenv, "LOOPGUARD_MAX_ITERATIONS", &cfg.MaxIterations)
	envDuration(getenv, "LOOPGUARD_TIMEOUT", &cfg.Timeout)
	envDuration(getenv, "LOOPGUARD_IDLE_TTL", &cfg.IdleTTL)
	envDuration(getenv, "LOOPGUARD_RETENTION", &cfg.Retention)
}

func envInt(getenv func(string) string, key string, dst *int) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(getenv func(string) string, key string, dst *Duration) {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// writeSettings persists cfg as the settings.json layer.
func writeSettings(cfg Config) (string, error) {
	dir := loopguardDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("cannot write %s: %w", path, err)
	}
	return path, nil
}

func (c Config) janitorConfig() scheduler.JanitorConfig {
	return scheduler.JanitorConfig{
		Schedule:  c.JanitorSchedule,
		IdleTTL:   time.Duration(c.IdleTTL),
		Retention: time.Duration(c.Retention),
	}
}
