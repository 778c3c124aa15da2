// Package config loads bilibatch settings from an optional TOML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Aria2 holds the RPC sink settings.
type Aria2 struct {
	RPCURL    string `toml:"rpc_url"`
	Secret    string `toml:"secret"`
	Dir       string `toml:"dir"`
	TimeoutMS int    `toml:"timeout_ms"`

	// OnCollision is error, overwrite or rename; empty keeps aria2's setting.
	OnCollision string `toml:"on_collision"`
}

type Server struct {
	Addr     string `toml:"addr"`
	APIToken string `toml:"api_token"`
}

type Log struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

type Config struct {
	Quality         int    `toml:"quality"`
	Cookie          string `toml:"cookie"`
	APIBase         string `toml:"api_base"`
	RateMS          int    `toml:"rate_ms"`
	ProbeAttempts   int    `toml:"probe_attempts"`
	ProbeIntervalMS int    `toml:"probe_interval_ms"`

	Aria2  Aria2  `toml:"aria2"`
	Server Server `toml:"server"`
	Log    Log    `toml:"log"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Quality:         80,
		APIBase:         "https://api.bilibili.com",
		RateMS:          250,
		ProbeAttempts:   10,
		ProbeIntervalMS: 300,
		Aria2: Aria2{
			RPCURL:    "http://127.0.0.1:6800/jsonrpc",
			TimeoutMS: 3000,
		},
		Server: Server{Addr: ":9090"},
		Log:    Log{Level: "info"},
	}
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.Cookie = getenv("BILIBATCH_COOKIE", c.Cookie)
	c.APIBase = getenv("BILIBATCH_API_BASE", c.APIBase)
	c.Aria2.RPCURL = getenv("ARIA2_RPC_URL", c.Aria2.RPCURL)
	c.Aria2.Secret = getenv("ARIA2_SECRET", c.Aria2.Secret)
	c.Aria2.Dir = getenv("ARIA2_DIR", c.Aria2.Dir)
	c.Aria2.OnCollision = getenv("ARIA2_ON_COLLISION", c.Aria2.OnCollision)
	c.Server.Addr = getenv("BILIBATCH_ADDR", c.Server.Addr)
	c.Server.APIToken = getenv("BILIBATCH_API_TOKEN", c.Server.APIToken)
	c.Log.File = getenv("BILIBATCH_LOG_FILE", c.Log.File)
	c.Log.Level = getenv("BILIBATCH_LOG_LEVEL", c.Log.Level)

	for _, e := range []struct {
		key string
		dst *int
	}{
		{"BILIBATCH_QUALITY", &c.Quality},
		{"BILIBATCH_RATE_MS", &c.RateMS},
		{"BILIBATCH_PROBE_ATTEMPTS", &c.ProbeAttempts},
		{"BILIBATCH_PROBE_INTERVAL_MS", &c.ProbeIntervalMS},
		{"ARIA2_TIMEOUT_MS", &c.Aria2.TimeoutMS},
	} {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.key, err))
			continue
		}
		*e.dst = n
	}
	return errors.Join(errs...)
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	if c.Quality <= 0 {
		return fmt.Errorf("quality must be positive, got %d", c.Quality)
	}
	if c.RateMS < 0 {
		return fmt.Errorf("rate_ms must not be negative, got %d", c.RateMS)
	}
	if c.ProbeAttempts < 1 {
		return fmt.Errorf("probe_attempts must be at least 1, got %d", c.ProbeAttempts)
	}
	if c.ProbeIntervalMS < 0 {
		return fmt.Errorf("probe_interval_ms must not be negative, got %d", c.ProbeIntervalMS)
	}
	if c.Aria2.TimeoutMS <= 0 {
		return fmt.Errorf("aria2 timeout_ms must be positive, got %d", c.Aria2.TimeoutMS)
	}
	switch strings.ToLower(c.Aria2.OnCollision) {
	case "", "error", "overwrite", "rename":
	default:
		return fmt.Errorf("aria2 on_collision must be error, overwrite or rename, got %q", c.Aria2.OnCollision)
	}
	return nil
}

func (c *Config) RateInterval() time.Duration {
	return time.Duration(c.RateMS) * time.Millisecond
}

func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMS) * time.Millisecond
}

func (c *Config) Aria2Timeout() time.Duration {
	return time.Duration(c.Aria2.TimeoutMS) * time.Millisecond
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
