// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bcem/triage/internal/models"
)

// DefaultConfigPath is used when CONFIG_PATH is not set. A missing file at
// the default path is not an error; an explicitly configured one is.
const DefaultConfigPath = "config.yaml"

// OAuthConfig holds client-credentials settings for the backend.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Config holds all configuration for the triage console.
type Config struct {
	// Backend
	BackendURL     string
	FunctionKey    string
	BackendTimeout time.Duration
	OAuth          OAuthConfig

	Agents models.Roster

	// Redis (optional)
	RedisURL    string
	EventsQueue string

	// Ticket snapshots (optional): postgres://... or sqlite://path
	StoreDSN string

	// Mock emails loaded at startup (optional)
	SeedPath string

	// Intake
	PollInterval   time.Duration
	AutoIngest     bool
	AutoCategorize bool

	// Server
	Port     int
	LogLevel slog.Level
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Backend struct {
		BaseURL     string `yaml:"base_url"`
		FunctionKey string `yaml:"function_key"`
		Timeout     string `yaml:"timeout"`
		OAuth       struct {
			TokenURL     string   `yaml:"token_url"`
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			Scopes       []string `yaml:"scopes"`
		} `yaml:"oauth"`
	} `yaml:"backend"`
	Agents []models.Agent `yaml:"agents"`
	Redis  struct {
		URL    string `yaml:"url"`
		Queues struct {
			Events string `yaml:"events"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Store struct {
		DSN string `yaml:"dsn"`
	} `yaml:"store"`
	Seed struct {
		Path string `yaml:"path"`
	} `yaml:"seed"`
}

// Load reads .env (if present), then config.yaml (with env var expansion),
// then environment variables for non-YAML settings.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	var raw rawConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		slog.Debug("no config file, using environment only", "path", path)
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	return build(raw)
}

func build(raw rawConfig) (*Config, error) {
	timeout := envOrDefaultDuration("BACKEND_TIMEOUT", 60*time.Second)
	if raw.Backend.Timeout != "" {
		d, err := time.ParseDuration(raw.Backend.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse backend.timeout: %w", err)
		}
		timeout = d
	}

	cfg := &Config{
		BackendURL:     firstNonEmpty(raw.Backend.BaseURL, envOrDefault("BACKEND_URL", "http://localhost:7071/api")),
		FunctionKey:    firstNonEmpty(raw.Backend.FunctionKey, os.Getenv("BACKEND_FUNCTION_KEY")),
		BackendTimeout: timeout,
		OAuth: OAuthConfig{
			TokenURL:     raw.Backend.OAuth.TokenURL,
			ClientID:     raw.Backend.OAuth.ClientID,
			ClientSecret: raw.Backend.OAuth.ClientSecret,
			Scopes:       raw.Backend.OAuth.Scopes,
		},
		RedisURL:       firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		EventsQueue:    firstNonEmpty(raw.Redis.Queues.Events, envOrDefault("EVENTS_QUEUE", "triage-events")),
		StoreDSN:       firstNonEmpty(raw.Store.DSN, os.Getenv("STORE_DSN")),
		SeedPath:       firstNonEmpty(raw.Seed.Path, os.Getenv("SEED_PATH")),
		PollInterval:   envOrDefaultDuration("POLL_INTERVAL", 60*time.Second),
		AutoIngest:     envOrDefaultBool("AUTO_INGEST", false),
		AutoCategorize: envOrDefaultBool("AUTO_CATEGORIZE", false),
		Port:           envOrDefaultInt("PORT", 8080),
		LogLevel:       parseLevel(os.Getenv("LOG_LEVEL")),
	}

	if strings.TrimSpace(cfg.BackendURL) == "" {
		return nil, fmt.Errorf("backend.base_url is empty; check config.yaml and BACKEND_URL")
	}

	// Build the agent roster
	for _, a := range raw.Agents {
		if a.ID == "" {
			// Skip agents left half-filled in YAML
			continue
		}
		if a.Name == "" {
			a.Name = a.ID
		}
		cfg.Agents = append(cfg.Agents, a)
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = models.DefaultRoster()
	}

	return cfg, nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
