// Copyright 2025 Poiesic Systems
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


// Package config loads the CLI configuration: YAML file first, then
// environment variable overrides, then defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	// Listen is the API listen address.
	Listen string `yaml:"listen"`

	// DBPath is the storage directory.
	DBPath string `yaml:"db_path"`

	// SourceURL is the review source base URL.
	SourceURL string `yaml:"source_url"`

	// Completion backend: "openai" or "anthropic".
	CompletionBackend string `yaml:"completion_backend"`
	CompletionHost    string `yaml:"completion_host"`
	CompletionModel   string `yaml:"completion_model"`
	EmbeddingHost     string `yaml:"embedding_host"`
	EmbeddingModel    string `yaml:"embedding_model"`
	APIKey            string `yaml:"api_key"`

	// Extraction tuning. Zero means the pipeline default.
	BatchSize int `yaml:"batch_size"`
	PoolSize  int `yaml:"pool_size"`

	// FreshnessHours is the dataset cache freshness window.
	FreshnessHours int `yaml:"freshness_hours"`

	// JobTimeoutMinutes bounds one job's wall-clock time.
	JobTimeoutMinutes int `yaml:"job_timeout_minutes"`

	// RefreshSchedule is a 5-field cron expression; empty disables the
	// scheduled refresher.
	RefreshSchedule string `yaml:"refresh_schedule"`

	// RefreshNamespaces seeds the refresh rotation.
	RefreshNamespaces []string `yaml:"refresh_namespaces"`
}

// Load reads configuration from path (missing file is fine), applies
// REVIEWLENS_* environment overrides, and fills in defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults and env vars carry the config.
		default:
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	envOverride(&cfg.Listen, "REVIEWLENS_LISTEN")
	envOverride(&cfg.DBPath, "REVIEWLENS_DB_PATH")
	envOverride(&cfg.SourceURL, "REVIEWLENS_SOURCE_URL")
	envOverride(&cfg.CompletionBackend, "REVIEWLENS_COMPLETION_BACKEND")
	envOverride(&cfg.CompletionHost, "REVIEWLENS_COMPLETION_HOST")
	envOverride(&cfg.CompletionModel, "REVIEWLENS_COMPLETION_MODEL")
	envOverride(&cfg.EmbeddingHost, "REVIEWLENS_EMBEDDING_HOST")
	envOverride(&cfg.EmbeddingModel, "REVIEWLENS_EMBEDDING_MODEL")
	envOverride(&cfg.APIKey, "REVIEWLENS_API_KEY")
	envOverride(&cfg.APIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.RefreshSchedule, "REVIEWLENS_REFRESH_SCHEDULE")
	envOverrideInt(&cfg.BatchSize, "REVIEWLENS_BATCH_SIZE")
	envOverrideInt(&cfg.PoolSize, "REVIEWLENS_POOL_SIZE")
	envOverrideInt(&cfg.FreshnessHours, "REVIEWLENS_FRESHNESS_HOURS")
	envOverrideInt(&cfg.JobTimeoutMinutes, "REVIEWLENS_JOB_TIMEOUT_MINUTES")

	if namespaces := os.Getenv("REVIEWLENS_REFRESH_NAMESPACES"); namespaces != "" {
		cfg.RefreshNamespaces = nil
		for _, ns := range strings.Split(namespaces, ",") {
			if ns = strings.TrimSpace(ns); ns != "" {
				cfg.RefreshNamespaces = append(cfg.RefreshNamespaces, ns)
			}
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "./reviewlens.db"
	}
	if c.CompletionBackend == "" {
		c.CompletionBackend = "openai"
	}
	if c.FreshnessHours == 0 {
		c.FreshnessHours = 24
	}
	if c.JobTimeoutMinutes == 0 {
		c.JobTimeoutMinutes = 30
	}
}

func envOverride(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func envOverrideInt(target *int, key string) {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			*target = n
		}
	}
}
