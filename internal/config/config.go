// Package config provides configuration loading and structs for the tracker server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	GitHub    GitHubConfig    `yaml:"github"`
	Inference InferenceConfig `yaml:"inference"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Paths     PathsConfig     `yaml:"paths"`
}

// ServerConfig holds HTTP server settings. CronSecret guards the analysis
// endpoint and is only ever read from the environment.
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CronSecret string `yaml:"-"`
}

// GitHubConfig identifies the repository used as the document store. Token is
// only ever read from the environment.
type GitHubConfig struct {
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"-"`
}

// InferenceConfig holds language-model settings. APIKey is only ever read
// from the environment.
type InferenceConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"`
}

// FetchConfig holds article download settings.
type FetchConfig struct {
	TimeoutSeconds  int `yaml:"timeout_seconds"`
	MaxContentChars int `yaml:"max_content_chars"`
}

// PathsConfig holds document paths inside the store repository plus the local
// collector database.
type PathsConfig struct {
	ClicksFile      string `yaml:"clicks_file"`
	PreferencesFile string `yaml:"preferences_file"`
	SummariesDir    string `yaml:"summaries_dir"`
	CollectorDB     string `yaml:"collector_db"`
}

// Load reads and parses the config file at path, applies defaults, and
// overlays environment variables. A .env file next to the config file is
// loaded first if present, so local development needs no exported secrets.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Paths.CollectorDB = expandPath(cfg.Paths.CollectorDB, configDir)

	return &cfg, nil
}

// applyEnv overlays environment variables onto cfg. Secrets have no yaml
// counterpart, so the environment is their only source.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_OWNER"); v != "" {
		cfg.GitHub.Owner = v
	}
	if v := os.Getenv("GITHUB_REPO"); v != "" {
		cfg.GitHub.Repo = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Inference.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Inference.Model = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Server.CronSecret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are left as-is.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	return path
}
