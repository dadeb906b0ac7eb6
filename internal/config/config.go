// Package config provides configuration loading and structs for tarotvision.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Paths     PathsConfig     `yaml:"paths"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Train     TrainConfig     `yaml:"train"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PathsConfig holds the deck-parameterized artifact roots. Per-deck paths are
// derived from these roots by the deck package.
type PathsConfig struct {
	ImagesRoot   string `yaml:"images_root"`
	IndicesRoot  string `yaml:"indices_root"`
	AdaptersRoot string `yaml:"adapters_root"`
}

// EmbeddingConfig holds the CLIP dual-encoder settings.
type EmbeddingConfig struct {
	ImageModelPath string `yaml:"image_model_path"`
	TextModelPath  string `yaml:"text_model_path"`
	Dimensions     int    `yaml:"dimensions"`
	ImageSize      int    `yaml:"image_size"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultDeck  string `yaml:"default_deck"`
	DefaultTopK  int    `yaml:"default_top_k"`
	DefaultQuery string `yaml:"default_query"`
}

// TrainConfig holds adapter fine-tuning settings.
type TrainConfig struct {
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	Rank         int     `yaml:"rank"`
	Alpha        float64 `yaml:"alpha"`
	LearningRate float64 `yaml:"learning_rate"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Paths.ImagesRoot = expandPath(cfg.Paths.ImagesRoot, configDir)
	cfg.Paths.IndicesRoot = expandPath(cfg.Paths.IndicesRoot, configDir)
	cfg.Paths.AdaptersRoot = expandPath(cfg.Paths.AdaptersRoot, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)

	return &cfg, nil
}

// Default returns a config with defaults applied and paths left relative to the
// current directory. Used when no config file is present.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to
// configDir; other relative paths are left as-is (relative to the working directory,
// matching the original artifact layout).
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	return path
}
