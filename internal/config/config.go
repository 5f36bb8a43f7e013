// Package config loads codematch's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the codematch server and CLI.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Winnow  WinnowConfig  `yaml:"winnow"`
	Query   QueryConfig   `yaml:"query"`
	Builder BuilderConfig `yaml:"builder"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	RequestsPerSec int           `yaml:"requests_per_sec"`
}

// StoreConfig selects and configures the index store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	DSN    string `yaml:"dsn"`
}

// WinnowConfig holds winnowing k/window settings as loaded from YAML. The
// winnowing code does not read them; it always uses winnow.DefaultK and
// winnow.DefaultWindow.
type WinnowConfig struct {
	K      int `yaml:"k"`
	Window int `yaml:"window"`
}

// QueryConfig holds the winnowing query pipeline's recall and rerank
// thresholds as loaded from YAML. The query pipeline does not read them; it
// uses the constants declared in internal/query.
type QueryConfig struct {
	MaxQueryFPS int     `yaml:"max_query_fps"`
	RecallBatch int     `yaml:"recall_batch"`
	TopN        int     `yaml:"top_n"`
	MinHit      int     `yaml:"min_hit"`
	MinCoverage float64 `yaml:"min_coverage"`
}

// BuilderConfig tunes the index builder's rebuild batching. BatchSize is
// used by the rebuild command; MaxFPsPerDoc is loaded but not read, the
// builder caps fingerprints with builder.MaxFPsPerDoc.
type BuilderConfig struct {
	BatchSize    int `yaml:"batch_size"`
	MaxFPsPerDoc int `yaml:"max_fps_per_doc"`
}

// Default returns codematch's default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    10 * time.Second,
			RequestsPerSec: 20,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Winnow: WinnowConfig{
			K:      35,
			Window: 10,
		},
		Query: QueryConfig{
			MaxQueryFPS: 1200,
			RecallBatch: 300,
			TopN:        80,
			MinHit:      6,
			MinCoverage: 0.06,
		},
		Builder: BuilderConfig{
			BatchSize:    300,
			MaxFPsPerDoc: 5000,
		},
	}
}

// Load reads and parses a YAML configuration file, filling in defaults for
// anything the file omits.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
