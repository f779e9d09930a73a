// Package config loads server settings from yaml, with defaults that run
// out of the box when no file is given.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr      string `yaml:"addr"`
	DataDir   string `yaml:"data_dir"`
	SchemaDir string `yaml:"schema_dir"`
	DisableDB bool   `yaml:"disable_db"`

	Scene    SceneConfig    `yaml:"scene"`
	Sync     SyncConfig     `yaml:"sync"`
	Viewport ViewportConfig `yaml:"viewport"`
}

type SceneConfig struct {
	DefaultID       string  `yaml:"default_id"`
	MapWidth        float64 `yaml:"map_width"`
	MapHeight       float64 `yaml:"map_height"`
	CellSize        int     `yaml:"cell_size"`
	PaddingFraction float64 `yaml:"padding_fraction"`
}

type SyncConfig struct {
	ThrottleMs int `yaml:"throttle_ms"`
}

type ViewportConfig struct {
	BufferCells int `yaml:"buffer_cells"`
}

// Load reads settings from path. An empty path returns defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("settings.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("settings.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Addr:      ":8080",
		DataDir:   "./data",
		SchemaDir: "./schemas",
		Scene: SceneConfig{
			DefaultID:       "scene_1",
			MapWidth:        4000,
			MapHeight:       3000,
			CellSize:        100,
			PaddingFraction: 0.25,
		},
		Sync:     SyncConfig{ThrottleMs: 100},
		Viewport: ViewportConfig{BufferCells: 2},
	}
}

func (c *Config) Normalize() {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.SchemaDir) == "" {
		c.SchemaDir = "./schemas"
	}
	if c.Sync.ThrottleMs <= 0 {
		c.Sync.ThrottleMs = 100
	}
	if c.Viewport.BufferCells < 0 {
		c.Viewport.BufferCells = 0
	}
}

func (c Config) Validate() error {
	if c.Scene.DefaultID == "" {
		return fmt.Errorf("scene.default_id is required")
	}
	if c.Scene.CellSize <= 0 {
		return fmt.Errorf("scene.cell_size must be positive, got %d", c.Scene.CellSize)
	}
	if c.Scene.MapWidth <= 0 || c.Scene.MapHeight <= 0 {
		return fmt.Errorf("scene dimensions must be positive, got %vx%v", c.Scene.MapWidth, c.Scene.MapHeight)
	}
	if c.Scene.PaddingFraction < 0 {
		return fmt.Errorf("scene.padding_fraction must not be negative, got %v", c.Scene.PaddingFraction)
	}
	return nil
}
