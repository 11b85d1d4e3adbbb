// Package config loads reldb's YAML configuration file, following the
// teacher repo's configuration conventions but adapted to this engine's
// settings (data directory, buffer pool size, vacuum schedule).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable reldb reads at startup.
type Config struct {
	DataDir          string `yaml:"data_dir"`
	BufferPoolFrames int    `yaml:"buffer_pool_frames"`
	VacuumCron       string `yaml:"vacuum_cron"`
	VacuumTables     []string `yaml:"vacuum_tables"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DataDir:          "./data",
		BufferPoolFrames: 100,
		VacuumCron:       "0 */5 * * * *",
	}
}

// Load reads path, overlaying values onto Default(). A missing file is
// not an error — reldb runs with defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.BufferPoolFrames <= 0 {
		cfg.BufferPoolFrames = 100
	}
	return cfg, nil
}
