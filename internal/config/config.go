// Package config loads the eis.toml project manifest.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the contents of an eis.toml file.
type Config struct {
	Project ProjectConfig `toml:"project"`
}

// ProjectConfig describes one Eis project.
type ProjectConfig struct {
	Name  string `toml:"name"`  // project name, defaults to the directory name
	Entry string `toml:"entry"` // entry module, defaults to main.eis
}

// Default returns the configuration used when no manifest exists.
func Default() *Config {
	return &Config{Project: ProjectConfig{Entry: "main.eis"}}
}

// FindAndLoad walks up from startDir looking for eis.toml and loads the
// first one found. It returns the loaded (or default) config and the
// path of the manifest, which is empty when none was found.
func FindAndLoad(startDir string) (*Config, string, error) {
	configPath := findManifest(startDir)
	if configPath == "" {
		return Default(), "", nil
	}
	cfg, err := Load(configPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}

// findManifest walks up from dir to the filesystem root.
func findManifest(dir string) string {
	for {
		configPath := filepath.Join(dir, "eis.toml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Load reads a manifest, filling defaults for missing fields.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Project.Entry == "" {
		cfg.Project.Entry = "main.eis"
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(filepath.Dir(path))
	}
	return &cfg, nil
}

// ProjectRoot returns the directory holding the manifest.
func ProjectRoot(configPath string) string {
	if configPath == "" {
		return ""
	}
	return filepath.Dir(configPath)
}
