// Package config provides application configuration loading for yoloflow.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (YOLOFLOW_WORKSPACE_ROOT, YOLOFLOW_LOGGING_LEVEL, ...)
//  2. YAML config file (~/.config/yoloflow/config.yaml by default)
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Version is the application version compiled into the binary. Backends
// gate their availability against it.
const Version = "1.0.0"

const maxConfigFileSize = 1024 * 1024 // 1MB

const envPrefix = "YOLOFLOW_"

// Config is the application configuration.
type Config struct {
	Workspace WorkspaceConfig `koanf:"workspace"`
	Backends  BackendsConfig  `koanf:"backends"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// WorkspaceConfig locates the cross-project workspace.
type WorkspaceConfig struct {
	// Root holds the project index database and the default projects
	// directory.
	Root string `koanf:"root"`
}

// BackendsConfig locates backend modules and their tooling.
type BackendsConfig struct {
	// Root is the directory scanned for backend modules.
	Root string `koanf:"root"`
	// UvBinary overrides the uv executable used for environment installs.
	UvBinary string `koanf:"uv_binary"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is json or console.
	Format string `koanf:"format"`
}

// envKeys maps environment variable suffixes to config paths. An explicit
// table avoids guessing where compound field names split.
var envKeys = map[string]string{
	"WORKSPACE_ROOT":     "workspace.root",
	"BACKENDS_ROOT":      "backends.root",
	"BACKENDS_UV_BINARY": "backends.uv_binary",
	"LOGGING_LEVEL":      "logging.level",
	"LOGGING_FORMAT":     "logging.format",
}

// Default returns the built-in configuration, anchored under the user
// home directory.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return &Config{
		Workspace: WorkspaceConfig{Root: filepath.Join(home, ".yoloflow")},
		Backends:  BackendsConfig{Root: filepath.Join(home, ".yoloflow", "backends")},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
	}, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "yoloflow", "config.yaml"), nil
}

// LoadWithFile loads configuration from the given YAML file (or the
// default location when empty), then applies environment overrides. A
// missing file is not an error; defaults apply.
func LoadWithFile(configPath string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if configPath == "" {
		configPath, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	k := koanf.New(".")

	if f, err := os.Open(configPath); err == nil {
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}
		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.TrimPrefix(s, envPrefix)
		if mapped, ok := envKeys[key]; ok {
			return mapped
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values that would otherwise fail much later.
func (c *Config) Validate() error {
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root must not be empty")
	}
	if c.Backends.Root == "" {
		return fmt.Errorf("backends.root must not be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q is not json or console", c.Logging.Format)
	}
	return nil
}
