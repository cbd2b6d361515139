package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable consulted when no --config flag is
// given.
const EnvPath = "BMPPATCH_CONFIG"

type LogConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path may contain {file}, replaced by the patched file's path.
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled bool   `yaml:"enabled"`
	Suffix  string `yaml:"suffix"`
}

type Config struct {
	Logs   LogConfig    `yaml:"logs"`
	Audit  AuditConfig  `yaml:"audit"`
	Backup BackupConfig `yaml:"backup"`
	// Rules is an optional rule pack JSON replacing the embedded default.
	Rules string `yaml:"rules"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.Audit.Enabled = true
	applyDefaults(&cfg)
	return cfg
}

// Load reads the YAML file at path. An empty path falls back to $BMPPATCH_CONFIG
// and then to Default.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvPath))
	}
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	cfg := Config{Audit: AuditConfig{Enabled: true}}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) || strings.Contains(p, "{file}") {
			return p
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	cfg.Audit.Path = resolvePath(cfg.Audit.Path)
	cfg.Rules = resolvePath(cfg.Rules)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 5
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 30
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 3
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "{file}.audit.jsonl"
	}
	if cfg.Backup.Suffix == "" {
		cfg.Backup.Suffix = ".bak"
	}
}

// AuditPath expands the audit path template for file.
func (c Config) AuditPath(file string) string {
	if !c.Audit.Enabled {
		return ""
	}
	return strings.ReplaceAll(c.Audit.Path, "{file}", file)
}
