package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Scope mode values for ScanScope.Mode.
const (
	ScopeFull    = "full"
	ScopeInclude = "include"
	ScopeExclude = "exclude"
)

// ScanScope restricts which locations participate in a scan.
type ScanScope struct {
	Mode  string   `yaml:"mode"  json:"mode"`
	Paths []string `yaml:"paths" json:"paths"`
}

// Config holds all configuration loaded from config.yaml.
type Config struct {
	MediaRoots         []string  `yaml:"media_roots"          json:"media_roots"`
	Scope              ScanScope `yaml:"scope"                json:"scope"`
	ScanExact          *bool     `yaml:"scan_exact"           json:"scan_exact"`
	ScanSimilar        *bool     `yaml:"scan_similar"         json:"scan_similar"`
	SimilarityLevel    int       `yaml:"similarity_level"     json:"similarity_level"`
	ConfirmBulkDelete  bool      `yaml:"confirm_bulk_delete"  json:"confirm_bulk_delete"`
	Schedule           string    `yaml:"schedule"             json:"schedule"`
	ScanPaused         bool      `yaml:"scan_paused"          json:"scan_paused"`
	TrashDir           string    `yaml:"trash_dir"            json:"-"`
	TrashRetentionDays int       `yaml:"trash_retention_days" json:"trash_retention_days"`
	DBPath             string    `yaml:"db_path"              json:"-"`
	HTTPAddr           string    `yaml:"http_addr"            json:"-"`
	HashWorkers        int       `yaml:"hash_workers"         json:"hash_workers"`
	WalkWorkers        int       `yaml:"walk_workers"         json:"walk_workers"`
	LogLevel           string    `yaml:"log_level"            json:"-"`
}

// ExactEnabled reports whether the exact-duplicate finder is enabled
// (default true when unset).
func (c *Config) ExactEnabled() bool { return c.ScanExact == nil || *c.ScanExact }

// SimilarEnabled reports whether the similarity finder is enabled
// (default true when unset).
func (c *Config) SimilarEnabled() bool { return c.ScanSimilar == nil || *c.ScanSimilar }

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Scope.Mode == "" {
		c.Scope.Mode = ScopeFull
	}
	if c.SimilarityLevel == 0 {
		c.SimilarityLevel = 2
	}
	if c.Schedule == "" {
		c.Schedule = "0 3 * * 0"
	}
	if c.TrashDir == "" {
		c.TrashDir = "/data/trash"
	}
	if c.TrashRetentionDays == 0 {
		c.TrashRetentionDays = 30
	}
	if c.DBPath == "" {
		c.DBPath = "/data/twinscan.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.HashWorkers == 0 {
		c.HashWorkers = 4
	}
	if c.WalkWorkers == 0 {
		c.WalkWorkers = 4
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// validate rejects values the scan pipeline cannot work with.
func (c *Config) validate() error {
	switch c.Scope.Mode {
	case ScopeFull, ScopeInclude, ScopeExclude:
	default:
		return fmt.Errorf("scope.mode %q: must be full, include or exclude", c.Scope.Mode)
	}
	if c.SimilarityLevel < 1 || c.SimilarityLevel > 3 {
		return fmt.Errorf("similarity_level %d: must be 1..3", c.SimilarityLevel)
	}
	return nil
}

// DecodeScopePaths parses a persisted scope path list. The scan's
// self-healing prune stores the surviving list so a restart does not
// resurrect entries that were already found invalid.
func DecodeScopePaths(raw string) ([]string, error) {
	var paths []string
	if err := json.Unmarshal([]byte(raw), &paths); err != nil {
		return nil, fmt.Errorf("parse persisted scope paths: %w", err)
	}
	return paths, nil
}

// DecodeSimilarityLevel parses a persisted similarity level. A level
// changed at runtime is stored as a setting and restored on start, so it
// survives a restart instead of reverting to the YAML value.
func DecodeSimilarityLevel(raw string) (int, error) {
	level, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse persisted similarity level %q: %w", raw, err)
	}
	if level < 1 || level > 3 {
		return 0, fmt.Errorf("persisted similarity level %d: must be 1..3", level)
	}
	return level, nil
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the server
// can start without a mounted config file (useful for bare Docker runs).
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return &cfg, nil
}
