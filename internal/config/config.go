// Package config loads and validates the apicache configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/electwix/apicache/internal/cache"
	"github.com/electwix/apicache/internal/registry"
)

// ErrInvalid marks a configuration value that failed validation.
var ErrInvalid = errors.New("invalid configuration")

// Sink identifies where stats reports are recorded.
type Sink string

const (
	// SinkNone disables the history sink.
	SinkNone Sink = ""
	// SinkSQLite records into a SQLite database file.
	SinkSQLite Sink = "sqlite"
	// SinkPostgres records into a PostgreSQL database.
	SinkPostgres Sink = "postgres"
)

var validSinks = map[Sink]struct{}{
	SinkNone:     {},
	SinkSQLite:   {},
	SinkPostgres: {},
}

// Defaults for the maintenance and reporting timers.
const (
	DefaultCleanupInterval = time.Hour
	DefaultStatsInterval   = 5 * time.Second
)

// CacheConfig configures one named cache.
type CacheConfig struct {
	TTL string `toml:"ttl" yaml:"ttl"`
}

// CachesConfig groups the named caches.
type CachesConfig struct {
	Entity CacheConfig `toml:"entity" yaml:"entity"`
	Search CacheConfig `toml:"search" yaml:"search"`
}

// CleanupConfig configures the periodic sweep.
type CleanupConfig struct {
	Interval       string   `toml:"interval" yaml:"interval"`
	SampleFraction *float64 `toml:"sample_fraction" yaml:"sample_fraction"`
	MinSample      *int     `toml:"min_sample" yaml:"min_sample"`
	MaxSample      *int     `toml:"max_sample" yaml:"max_sample"`
}

// StatsConfig configures the stats reporter.
type StatsConfig struct {
	Interval string `toml:"interval" yaml:"interval"`
	Sink     Sink   `toml:"sink" yaml:"sink"`
	DSN      string `toml:"dsn" yaml:"dsn"`
}

// Config mirrors the apicache TOML (or YAML) schema.
type Config struct {
	Caches  CachesConfig  `toml:"caches" yaml:"caches"`
	Cleanup CleanupConfig `toml:"cleanup" yaml:"cleanup"`
	Stats   StatsConfig   `toml:"stats" yaml:"stats"`
}

// CleanupPlan is the resolved sweep schedule.
type CleanupPlan struct {
	Interval time.Duration
	Sweep    cache.SweepOptions
}

// StatsPlan is the resolved reporter setup.
type StatsPlan struct {
	Interval time.Duration
	Sink     Sink
	DSN      string
}

// Plan is the fully-resolved configuration used by the command.
type Plan struct {
	Registry registry.Config
	Cleanup  CleanupPlan
	Stats    StatsPlan
}

// LoadOptions tunes config loading behavior.
type LoadOptions struct {
	Strict bool
}

// Result wraps a loaded plan alongside any non-fatal warnings.
type Result struct {
	Plan     Plan
	Warnings []string
}

// Default returns the plan used when no configuration file is given.
func Default() Plan {
	return Plan{
		Registry: registry.DefaultConfig(),
		Cleanup: CleanupPlan{
			Interval: DefaultCleanupInterval,
			Sweep:    cache.DefaultSweepOptions(),
		},
		Stats: StatsPlan{
			Interval: DefaultStatsInterval,
		},
	}
}

// Load reads, validates, and resolves a configuration file. Files ending in
// .yaml or .yml are read as YAML, everything else as TOML. An empty path
// yields Default.
func Load(path string, opts LoadOptions) (Result, error) {
	var res Result
	if path == "" {
		res.Plan = Default()
		return res, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg Config
	var raw map[string]any
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return res, fmt.Errorf("%s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return res, fmt.Errorf("%s: %w", path, err)
		}
	} else {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return res, fmt.Errorf("%s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &raw); err != nil {
			return res, fmt.Errorf("%s: %w", path, err)
		}
	}

	unknownKeys := collectUnknownKeys("", raw)
	if len(unknownKeys) > 0 {
		slices.Sort(unknownKeys)
		message := fmt.Sprintf("%s: unknown configuration keys: %s", path, strings.Join(unknownKeys, ", "))
		if opts.Strict {
			return res, errors.New(message)
		}
		res.Warnings = append(res.Warnings, message)
	}

	plan, err := resolve(cfg)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	res.Plan = plan
	return res, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// knownKeys lists the accepted keys of every table, by dotted path.
var knownKeys = map[string][]string{
	"":              {"caches", "cleanup", "stats"},
	"caches":        {"entity", "search"},
	"caches.entity": {"ttl"},
	"caches.search": {"ttl"},
	"cleanup":       {"interval", "sample_fraction", "min_sample", "max_sample"},
	"stats":         {"interval", "sink", "dsn"},
}

func collectUnknownKeys(prefix string, table map[string]any) []string {
	known := knownKeys[prefix]
	unknown := make([]string, 0)
	for key, value := range table {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if !slices.Contains(known, key) {
			unknown = append(unknown, path)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			unknown = append(unknown, collectUnknownKeys(path, nested)...)
		}
	}
	return unknown
}

func resolve(cfg Config) (Plan, error) {
	plan := Default()

	entityTTL, err := resolveDuration("caches.entity.ttl", cfg.Caches.Entity.TTL, registry.DefaultEntityTTL)
	if err != nil {
		return plan, err
	}
	searchTTL, err := resolveDuration("caches.search.ttl", cfg.Caches.Search.TTL, registry.DefaultSearchTTL)
	if err != nil {
		return plan, err
	}
	plan.Registry = registry.Config{EntityTTL: entityTTL, SearchTTL: searchTTL}

	plan.Cleanup.Interval, err = resolveDuration("cleanup.interval", cfg.Cleanup.Interval, DefaultCleanupInterval)
	if err != nil {
		return plan, err
	}
	plan.Cleanup.Sweep, err = resolveSweep(cfg.Cleanup)
	if err != nil {
		return plan, err
	}

	plan.Stats.Interval, err = resolveDuration("stats.interval", cfg.Stats.Interval, DefaultStatsInterval)
	if err != nil {
		return plan, err
	}
	if _, ok := validSinks[cfg.Stats.Sink]; !ok {
		return plan, fmt.Errorf("%w: unsupported stats.sink %q", ErrInvalid, cfg.Stats.Sink)
	}
	if cfg.Stats.Sink != SinkNone && cfg.Stats.DSN == "" {
		return plan, fmt.Errorf("%w: stats.dsn is required for sink %q", ErrInvalid, cfg.Stats.Sink)
	}
	plan.Stats.Sink = cfg.Stats.Sink
	plan.Stats.DSN = cfg.Stats.DSN

	return plan, nil
}

func resolveDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalid, field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalid, field, value)
	}
	return d, nil
}

func resolveSweep(cfg CleanupConfig) (cache.SweepOptions, error) {
	sweep := cache.DefaultSweepOptions()

	if cfg.SampleFraction != nil {
		f := *cfg.SampleFraction
		if f <= 0 || f > 1 {
			return sweep, fmt.Errorf("%w: cleanup.sample_fraction must be in (0, 1], got %v", ErrInvalid, f)
		}
		sweep.SampleFraction = f
	}
	if cfg.MinSample != nil {
		if *cfg.MinSample < 1 {
			return sweep, fmt.Errorf("%w: cleanup.min_sample must be at least 1, got %d", ErrInvalid, *cfg.MinSample)
		}
		sweep.MinSample = *cfg.MinSample
	}
	if cfg.MaxSample != nil {
		if *cfg.MaxSample < 1 {
			return sweep, fmt.Errorf("%w: cleanup.max_sample must be at least 1, got %d", ErrInvalid, *cfg.MaxSample)
		}
		sweep.MaxSample = *cfg.MaxSample
	}
	if sweep.MinSample > sweep.MaxSample {
		return sweep, fmt.Errorf("%w: cleanup.min_sample (%d) exceeds cleanup.max_sample (%d)",
			ErrInvalid, sweep.MinSample, sweep.MaxSample)
	}
	return sweep, nil
}
