// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/swarmhash/lib/chunkstore"
	"github.com/bureau-foundation/swarmhash/lib/pipeline"
	"github.com/bureau-foundation/swarmhash/lib/postage"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "SWARMHASH_CONFIG"

// Config is the master configuration for swarmhash.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment" json:"environment"`

	// Root is the base directory for swarmhash data. Other paths may
	// refer to it as ${SWARMHASH_ROOT}.
	Root string `yaml:"root" json:"root"`

	Store    StoreConfig    `yaml:"store" json:"store"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Postage  PostageConfig  `yaml:"postage" json:"postage"`
	Manifest ManifestConfig `yaml:"manifest" json:"manifest"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty" json:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty" json:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Root     string          `yaml:"root,omitempty" json:"root,omitempty"`
	Store    *StoreConfig    `yaml:"store,omitempty" json:"store,omitempty"`
	Pipeline *PipelineConfig `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
	Postage  *PostageConfig  `yaml:"postage,omitempty" json:"postage,omitempty"`
}

// StoreConfig configures the chunk store.
type StoreConfig struct {
	// Path is the filesystem store directory.
	// Default: ${SWARMHASH_ROOT}/store
	Path string `yaml:"path" json:"path"`

	// Compression is the record compression: "none", "lz4" or "zstd".
	// Default: lz4 (development), zstd (production)
	Compression string `yaml:"compression" json:"compression"`

	// CacheSize is the number of chunks kept in the read cache. Zero
	// disables the cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// Replicas are additional filesystem store directories read in a
	// race with Path. Writes go to every replica.
	Replicas []string `yaml:"replicas" json:"replicas"`

	// RaceDelay is the head start each replica gives the one before
	// it, as a Go duration.
	// Default: 50ms
	RaceDelay string `yaml:"race_delay" json:"race_delay"`
}

// PipelineConfig configures the hashing pipeline.
type PipelineConfig struct {
	// Concurrency bounds the chunk tasks in flight. Zero uses GOMAXPROCS.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// CompactLevel is the number of encryption keys tried per chunk to
	// keep postage buckets even. Zero disables compaction.
	CompactLevel uint16 `yaml:"compact_level" json:"compact_level"`

	// Redundancy is the erasure coding level. Only "none" is supported.
	Redundancy string `yaml:"redundancy" json:"redundancy"`
}

// PostageConfig configures the local postage batch.
type PostageConfig struct {
	// BatchID is the hex batch identifier.
	BatchID string `yaml:"batch_id" json:"batch_id"`

	// Depth is the batch depth; each bucket holds 2^(depth-16) chunks.
	// Default: 22
	Depth uint8 `yaml:"depth" json:"depth"`

	// StampsFile is where issued stamps are persisted between runs.
	// Default: ${SWARMHASH_ROOT}/stamps.cbor
	StampsFile string `yaml:"stamps_file" json:"stamps_file"`
}

// ManifestConfig configures directory manifests.
type ManifestConfig struct {
	// Encrypted obfuscates manifest nodes with a random key.
	Encrypted bool `yaml:"encrypted" json:"encrypted"`

	// IndexDocument is served for the empty path when present in the
	// directory.
	// Default: index.html
	IndexDocument string `yaml:"index_document" json:"index_document"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Root:        filepath.Join(homeDir, ".cache", "swarmhash"),
		Store: StoreConfig{
			Path:        "${SWARMHASH_ROOT}/store",
			Compression: chunkstore.CompressionLZ4.String(),
			CacheSize:   1024,
			RaceDelay:   "50ms",
		},
		Pipeline: PipelineConfig{
			Redundancy: swarm.RedundancyNone.String(),
		},
		Postage: PostageConfig{
			BatchID:    strings.Repeat("00", swarm.HashSize),
			Depth:      22,
			StampsFile: "${SWARMHASH_ROOT}/stamps.cbor",
		},
		Manifest: ManifestConfig{
			IndexDocument: "index.html",
		},
	}
}

// Load loads configuration from the SWARMHASH_CONFIG environment
// variable. There are no fallbacks: if it is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your swarmhash config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files named
// *.json or *.jsonc are read as JSON with comments and trailing commas;
// anything else as YAML.
//
// Environment variables do not override config values. The only
// expansion performed is ${VAR} substitution in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: denser records on disk.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Store: &StoreConfig{Compression: chunkstore.CompressionZstd.String()},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Root != "" {
		c.Root = overrides.Root
	}

	if overrides.Store != nil {
		if overrides.Store.Path != "" {
			c.Store.Path = overrides.Store.Path
		}
		if overrides.Store.Compression != "" {
			c.Store.Compression = overrides.Store.Compression
		}
		if overrides.Store.CacheSize != 0 {
			c.Store.CacheSize = overrides.Store.CacheSize
		}
		if len(overrides.Store.Replicas) > 0 {
			c.Store.Replicas = overrides.Store.Replicas
		}
		if overrides.Store.RaceDelay != "" {
			c.Store.RaceDelay = overrides.Store.RaceDelay
		}
	}

	if overrides.Pipeline != nil {
		if overrides.Pipeline.Concurrency != 0 {
			c.Pipeline.Concurrency = overrides.Pipeline.Concurrency
		}
		// CompactLevel is a count where zero is meaningful, so it is
		// always taken from the override.
		c.Pipeline.CompactLevel = overrides.Pipeline.CompactLevel
		if overrides.Pipeline.Redundancy != "" {
			c.Pipeline.Redundancy = overrides.Pipeline.Redundancy
		}
	}

	if overrides.Postage != nil {
		if overrides.Postage.BatchID != "" {
			c.Postage.BatchID = overrides.Postage.BatchID
		}
		if overrides.Postage.Depth != 0 {
			c.Postage.Depth = overrides.Postage.Depth
		}
		if overrides.Postage.StampsFile != "" {
			c.Postage.StampsFile = overrides.Postage.StampsFile
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"SWARMHASH_ROOT": c.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["SWARMHASH_ROOT"] = c.Root // Update for dependent paths.

	c.Store.Path = expandVars(c.Store.Path, vars)
	for i, replica := range c.Store.Replicas {
		c.Store.Replicas[i] = expandVars(replica, vars)
	}
	c.Postage.StampsFile = expandVars(c.Postage.StampsFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Root == "" {
		errs = append(errs, fmt.Errorf("root is required"))
	}

	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required"))
	}
	if _, err := chunkstore.ParseCompression(c.Store.Compression); err != nil {
		errs = append(errs, fmt.Errorf("store.compression: %w", err))
	}
	if c.Store.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("store.cache_size must not be negative"))
	}
	if _, err := c.RaceDelay(); err != nil {
		errs = append(errs, fmt.Errorf("store.race_delay: %w", err))
	}

	if c.Pipeline.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency must not be negative"))
	}
	if redundancy, err := swarm.ParseRedundancyLevel(c.Pipeline.Redundancy); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.redundancy: %w", err))
	} else if redundancy != swarm.RedundancyNone {
		errs = append(errs, fmt.Errorf("pipeline.redundancy %s: %w", redundancy, swarm.ErrNotImplemented))
	}

	if _, err := swarm.ParseHash(c.Postage.BatchID); err != nil {
		errs = append(errs, fmt.Errorf("postage.batch_id: %w", err))
	}
	if c.Postage.Depth < swarm.BucketDepth || c.Postage.Depth > swarm.BucketDepth+31 {
		errs = append(errs, fmt.Errorf("postage.depth must be in [%d, %d]", swarm.BucketDepth, swarm.BucketDepth+31))
	}

	if strings.Contains(c.Manifest.IndexDocument, "/") {
		errs = append(errs, fmt.Errorf("manifest.index_document must be a file name, got %q", c.Manifest.IndexDocument))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := append([]string{c.Root, c.Store.Path, filepath.Dir(c.Postage.StampsFile)}, c.Store.Replicas...)

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

// RaceDelay returns the parsed replica race delay.
func (c *Config) RaceDelay() (time.Duration, error) {
	if c.Store.RaceDelay == "" {
		return 0, nil
	}
	delay, err := time.ParseDuration(c.Store.RaceDelay)
	if err != nil {
		return 0, err
	}
	if delay < 0 {
		return 0, fmt.Errorf("negative delay %s", delay)
	}
	return delay, nil
}

// OpenStore opens the configured chunk store: the filesystem store at
// Store.Path, raced against any replicas, behind an LRU read cache
// when CacheSize is positive.
func (c *Config) OpenStore(logger *slog.Logger) (chunkstore.Store, error) {
	compression, err := chunkstore.ParseCompression(c.Store.Compression)
	if err != nil {
		return nil, err
	}
	options := chunkstore.FileStoreOptions{Compression: compression, Logger: logger}

	primary, err := chunkstore.NewFileStore(c.Store.Path, options)
	if err != nil {
		return nil, err
	}
	var store chunkstore.Store = primary

	if len(c.Store.Replicas) > 0 {
		replicas := []chunkstore.Store{primary}
		for _, path := range c.Store.Replicas {
			replica, err := chunkstore.NewFileStore(path, options)
			if err != nil {
				return nil, err
			}
			replicas = append(replicas, replica)
		}
		delay, err := c.RaceDelay()
		if err != nil {
			return nil, err
		}
		race, err := chunkstore.NewRaceStore(replicas, chunkstore.RaceStoreOptions{Delay: delay, Logger: logger})
		if err != nil {
			return nil, err
		}
		store = race
	}

	if c.Store.CacheSize > 0 {
		cached, err := chunkstore.NewCachedStore(store, c.Store.CacheSize)
		if err != nil {
			return nil, err
		}
		store = cached
	}
	return store, nil
}

// NewIssuer creates the issuer of the configured postage batch.
func (c *Config) NewIssuer() (*postage.BucketIssuer, error) {
	batchID, err := swarm.ParseHash(c.Postage.BatchID)
	if err != nil {
		return nil, fmt.Errorf("parsing postage.batch_id: %w", err)
	}
	return postage.NewBucketIssuer(batchID, c.Postage.Depth)
}

// PipelineOptions converts the pipeline section into pipeline options
// for the given collaborators.
func (c *Config) PipelineOptions(store chunkstore.Store, stamper postage.Stamper, logger *slog.Logger) (pipeline.Options, error) {
	redundancy, err := swarm.ParseRedundancyLevel(c.Pipeline.Redundancy)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("parsing pipeline.redundancy: %w", err)
	}
	return pipeline.Options{
		Store:        store,
		Stamper:      stamper,
		Concurrency:  c.Pipeline.Concurrency,
		CompactLevel: c.Pipeline.CompactLevel,
		Redundancy:   redundancy,
		Logger:       logger,
	}, nil
}
