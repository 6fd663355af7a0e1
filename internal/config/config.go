// Package config builds the run configuration: corpus location, removal
// list, hashing secret and execution options.
//
// A Config is constructed once at startup and passed by pointer to the
// components that need it. Nothing here is global.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults match the layout produced by the publishing pipeline.
const (
	DefaultSecretEnv   = "HASH_SECRET"
	DefaultPattern     = "processed_*_clusters/cluster_*.jsonl"
	DefaultRemovalList = "did_removal_list.txt"
	DefaultEnvFile     = ".env"
	DefaultRootDirName = "cleaned"
)

// Mode selects how identifiers are scheduled against the corpus.
type Mode string

const (
	// ModeSequential processes one identifier against the whole corpus
	// before starting the next.
	ModeSequential Mode = "sequential"
	// ModeBatch tests every identifier in a single pass over the corpus.
	ModeBatch Mode = "batch"
)

// Configuration errors. All of them are fatal before any file is touched.
var (
	ErrMissingSecret          = errors.New("hash secret not set")
	ErrNoIdentifiers          = errors.New("no identifiers to remove")
	ErrIdentifierListNotFound = errors.New("identifier list not found")
	ErrInvalidConfig          = errors.New("invalid configuration")
)

// Config holds everything a removal run needs.
type Config struct {
	// Root is the corpus root directory.
	Root string `yaml:"root"`
	// Pattern selects corpus files below Root (filepath.Glob syntax).
	Pattern string `yaml:"pattern"`
	// RemovalList is the identifier list file.
	RemovalList string `yaml:"removal_list"`
	// EnvFile is an optional dotenv file loaded before reading the secret.
	EnvFile string `yaml:"env_file"`
	// SecretEnv names the environment variable holding the secret.
	SecretEnv string `yaml:"secret_env"`
	// Workers bounds the number of files processed concurrently.
	Workers int  `yaml:"workers"`
	Mode    Mode `yaml:"mode"`
	DryRun  bool `yaml:"dry_run"`
	// Ledger is an optional SQLite audit database path.
	Ledger string `yaml:"ledger"`
	// MetricsTextfile is an optional Prometheus textfile output path.
	MetricsTextfile string `yaml:"metrics_textfile"`

	// Secret is never read from YAML or flags.
	Secret string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	root := DefaultRootDirName
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, DefaultRootDirName)
	}
	return &Config{
		Root:        root,
		Pattern:     DefaultPattern,
		RemovalList: DefaultRemovalList,
		EnvFile:     DefaultEnvFile,
		SecretEnv:   DefaultSecretEnv,
		Workers:     1,
		Mode:        ModeSequential,
	}
}

// LoadFile overlays the YAML file at path onto c. Unknown keys are rejected
// so a typo cannot silently fall back to a default corpus location.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// LoadSecret loads c.EnvFile if it exists, then reads the secret from
// c.SecretEnv. Variables already in the environment win over the file.
func (c *Config) LoadSecret() error {
	if c.EnvFile != "" {
		if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: env file %s: %v", ErrInvalidConfig, c.EnvFile, err)
		}
	}
	name := c.SecretEnv
	if name == "" {
		name = DefaultSecretEnv
	}
	secret, ok := os.LookupEnv(name)
	if !ok || secret == "" {
		return fmt.Errorf("%w: set %s in the environment or in %s", ErrMissingSecret, name, c.EnvFile)
	}
	c.Secret = secret
	return nil
}

// Validate checks option values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("%w: corpus root is empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Pattern) == "" {
		return fmt.Errorf("%w: file pattern is empty", ErrInvalidConfig)
	}
	if _, err := filepath.Match(c.Pattern, ""); err != nil {
		return fmt.Errorf("%w: file pattern %q: %v", ErrInvalidConfig, c.Pattern, err)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	switch c.Mode {
	case ModeSequential, ModeBatch:
	default:
		return fmt.Errorf("%w: mode must be %q or %q, got %q", ErrInvalidConfig, ModeSequential, ModeBatch, c.Mode)
	}
	return nil
}
