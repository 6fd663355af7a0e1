package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/threadscrub/internal/config"
	"github.com/roach88/threadscrub/internal/testutil"
)

// DefaultSecret is used when a scenario does not name one.
const DefaultSecret = "s3cr3t"

// Scenario defines one removal run and its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Secret  string      `yaml:"secret,omitempty"`
	Mode    config.Mode `yaml:"mode,omitempty"`
	Workers int         `yaml:"workers,omitempty"`
	DryRun  bool        `yaml:"dry_run,omitempty"`

	// Pattern overrides the corpus file glob.
	Pattern string `yaml:"pattern,omitempty"`

	// Identifiers is the removal request, in order.
	Identifiers []string `yaml:"identifiers"`

	// Files is the corpus, relative to the corpus root.
	Files []FileSpec `yaml:"files"`

	Expect Expectation `yaml:"expect"`
}

// FileSpec is one corpus file.
type FileSpec struct {
	Path string `yaml:"path"`

	// Terminator is "lf" (default) or "crlf".
	Terminator string `yaml:"terminator,omitempty"`

	// NoFinalNewline leaves the last record unterminated.
	NoFinalNewline bool `yaml:"no_final_newline,omitempty"`

	Records []RecordSpec `yaml:"records"`
}

// RecordSpec is one corpus line: either a thread built from messages or a
// raw line written verbatim.
type RecordSpec struct {
	Messages []testutil.Message `yaml:"messages,omitempty"`
	Raw      string             `yaml:"raw,omitempty"`
}

// Expectation is the expected outcome of a scenario.
type Expectation struct {
	TotalRemoved int `yaml:"total_removed"`

	// Removed is the per-identifier count, in request order.
	Removed []int `yaml:"removed,omitempty"`

	// Survivors maps a file to the indexes of the records left in it.
	Survivors map[string][]int `yaml:"survivors,omitempty"`

	// Untouched lists files whose bytes must not change.
	Untouched []string `yaml:"untouched,omitempty"`

	// Error is a substring of the expected run error. Empty means the run
	// must succeed.
	Error string `yaml:"error,omitempty"`
}

func (f FileSpec) terminator() string {
	if f.Terminator == "crlf" {
		return "\r\n"
	}
	return "\n"
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "survivor:" vs "survivors:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Mode {
	case "", config.ModeSequential, config.ModeBatch:
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}

	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	if len(s.Files) == 0 {
		return fmt.Errorf("files list is required and must be non-empty")
	}

	files := make(map[string]FileSpec, len(s.Files))
	for i, f := range s.Files {
		if err := validateFile(f); err != nil {
			return fmt.Errorf("files[%d]: %w", i, err)
		}
		if _, dup := files[f.Path]; dup {
			return fmt.Errorf("files[%d]: duplicate path %s", i, f.Path)
		}
		files[f.Path] = f
	}

	if s.Expect.Removed != nil && len(s.Expect.Removed) != len(s.Identifiers) {
		return fmt.Errorf("expect.removed has %d entries for %d identifiers", len(s.Expect.Removed), len(s.Identifiers))
	}
	for path, idx := range s.Expect.Survivors {
		f, ok := files[path]
		if !ok {
			return fmt.Errorf("expect.survivors: unknown file %s", path)
		}
		for _, i := range idx {
			if i < 0 || i >= len(f.Records) {
				return fmt.Errorf("expect.survivors[%s]: record %d out of range", path, i)
			}
		}
	}
	for _, path := range s.Expect.Untouched {
		if _, ok := files[path]; !ok {
			return fmt.Errorf("expect.untouched: unknown file %s", path)
		}
	}

	return nil
}

func validateFile(f FileSpec) error {
	if f.Path == "" {
		return fmt.Errorf("path is required")
	}
	if filepath.IsAbs(f.Path) || strings.HasPrefix(filepath.Clean(f.Path), "..") {
		return fmt.Errorf("path %s must be relative to the corpus root", f.Path)
	}
	switch f.Terminator {
	case "", "lf", "crlf":
	default:
		return fmt.Errorf("terminator must be lf or crlf, got %q", f.Terminator)
	}
	for i, r := range f.Records {
		hasMessages := r.Messages != nil
		hasRaw := r.Raw != ""
		if hasMessages == hasRaw {
			return fmt.Errorf("records[%d]: exactly one of messages or raw is required", i)
		}
	}
	return nil
}
