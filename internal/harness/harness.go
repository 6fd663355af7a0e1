package harness

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/threadscrub/internal/config"
	"github.com/roach88/threadscrub/internal/removal"
	"github.com/roach88/threadscrub/internal/rewrite"
	"github.com/roach88/threadscrub/internal/staged"
	"github.com/roach88/threadscrub/internal/testutil"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool

	// Errors contains one message per failed expectation.
	Errors []string

	// Report is the orchestrator's report. It may be nil when the run
	// failed before discovering files.
	Report *removal.Report

	// RunErr is the error returned by the run, if any.
	RunErr error

	// Lines holds each file's original lines, terminators included.
	Lines map[string][]string

	// Before and After hold file contents around the run. A file missing
	// after the run has no After entry.
	Before map[string]string
	After  map[string]string

	// Staging lists staging files left in the corpus.
	Staging []string
}

// AddError records a failed expectation.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run lays the scenario's corpus out under dir, runs the removal and
// evaluates the expectations.
//
// The returned error covers harness failures only. A failing run is
// reported through Result.RunErr and checked against expect.error.
func Run(ctx context.Context, s *Scenario, dir string) (*Result, error) {
	secret := s.Secret
	if secret == "" {
		secret = DefaultSecret
	}
	builder, err := testutil.NewRecordBuilder(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create record builder: %w", err)
	}

	result := &Result{
		Pass:   true,
		Errors: []string{},
		Lines:  make(map[string][]string),
		Before: make(map[string]string),
		After:  make(map[string]string),
	}
	if err := materialize(dir, s, builder, result); err != nil {
		return nil, fmt.Errorf("failed to write corpus: %w", err)
	}

	cfg := config.Default()
	cfg.Root = dir
	cfg.Secret = secret
	cfg.DryRun = s.DryRun
	if s.Mode != "" {
		cfg.Mode = s.Mode
	}
	if s.Workers > 0 {
		cfg.Workers = s.Workers
	}
	if s.Pattern != "" {
		cfg.Pattern = s.Pattern
	}

	rw := rewrite.New(builder.Hasher(), rewrite.Options{DryRun: cfg.DryRun})
	orch := removal.New(cfg, rw,
		removal.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in tests
	)
	result.Report, result.RunErr = orch.Run(ctx, s.Identifiers)

	if err := collect(dir, s, result); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	for _, msg := range EvaluateExpectations(s, result) {
		result.AddError(msg)
	}
	return result, nil
}

func materialize(dir string, s *Scenario, b *testutil.RecordBuilder, result *Result) error {
	for _, f := range s.Files {
		term := f.terminator()
		lines := make([]string, len(f.Records))
		for i, r := range f.Records {
			body := r.Raw
			if r.Messages != nil {
				line, err := b.Line(r.Messages...)
				if err != nil {
					return fmt.Errorf("%s record %d: %w", f.Path, i, err)
				}
				body = string(line)
			}
			if i < len(f.Records)-1 || !f.NoFinalNewline {
				body += term
			}
			lines[i] = body
		}

		content := strings.Join(lines, "")
		path := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
		result.Lines[f.Path] = lines
		result.Before[f.Path] = content
	}
	return nil
}

func collect(dir string, s *Scenario, result *Result) error {
	for _, f := range s.Files {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		result.After[f.Path] = string(data)
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && staged.IsStagingFile(path) {
			rel, _ := filepath.Rel(dir, path)
			result.Staging = append(result.Staging, filepath.ToSlash(rel))
		}
		return nil
	})
}
