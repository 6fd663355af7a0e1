// Package removal drives the corpus rewriter across every corpus file for
// every identifier of a removal request and accumulates the counts.
package removal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/threadscrub/internal/config"
	"github.com/roach88/threadscrub/internal/ledger"
	"github.com/roach88/threadscrub/internal/metrics"
	"github.com/roach88/threadscrub/internal/rewrite"
)

// Recorder persists run progress. *ledger.Ledger implements it.
type Recorder interface {
	BeginRun(ctx context.Context, info ledger.RunInfo) (string, error)
	RecordFile(ctx context.Context, runID string, e ledger.FileEntry) error
	FinishRun(ctx context.Context, runID string, totalRemoved int, runErr error) error
}

// FileRewriter is the per-file operation. *rewrite.Rewriter implements it.
type FileRewriter interface {
	File(ctx context.Context, path string, targets []string) (rewrite.FileResult, error)
}

// FileReport is the outcome of one file for one identifier.
type FileReport struct {
	Path      string `json:"path"`
	Scanned   int    `json:"scanned"`
	Removed   int    `json:"removed"`
	Rewritten bool   `json:"rewritten"`
}

// IdentifierReport totals one identifier of the request.
type IdentifierReport struct {
	Identifier string       `json:"identifier"`
	Removed    int          `json:"removed"`
	Files      []FileReport `json:"files"`
}

// Report is the final summary of a run.
type Report struct {
	RunID        string             `json:"run_id,omitempty"`
	Mode         config.Mode        `json:"mode"`
	DryRun       bool               `json:"dry_run"`
	Files        int                `json:"files"`
	Identifiers  []IdentifierReport `json:"identifiers"`
	TotalRemoved int                `json:"total_removed"`
}

// Orchestrator runs removal requests over a corpus.
type Orchestrator struct {
	cfg      *config.Config
	rewriter FileRewriter
	logger   *slog.Logger
	recorder Recorder
	metrics  *metrics.Collector
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches an audit recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator.
func New(cfg *config.Config, rw FileRewriter, opts ...Option) *Orchestrator {
	o := &Orchestrator{cfg: cfg, rewriter: rw, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run removes every thread belonging to ids from the corpus.
//
// In sequential mode each identifier is processed against the whole corpus
// before the next starts. In batch mode all identifiers are tested in one
// pass; a thread matching several identifiers counts for the first one in
// list order, which is what sequential mode would have reported.
//
// The first error stops the run. Files already replaced stay replaced, each
// replacement being atomic; re-running is safe because removal is idempotent.
func (o *Orchestrator) Run(ctx context.Context, ids []string) (report *Report, err error) {
	if len(ids) == 0 {
		return nil, config.ErrNoIdentifiers
	}

	files, err := Discover(o.cfg.Root, o.cfg.Pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		o.logger.Warn("no corpus files matched", "root", o.cfg.Root, "pattern", o.cfg.Pattern)
	}

	report = &Report{
		Mode:        o.cfg.Mode,
		DryRun:      o.cfg.DryRun,
		Files:       len(files),
		Identifiers: make([]IdentifierReport, len(ids)),
	}
	for i, id := range ids {
		report.Identifiers[i] = IdentifierReport{Identifier: id, Files: []FileReport{}}
	}

	started := time.Now()
	if o.recorder != nil {
		runID, err := o.recorder.BeginRun(ctx, ledger.RunInfo{
			Mode:        string(o.cfg.Mode),
			DryRun:      o.cfg.DryRun,
			Identifiers: len(ids),
			Files:       len(files),
		})
		if err != nil {
			return nil, err
		}
		report.RunID = runID
	}
	defer func() {
		if o.metrics != nil {
			o.metrics.ObserveRun(time.Since(started), err)
		}
		if o.recorder != nil {
			if finishErr := o.recorder.FinishRun(context.WithoutCancel(ctx), report.RunID, report.TotalRemoved, err); finishErr != nil {
				o.logger.Error("failed to finish ledger run", "run_id", report.RunID, "error", finishErr)
			}
		}
	}()

	if o.cfg.Mode == config.ModeBatch {
		o.logger.Info("processing identifiers in one pass", "identifiers", len(ids), "files", len(files))
		err = o.pass(ctx, report, files, ids, 0)
	} else {
		for i, id := range ids {
			o.logger.Info("processing identifier", "ordinal", i, "files", len(files))
			o.logger.Debug("identifier value", "ordinal", i, "identifier", id)
			if err = o.pass(ctx, report, files, []string{id}, i); err != nil {
				break
			}
		}
	}
	if err != nil {
		return report, err
	}

	o.logger.Info("removal complete", "threads_removed", report.TotalRemoved, "files", len(files))
	return report, nil
}

// pass runs the rewriter over every file for targets. targets[k] is the
// identifier at ordinal base+k of the request.
func (o *Orchestrator) pass(ctx context.Context, report *Report, files, targets []string, base int) error {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, path := range files {
		path := path
		g.Go(func() error {
			res, err := o.rewriter.File(gctx, path, targets)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for k, removed := range res.Removed {
				fr := FileReport{
					Path:      path,
					Scanned:   res.Scanned,
					Removed:   removed,
					Rewritten: res.Rewritten,
				}
				ir := &report.Identifiers[base+k]
				ir.Files = append(ir.Files, fr)
				ir.Removed += removed
				report.TotalRemoved += removed

				if o.recorder != nil {
					if err := o.recorder.RecordFile(gctx, report.RunID, ledger.FileEntry{
						Ordinal:   base + k,
						Path:      path,
						Scanned:   res.Scanned,
						Removed:   removed,
						Rewritten: res.Rewritten,
					}); err != nil {
						return err
					}
				}
			}
			if o.metrics != nil {
				o.metrics.ObserveFile(res.Scanned, res.TotalRemoved(), res.Rewritten)
			}
			o.logFile(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("removal pass: %w", err)
	}

	// Workers finish in any order.
	for k := range targets {
		sortFiles(report.Identifiers[base+k].Files)
	}
	return nil
}

func (o *Orchestrator) logFile(res rewrite.FileResult) {
	removed := res.TotalRemoved()
	switch {
	case removed > 0 && o.cfg.DryRun:
		o.logger.Info("would remove threads", "file", res.Path, "removed", removed)
	case removed > 0:
		o.logger.Info("removed threads", "file", res.Path, "removed", removed)
	default:
		o.logger.Debug("no threads to remove", "file", res.Path, "scanned", res.Scanned)
	}
}
