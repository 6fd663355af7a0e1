package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/threadscrub/internal/config"
	"github.com/roach88/threadscrub/internal/digest"
	"github.com/roach88/threadscrub/internal/ledger"
	"github.com/roach88/threadscrub/internal/metrics"
	"github.com/roach88/threadscrub/internal/removal"
	"github.com/roach88/threadscrub/internal/rewrite"
)

// RemoveOptions holds options for the remove command.
type RemoveOptions struct {
	*RootOptions
	Root            string
	Pattern         string
	List            string
	EnvFile         string
	SecretEnv       string
	Workers         int
	Batch           bool
	DryRun          bool
	Ledger          string
	MetricsTextfile string
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemoveOptions{RootOptions: rootOpts}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove every thread belonging to the identifiers in the removal list",
		Long: `Remove every thread belonging to the identifiers in the removal list.

For each identifier, every corpus file below --root matching --pattern is
scanned. A thread is removed when the digest recomputed from the identifier,
the thread content and the secret equals any message's stored user_id.
Files with removals are replaced atomically; other files are not touched.

The secret is read from the environment variable named by --secret-env,
optionally loaded from --env-file.`,
		Example: `  # Remove threads listed in did_removal_list.txt from ~/cleaned
  threadscrub remove

  # Count matches without modifying anything
  threadscrub remove --root ./cleaned --list requests.txt --dry-run

  # One pass over the corpus for all identifiers, four files at a time
  threadscrub remove --batch --workers 4 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", defaults.Root, "corpus root directory")
	cmd.Flags().StringVar(&opts.Pattern, "pattern", defaults.Pattern, "corpus file glob relative to --root")
	cmd.Flags().StringVar(&opts.List, "list", defaults.RemovalList, "removal list, one identifier per line")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", defaults.EnvFile, "dotenv file loaded before reading the secret")
	cmd.Flags().StringVar(&opts.SecretEnv, "secret-env", defaults.SecretEnv, "environment variable holding the hash secret")
	cmd.Flags().IntVar(&opts.Workers, "workers", defaults.Workers, "files processed concurrently")
	cmd.Flags().BoolVar(&opts.Batch, "batch", false, "test all identifiers in a single pass over the corpus")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "count matching threads without rewriting files")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "SQLite audit ledger path")
	cmd.Flags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this textfile")

	return cmd
}

func runRemove(cmd *cobra.Command, opts *RemoveOptions) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		return configError(formatter, err)
	}

	// Everything that can fail on configuration is checked before the
	// corpus is opened.
	if err := cfg.LoadSecret(); err != nil {
		return configError(formatter, err)
	}
	hasher, err := digest.NewHasher(cfg.Secret)
	if err != nil {
		return configError(formatter, err)
	}
	ids, err := config.LoadIdentifiers(cfg.RemovalList)
	if err != nil {
		return configError(formatter, err)
	}
	formatter.VerboseLog("Found %s identifiers to remove", humanize.Comma(int64(len(ids))))

	orchOpts := []removal.Option{removal.WithLogger(logger)}

	if cfg.Ledger != "" {
		l, err := ledger.Open(cfg.Ledger)
		if err != nil {
			formatter.Error(ErrCodeLedgerFailed, err.Error(), nil)
			return WrapExitError(ExitFailure, "failed to open ledger", err)
		}
		defer l.Close()
		orchOpts = append(orchOpts, removal.WithRecorder(l))
	}

	var collector *metrics.Collector
	if cfg.MetricsTextfile != "" {
		collector = metrics.New()
		orchOpts = append(orchOpts, removal.WithMetrics(collector))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rw := rewrite.New(hasher, rewrite.Options{DryRun: cfg.DryRun})
	report, runErr := removal.New(cfg, rw, orchOpts...).Run(ctx, ids)

	if collector != nil {
		if err := collector.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Error("failed to write metrics textfile", "path", cfg.MetricsTextfile, "error", err)
			if runErr == nil {
				formatter.Error(ErrCodeMetricsFailed, err.Error(), nil)
				return WrapExitError(ExitFailure, "failed to write metrics", err)
			}
		}
	}

	if runErr != nil {
		return runError(formatter, runErr)
	}
	return formatter.Success(&removeSummary{Report: report, root: cfg.Root})
}

// resolveConfig layers defaults, the optional YAML file and the flags the
// user actually set.
func (o *RemoveOptions) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		if err := cfg.LoadFile(o.ConfigPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Root = o.Root
	}
	if flags.Changed("pattern") {
		cfg.Pattern = o.Pattern
	}
	if flags.Changed("list") {
		cfg.RemovalList = o.List
	}
	if flags.Changed("env-file") {
		cfg.EnvFile = o.EnvFile
	}
	if flags.Changed("secret-env") {
		cfg.SecretEnv = o.SecretEnv
	}
	if flags.Changed("workers") {
		cfg.Workers = o.Workers
	}
	if flags.Changed("batch") {
		cfg.Mode = config.ModeSequential
		if o.Batch {
			cfg.Mode = config.ModeBatch
		}
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = o.DryRun
	}
	if flags.Changed("ledger") {
		cfg.Ledger = o.Ledger
	}
	if flags.Changed("metrics-textfile") {
		cfg.MetricsTextfile = o.MetricsTextfile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configError reports a failure detected before any file was touched.
func configError(f *OutputFormatter, err error) error {
	code := ErrCodeInvalidConfig
	switch {
	case errors.Is(err, config.ErrMissingSecret), errors.Is(err, digest.ErrEmptySecret):
		code = ErrCodeMissingSecret
	case errors.Is(err, config.ErrNoIdentifiers):
		code = ErrCodeNoIdentifiers
	case errors.Is(err, config.ErrIdentifierListNotFound):
		code = ErrCodeListNotFound
	}
	f.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, "configuration error", err)
}

// runError reports a failure during the run. Discovery problems are still
// configuration errors; everything else means the corpus or the disk failed.
func runError(f *OutputFormatter, err error) error {
	if errors.Is(err, config.ErrInvalidConfig) || errors.Is(err, config.ErrNoIdentifiers) {
		return configError(f, err)
	}

	var corrupt *rewrite.CorruptRecordError
	switch {
	case errors.As(err, &corrupt):
		f.Error(ErrCodeCorruptRecord, err.Error(), map[string]interface{}{
			"path": corrupt.Path,
			"line": corrupt.Line,
		})
	case errors.Is(err, context.Canceled):
		f.Error(ErrCodeGeneric, "interrupted", nil)
	default:
		f.Error(ErrCodeRewriteFailed, err.Error(), nil)
	}
	return WrapExitError(ExitFailure, "removal failed", err)
}

// removeSummary renders a Report for text output. Its JSON form is the
// embedded Report's.
type removeSummary struct {
	*removal.Report
	root string
}

func (s *removeSummary) String() string {
	var b strings.Builder
	verb := "removed"
	if s.DryRun {
		verb = "would remove"
	}

	fmt.Fprintf(&b, "Found %s identifiers to remove\n", humanize.Comma(int64(len(s.Identifiers))))
	for _, ir := range s.Identifiers {
		fmt.Fprintf(&b, "%s: %s %s thread(s)\n", ir.Identifier, verb, humanize.Comma(int64(ir.Removed)))
		for _, fr := range ir.Files {
			if fr.Removed == 0 {
				continue
			}
			fmt.Fprintf(&b, "  %s: %s\n", s.display(fr.Path), humanize.Comma(int64(fr.Removed)))
		}
	}

	rewritten := len(s.RewrittenFiles())
	fmt.Fprintf(&b, "\nRemoval complete: %s %s thread(s) across %s file(s)",
		verb, humanize.Comma(int64(s.TotalRemoved)), humanize.Comma(int64(s.Files)))
	if !s.DryRun {
		fmt.Fprintf(&b, ", %s rewritten", humanize.Comma(int64(rewritten)))
	}
	if s.RunID != "" {
		fmt.Fprintf(&b, "\nLedger run: %s", s.RunID)
	}
	return b.String()
}

func (s *removeSummary) display(path string) string {
	if rel, err := filepath.Rel(s.root, path); err == nil {
		return rel
	}
	return path
}
