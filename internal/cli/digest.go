package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/threadscrub/internal/config"
	"github.com/roach88/threadscrub/internal/digest"
	"github.com/roach88/threadscrub/internal/thread"
)

// DigestOptions holds options for the digest command.
type DigestOptions struct {
	*RootOptions
	ID        string
	EnvFile   string
	SecretEnv string
}

// DigestEntry is the recomputed digest of one record.
type DigestEntry struct {
	Line     int    `json:"line"`
	Messages int    `json:"messages"`
	Digest   string `json:"digest"`
	Match    bool   `json:"match"`
}

// DigestResult is the output of the digest command.
type DigestResult struct {
	Records []DigestEntry `json:"records"`
	Matches int           `json:"matches"`
}

func (r *DigestResult) String() string {
	var b strings.Builder
	for _, e := range r.Records {
		mark := "no match"
		if e.Match {
			mark = "match"
		}
		fmt.Fprintf(&b, "%d\t%s\t%s\n", e.Line, e.Digest, mark)
	}
	fmt.Fprintf(&b, "%d of %d record(s) match", r.Matches, len(r.Records))
	return b.String()
}

// NewDigestCommand creates the digest command.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DigestOptions{RootOptions: rootOpts}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "digest [file.jsonl]",
		Short: "Print the digest each record's thread would carry for an identifier",
		Long: `Print the digest each record's thread would carry for an identifier.

Reads JSONL records from the given file, or stdin when no file is given, and
prints the recomputed digest next to whether any stored user_id equals it.
Use it to check the configured secret against a known record before running
a removal. Nothing is modified.`,
		Example: `  threadscrub digest --id did:plc:abc123 cleaned/processed_0_clusters/cluster_0.jsonl
  head -n 1 cluster_0.jsonl | threadscrub digest --id did:plc:abc123 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "raw identifier to hash (required)")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", defaults.EnvFile, "dotenv file loaded before reading the secret")
	cmd.Flags().StringVar(&opts.SecretEnv, "secret-env", defaults.SecretEnv, "environment variable holding the hash secret")
	cmd.MarkFlagRequired("id")

	return cmd
}

func runDigest(cmd *cobra.Command, opts *DigestOptions, args []string) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg := config.Default()
	if opts.ConfigPath != "" {
		if err := cfg.LoadFile(opts.ConfigPath); err != nil {
			return configError(formatter, err)
		}
	}
	if cmd.Flags().Changed("env-file") {
		cfg.EnvFile = opts.EnvFile
	}
	if cmd.Flags().Changed("secret-env") {
		cfg.SecretEnv = opts.SecretEnv
	}
	if strings.TrimSpace(opts.ID) == "" {
		return configError(formatter, fmt.Errorf("%w: --id is empty", config.ErrInvalidConfig))
	}
	if err := cfg.LoadSecret(); err != nil {
		return configError(formatter, err)
	}
	hasher, err := digest.NewHasher(cfg.Secret)
	if err != nil {
		return configError(formatter, err)
	}

	in := cmd.InOrStdin()
	name := "<stdin>"
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			formatter.Error(ErrCodeReadFailed, err.Error(), nil)
			return WrapExitError(ExitFailure, "failed to open input", err)
		}
		defer f.Close()
		in, name = f, args[0]
	}

	result, err := digestRecords(hasher, strings.TrimSpace(opts.ID), in)
	if err != nil {
		var lineErr *digestLineError
		if errors.As(err, &lineErr) {
			formatter.Error(ErrCodeCorruptRecord, fmt.Sprintf("%s:%d: %v", name, lineErr.Line, lineErr.Err), nil)
		} else {
			formatter.Error(ErrCodeReadFailed, err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "digest failed", err)
	}
	return formatter.Success(result)
}

type digestLineError struct {
	Line int
	Err  error
}

func (e *digestLineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *digestLineError) Unwrap() error {
	return e.Err
}

// digestRecords hashes every non-blank line of r for rawID.
func digestRecords(h *digest.Hasher, rawID string, r io.Reader) (*DigestResult, error) {
	result := &DigestResult{Records: []DigestEntry{}}
	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, readErr := br.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, readErr
		}

		if body := bytes.TrimRight(line, "\r\n"); len(bytes.TrimSpace(body)) > 0 {
			rec, err := thread.ParseRecord(body)
			if err != nil {
				return nil, &digestLineError{Line: lineNo, Err: err}
			}
			sum, err := h.Recompute(rawID, rec.Thread)
			if err != nil {
				return nil, &digestLineError{Line: lineNo, Err: err}
			}
			match, err := h.Belongs(rawID, rec.Thread)
			if err != nil {
				return nil, &digestLineError{Line: lineNo, Err: err}
			}
			if match {
				result.Matches++
			}
			result.Records = append(result.Records, DigestEntry{
				Line:     lineNo,
				Messages: len(rec.Thread),
				Digest:   sum,
				Match:    match,
			})
		}

		if readErr == io.EOF {
			return result, nil
		}
	}
}
