package rewrite

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/roach88/threadscrub/internal/digest"
	"github.com/roach88/threadscrub/internal/staged"
	"github.com/roach88/threadscrub/internal/thread"
)

const readBufferSize = 1 << 20

// CorruptRecordError reports a line that could not be tested. It is fatal
// for the file: skipping it could hide a thread that should be removed.
type CorruptRecordError struct {
	Path string
	Line int
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}

// Options tune a Rewriter.
type Options struct {
	// DryRun counts matches without staging or replacing anything.
	DryRun bool
}

// FileResult summarizes one pass over one file.
type FileResult struct {
	Path    string
	Scanned int
	// Removed holds the dropped record count per target, in target order.
	Removed   []int
	Rewritten bool
}

// TotalRemoved sums Removed.
func (r FileResult) TotalRemoved() int {
	n := 0
	for _, c := range r.Removed {
		n += c
	}
	return n
}

// Rewriter applies the membership test to corpus files.
type Rewriter struct {
	hasher *digest.Hasher
	opts   Options
}

// New creates a Rewriter.
func New(hasher *digest.Hasher, opts Options) *Rewriter {
	return &Rewriter{hasher: hasher, opts: opts}
}

// File drops every record of path whose thread belongs to one of targets.
// A record matching several targets is counted for the first one.
//
// The file handle and any staging file are released on every return path.
// On error the original file is untouched.
func (rw *Rewriter) File(ctx context.Context, path string, targets []string) (FileResult, error) {
	res := FileResult{Path: path, Removed: make([]int, len(targets))}

	src, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	var (
		stage  *staged.Rewrite
		offset int64
	)
	defer func() {
		if stage != nil {
			_ = stage.Discard() // no-op after Commit
		}
	}()

	br := bufio.NewReaderSize(src, readBufferSize)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		line, readErr := br.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return res, fmt.Errorf("read %s: %w", path, readErr)
		}
		if len(line) == 0 {
			break
		}
		res.Scanned++

		idx, err := rw.match(line, targets)
		if err != nil {
			return res, &CorruptRecordError{Path: path, Line: lineNo, Err: err}
		}

		switch {
		case idx >= 0:
			res.Removed[idx]++
			if stage == nil && !rw.opts.DryRun {
				if stage, err = beginWithPrefix(src, path, offset); err != nil {
					return res, err
				}
			}
		case stage != nil:
			if _, err := stage.Write(line); err != nil {
				return res, fmt.Errorf("write %s: %w", stage.Path(), err)
			}
		}
		offset += int64(len(line))

		if readErr == io.EOF {
			break
		}
	}

	if stage != nil {
		if err := stage.Commit(); err != nil {
			return res, err
		}
		res.Rewritten = true
	}
	return res, nil
}

func (rw *Rewriter) match(line []byte, targets []string) (int, error) {
	rec, err := thread.ParseRecord(line)
	if err != nil {
		return -1, err
	}
	return rw.hasher.Match(targets, rec.Thread)
}

// beginWithPrefix stages a rewrite of path seeded with its first n bytes,
// which are all records kept so far.
func beginWithPrefix(src io.ReaderAt, path string, n int64) (*staged.Rewrite, error) {
	stage, err := staged.Begin(path)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(stage, io.NewSectionReader(src, 0, n)); err != nil {
		_ = stage.Discard()
		return nil, fmt.Errorf("copy kept prefix of %s: %w", path, err)
	}
	return stage, nil
}
