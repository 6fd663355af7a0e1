// Package staged implements scoped staged rewrites: a replacement for a file
// is written to a sibling staging file and then either committed with an
// atomic rename or discarded.
package staged

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrFinished is returned when writing to or committing a Rewrite that was
// already committed or discarded.
var ErrFinished = errors.New("staged rewrite already finished")

const tmpMarker = ".tmp-"

// Rewrite is an in-progress replacement of a target file.
//
// Typical use:
//
//	rw, err := staged.Begin(path)
//	if err != nil { ... }
//	defer rw.Discard()
//	... write ...
//	return rw.Commit()
type Rewrite struct {
	target   string
	file     *os.File
	w        *bufio.Writer
	finished bool
}

// Begin creates a staging file next to target. The staging file gets the
// target's permission bits so the committed file keeps them.
func Begin(target string) (*Rewrite, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", target, err)
	}
	dir := filepath.Dir(target)
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+tmpMarker+"*")
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", target, err)
	}
	if err := f.Chmod(info.Mode().Perm()); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("stage %s: %w", target, err)
	}
	return &Rewrite{
		target: target,
		file:   f,
		w:      bufio.NewWriterSize(f, 1<<20),
	}, nil
}

// Path returns the staging file path.
func (r *Rewrite) Path() string {
	return r.file.Name()
}

// Write appends to the staging file.
func (r *Rewrite) Write(p []byte) (int, error) {
	if r.finished {
		return 0, ErrFinished
	}
	return r.w.Write(p)
}

// Commit flushes and syncs the staging file and renames it over the target.
// On failure the staging file is removed and the target is left as it was.
func (r *Rewrite) Commit() error {
	if r.finished {
		return ErrFinished
	}
	r.finished = true
	tmp := r.file.Name()

	err := r.w.Flush()
	if err == nil {
		err = r.file.Sync()
	}
	if closeErr := r.file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, r.target)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", r.target, err)
	}

	syncDir(filepath.Dir(r.target))
	return nil
}

// Discard closes and removes the staging file. It is a no-op once the
// rewrite is finished, so it can always be deferred.
func (r *Rewrite) Discard() error {
	if r.finished {
		return nil
	}
	r.finished = true
	closeErr := r.file.Close()
	if err := os.Remove(r.file.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard %s: %w", r.file.Name(), err)
	}
	return closeErr
}

// IsStagingFile reports whether name looks like a staging file created by
// Begin. Corpus discovery uses it to skip leftovers of a killed process.
func IsStagingFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") && strings.Contains(base, tmpMarker)
}

// syncDir makes the rename durable. Best effort: not every platform lets a
// directory be opened for sync.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
