package removal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/threadscrub/internal/config"
	"github.com/roach88/threadscrub/internal/staged"
)

// Discover returns the regular files below root matching pattern, sorted.
// Staging leftovers from an interrupted run are never returned.
func Discover(root, pattern string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: corpus root: %v", config.ErrInvalidConfig, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: corpus root %s is not a directory", config.ErrInvalidConfig, root)
	}

	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, fmt.Errorf("%w: file pattern %q: %v", config.ErrInvalidConfig, pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if staged.IsStagingFile(m) {
			continue
		}
		fi, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", m, err)
		}
		if fi.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}
