package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LoadIdentifiers reads the removal list at path: one raw identifier per
// line, surrounding whitespace trimmed, blank lines ignored. A leading
// UTF-8 byte order mark is dropped. Duplicates are kept; the second pass
// for an identifier removes nothing.
func LoadIdentifiers(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrIdentifierListNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open identifier list: %w", err)
	}
	defer f.Close()

	r := transform.NewReader(f, unicode.UTF8BOM.NewDecoder())
	sc := bufio.NewScanner(r)
	var ids []string
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read identifier list %s: %w", path, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoIdentifiers, path)
	}
	return ids, nil
}
