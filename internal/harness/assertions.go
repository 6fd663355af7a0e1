package harness

import (
	"fmt"
	"sort"
	"strings"
)

// AssertionError describes one failed expectation.
type AssertionError struct {
	Type     string // Expectation name for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateExpectations checks a finished run against s.Expect and returns
// one message per failure. An empty slice means the scenario passed.
func EvaluateExpectations(s *Scenario, r *Result) []string {
	var errs []string
	fail := func(typ, expected, actual string) {
		errs = append(errs, (&AssertionError{Type: typ, Expected: expected, Actual: actual}).Error())
	}

	exp := s.Expect
	switch {
	case exp.Error == "" && r.RunErr != nil:
		fail("error", "run succeeds", r.RunErr.Error())
	case exp.Error != "" && r.RunErr == nil:
		fail("error", fmt.Sprintf("run fails with %q", exp.Error), "run succeeded")
	case exp.Error != "" && !strings.Contains(r.RunErr.Error(), exp.Error):
		fail("error", fmt.Sprintf("run fails with %q", exp.Error), r.RunErr.Error())
	}

	if r.Report != nil && exp.Error == "" {
		if r.Report.TotalRemoved != exp.TotalRemoved {
			fail("total_removed", fmt.Sprint(exp.TotalRemoved), fmt.Sprint(r.Report.TotalRemoved))
		}
		for i, want := range exp.Removed {
			if i >= len(r.Report.Identifiers) {
				fail("removed", fmt.Sprintf("%d thread(s) for identifier %d", want, i),
					"no such identifier in report")
				continue
			}
			ir := r.Report.Identifiers[i]
			if ir.Removed != want {
				fail("removed", fmt.Sprintf("%d thread(s) for %s", want, ir.Identifier),
					fmt.Sprintf("%d thread(s)", ir.Removed))
			}
		}
	}

	for _, path := range sortedKeys(exp.Survivors) {
		want := survivingContent(r.Lines[path], exp.Survivors[path])
		got, ok := r.After[path]
		switch {
		case !ok:
			fail("survivors", fmt.Sprintf("%s exists", path), "file missing")
		case got != want:
			fail("survivors", fmt.Sprintf("%s == %q", path, want), fmt.Sprintf("%q", got))
		}
	}

	for _, path := range exp.Untouched {
		if got, ok := r.After[path]; !ok || got != r.Before[path] {
			fail("untouched", fmt.Sprintf("%s unchanged", path), fmt.Sprintf("%q", got))
		}
	}

	if len(r.Staging) > 0 {
		fail("staging", "no staging files left", strings.Join(r.Staging, ", "))
	}

	return errs
}

// survivingContent is the byte-exact content of a file that keeps only the
// records at idx.
func survivingContent(lines []string, idx []int) string {
	var b strings.Builder
	for _, i := range idx {
		b.WriteString(lines[i])
	}
	return b.String()
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
