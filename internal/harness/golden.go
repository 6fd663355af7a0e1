package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/threadscrub/internal/canonical"
)

// Snapshot captures the observable outcome of a scenario: counts and the
// final bytes of every corpus file.
type Snapshot struct {
	ScenarioName string
	TotalRemoved int
	Removed      []int
	Files        map[string]string
}

// NewSnapshot builds the snapshot of a finished run.
func NewSnapshot(s *Scenario, r *Result) Snapshot {
	snap := Snapshot{
		ScenarioName: s.Name,
		Removed:      []int{},
		Files:        r.After,
	}
	if r.Report != nil {
		snap.TotalRemoved = r.Report.TotalRemoved
		for _, ir := range r.Report.Identifiers {
			snap.Removed = append(snap.Removed, ir.Removed)
		}
	}
	return snap
}

// toCanonicalMap converts a Snapshot for canonical.Marshal, which only
// handles plain JSON values.
func (s Snapshot) toCanonicalMap() map[string]any {
	removed := make([]any, len(s.Removed))
	for i, n := range s.Removed {
		removed[i] = n
	}
	files := make(map[string]any, len(s.Files))
	for path, content := range s.Files {
		files[path] = content
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"total_removed": s.TotalRemoved,
		"removed":       removed,
		"files":         files,
	}
}

// Marshal returns the canonical JSON form of the snapshot.
func (s Snapshot) Marshal() ([]byte, error) {
	return canonical.Marshal(s.toCanonicalMap())
}

// RunWithGolden executes a scenario in a temporary corpus and compares its
// snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, t.TempDir())
	if err != nil {
		return nil, err
	}

	data, err := NewSnapshot(scenario, result).Marshal()
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}
