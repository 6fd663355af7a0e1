package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(context.Background(), s, t.TempDir())
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed:\n%v", result.Errors)
		})
	}
}

func TestGoldenSnapshots(t *testing.T) {
	for _, name := range []string{"selective_removal", "multi_author"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed:\n%v", result.Errors)
		})
	}
}

func TestBatchAndSequentialAgree(t *testing.T) {
	batch, err := Run(context.Background(), loadScenario(t, "batch_first_match"), t.TempDir())
	require.NoError(t, err)
	seq, err := Run(context.Background(), loadScenario(t, "sequential_first_match"), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, seq.After, batch.After)
	assert.Equal(t, seq.Report.TotalRemoved, batch.Report.TotalRemoved)
}

func TestRunIsIdempotent(t *testing.T) {
	s := loadScenario(t, "selective_removal")
	first, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	require.True(t, first.Pass, first.Errors)

	// Replay the cleaned corpus: nothing is left to remove.
	again := &Scenario{
		Name:        s.Name + "_again",
		Description: s.Description,
		Identifiers: s.Identifiers,
		Expect:      Expectation{TotalRemoved: 0, Removed: []int{0}},
	}
	for _, f := range s.Files {
		spec := FileSpec{Path: f.Path}
		if content := first.After[f.Path]; content != "" {
			for _, line := range strings.Split(strings.TrimSuffix(content, "\n"), "\n") {
				spec.Records = append(spec.Records, RecordSpec{Raw: line})
			}
		}
		again.Files = append(again.Files, spec)
		again.Expect.Untouched = append(again.Expect.Untouched, f.Path)
	}

	result, err := Run(context.Background(), again, t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	for _, f := range s.Files {
		assert.Equal(t, first.After[f.Path], result.After[f.Path], f.Path)
	}
}

func TestRunReportsFailedExpectations(t *testing.T) {
	s := loadScenario(t, "selective_removal")
	s.Expect.TotalRemoved = 5
	s.Expect.Untouched = append(s.Expect.Untouched, "processed_0_clusters/cluster_1.jsonl")

	result, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "total_removed")
	assert.Contains(t, result.Errors[1], "untouched")
}

func TestRunExpectedErrorNotRaised(t *testing.T) {
	s := loadScenario(t, "dry_run")
	s.Expect.Error = "malformed record"

	result, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "run succeeded")
}
