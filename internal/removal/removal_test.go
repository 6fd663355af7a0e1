package removal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/threadscrub/internal/config"
	"github.com/roach88/threadscrub/internal/digest"
	"github.com/roach88/threadscrub/internal/ledger"
	"github.com/roach88/threadscrub/internal/metrics"
	"github.com/roach88/threadscrub/internal/rewrite"
	"github.com/roach88/threadscrub/internal/thread"
)

const testSecret = "s3cr3t"

type corpus struct {
	root   string
	hasher *digest.Hasher
}

func newCorpus(t *testing.T) *corpus {
	t.Helper()
	h, err := digest.NewHasher(testSecret)
	require.NoError(t, err)
	return &corpus{root: t.TempDir(), hasher: h}
}

// line builds a record authored by rawID.
func (c *corpus) line(rawID, text string) string {
	th := thread.Thread{{"user_id": "", "text": text}}
	return fmt.Sprintf(`{"thread": [{"user_id": %q, "text": %q}]}`+"\n", c.hasher.MustRecompute(rawID, th), text)
}

func (c *corpus) write(t *testing.T, rel string, lines ...string) string {
	t.Helper()
	path := filepath.Join(c.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func (c *corpus) config(workers int, mode config.Mode) *config.Config {
	cfg := config.Default()
	cfg.Root = c.root
	cfg.Workers = workers
	cfg.Mode = mode
	cfg.Secret = testSecret
	return cfg
}

func (c *corpus) orchestrator(cfg *config.Config, opts ...Option) *Orchestrator {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))}, opts...)
	return New(cfg, rewrite.New(c.hasher, rewrite.Options{DryRun: cfg.DryRun}), opts...)
}

func readAll(t *testing.T, paths ...string) map[string]string {
	t.Helper()
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		out[p] = string(data)
	}
	return out
}

// seed writes a corpus with 7 threads, 3 of them alice's and 2 bob's.
func seed(t *testing.T, c *corpus) (files []string, survivors map[string]string) {
	t.Helper()
	a0 := c.write(t, "processed_2024_clusters/cluster_0.jsonl",
		c.line("did:plc:alice", "a1"),
		c.line("did:plc:carol", "c1"),
		c.line("did:plc:bob", "b1"),
	)
	a1 := c.write(t, "processed_2024_clusters/cluster_1.jsonl",
		c.line("did:plc:carol", "c2"),
	)
	b0 := c.write(t, "processed_2025_clusters/cluster_0.jsonl",
		c.line("did:plc:alice", "a2"),
		c.line("did:plc:alice", "a3"),
		c.line("did:plc:bob", "b2"),
	)
	c.write(t, "processed_2025_clusters/notes.txt", "not a cluster file\n")
	c.write(t, "raw/cluster_9.jsonl", "outside the pattern\n")

	return []string{a0, a1, b0}, map[string]string{
		a0: c.line("did:plc:carol", "c1"),
		a1: c.line("did:plc:carol", "c2"),
		b0: "",
	}
}

func TestDiscover(t *testing.T) {
	c := newCorpus(t)
	files, _ := seed(t, c)
	c.write(t, "processed_2024_clusters/.cluster_0.jsonl.tmp-123", "leftover\n")
	require.NoError(t, os.MkdirAll(filepath.Join(c.root, "processed_2024_clusters", "cluster_dir.jsonl"), 0o755))

	got, err := Discover(c.root, config.DefaultPattern)
	require.NoError(t, err)
	assert.Equal(t, files, got)
}

func TestDiscoverErrors(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), config.DefaultPattern)
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))

	_, err = Discover(t.TempDir(), "cluster_[")
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestRunRemovesAcrossCorpus(t *testing.T) {
	c := newCorpus(t)
	files, survivors := seed(t, c)

	report, err := c.orchestrator(c.config(1, config.ModeSequential)).
		Run(context.Background(), []string{"did:plc:alice", "did:plc:bob"})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 5, report.TotalRemoved)
	require.Len(t, report.Identifiers, 2)
	assert.Equal(t, 3, report.Identifiers[0].Removed)
	assert.Equal(t, 2, report.Identifiers[1].Removed)
	assert.Len(t, report.Identifiers[0].Files, 3)
	assert.Equal(t, files, report.RewrittenFiles())

	assert.Equal(t, survivors, readAll(t, files...))
}

func TestRunIdempotent(t *testing.T) {
	c := newCorpus(t)
	files, _ := seed(t, c)
	ids := []string{"did:plc:alice", "did:plc:bob"}
	o := c.orchestrator(c.config(2, config.ModeSequential))

	first, err := o.Run(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 5, first.TotalRemoved)
	afterFirst := readAll(t, files...)

	second, err := o.Run(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalRemoved)
	assert.Empty(t, second.RewrittenFiles())
	assert.Equal(t, afterFirst, readAll(t, files...))
}

func TestRunBatchMatchesSequential(t *testing.T) {
	ids := []string{"did:plc:bob", "did:plc:alice", "did:plc:bob"}

	seqCorpus := newCorpus(t)
	seqFiles, _ := seed(t, seqCorpus)
	seqReport, err := seqCorpus.orchestrator(seqCorpus.config(1, config.ModeSequential)).Run(context.Background(), ids)
	require.NoError(t, err)

	batchCorpus := newCorpus(t)
	batchFiles, _ := seed(t, batchCorpus)
	batchReport, err := batchCorpus.orchestrator(batchCorpus.config(3, config.ModeBatch)).Run(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, seqReport.TotalRemoved, batchReport.TotalRemoved)
	for i := range ids {
		assert.Equal(t, seqReport.Identifiers[i].Removed, batchReport.Identifiers[i].Removed, "identifier %d", i)
	}
	assert.Equal(t, 0, batchReport.Identifiers[2].Removed, "duplicate identifier removes nothing")

	seqData := readAll(t, seqFiles...)
	batchData := readAll(t, batchFiles...)
	for i := range seqFiles {
		assert.Equal(t, seqData[seqFiles[i]], batchData[batchFiles[i]])
	}
}

func TestRunParallelWorkers(t *testing.T) {
	c := newCorpus(t)
	var files []string
	for i := 0; i < 20; i++ {
		files = append(files, c.write(t, fmt.Sprintf("processed_x_clusters/cluster_%02d.jsonl", i),
			c.line("did:plc:alice", fmt.Sprintf("mine %d", i)),
			c.line("did:plc:dave", fmt.Sprintf("theirs %d", i)),
		))
	}

	report, err := c.orchestrator(c.config(4, config.ModeSequential)).Run(context.Background(), []string{"did:plc:alice"})
	require.NoError(t, err)
	assert.Equal(t, 20, report.TotalRemoved)

	got := report.Identifiers[0].Files
	require.Len(t, got, 20)
	for i, fr := range got {
		assert.Equal(t, files[i], fr.Path, "files reported in path order")
		assert.Equal(t, 1, fr.Removed)
	}
}

func TestRunDryRun(t *testing.T) {
	c := newCorpus(t)
	files, _ := seed(t, c)
	before := readAll(t, files...)

	cfg := c.config(1, config.ModeSequential)
	cfg.DryRun = true
	report, err := c.orchestrator(cfg).Run(context.Background(), []string{"did:plc:alice"})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 3, report.TotalRemoved)
	assert.Empty(t, report.RewrittenFiles())
	assert.Equal(t, before, readAll(t, files...))
}

func TestRunEmptyIdentifierList(t *testing.T) {
	c := newCorpus(t)
	files, _ := seed(t, c)
	before := readAll(t, files...)

	_, err := c.orchestrator(c.config(1, config.ModeSequential)).Run(context.Background(), nil)
	assert.ErrorIs(t, err, config.ErrNoIdentifiers)
	assert.Equal(t, before, readAll(t, files...))
}

func TestRunCorruptFileStopsRun(t *testing.T) {
	c := newCorpus(t)
	good := c.write(t, "processed_a_clusters/cluster_0.jsonl", c.line("did:plc:alice", "x"))
	bad := c.write(t, "processed_a_clusters/cluster_1.jsonl",
		c.line("did:plc:alice", "y"),
		`{"thread": [{"text": "no user_id"}]}`+"\n",
	)
	badBefore := readAll(t, bad)

	_, err := c.orchestrator(c.config(1, config.ModeSequential)).Run(context.Background(), []string{"did:plc:alice"})
	require.Error(t, err)

	var corrupt *rewrite.CorruptRecordError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, bad, corrupt.Path)
	assert.ErrorIs(t, err, thread.ErrMissingUserID)

	assert.Equal(t, badBefore, readAll(t, bad), "corrupt file untouched")
	assert.Equal(t, "", readAll(t, good)[good], "files processed before the error stay rewritten")
}

func TestRunRecordsLedgerAndMetrics(t *testing.T) {
	c := newCorpus(t)
	seed(t, c)

	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer l.Close()
	m := metrics.New()

	report, err := c.orchestrator(c.config(2, config.ModeSequential), WithRecorder(l), WithMetrics(m)).
		Run(context.Background(), []string{"did:plc:alice", "did:plc:bob"})
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)

	row, err := l.Run(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, row.Status)
	assert.Equal(t, 5, row.TotalRemoved)
	assert.Equal(t, 2, row.Identifiers)
	assert.Equal(t, 3, row.Files)

	entries, err := l.Files(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Len(t, entries, 6, "one entry per identifier and file")

	assert.Equal(t, 5.0, testutil.ToFloat64(m.ThreadsRemoved))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.FilesScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LastRunSuccess))
}

type failingRewriter struct{ err error }

func (f failingRewriter) File(context.Context, string, []string) (rewrite.FileResult, error) {
	return rewrite.FileResult{}, f.err
}

func TestRunFailureRecordedInLedger(t *testing.T) {
	c := newCorpus(t)
	seed(t, c)

	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer l.Close()

	boom := errors.New("disk on fire")
	o := New(c.config(1, config.ModeSequential), failingRewriter{err: boom},
		WithRecorder(l), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))

	report, err := o.Run(context.Background(), []string{"did:plc:alice"})
	require.ErrorIs(t, err, boom)

	row, err := l.Run(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, row.Status)
	assert.Contains(t, row.Error, "disk on fire")
}
