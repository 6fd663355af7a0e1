package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/threadscrub/internal/config"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Full(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "batch_first_match.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "batch_first_match", s.Name)
	assert.Equal(t, config.ModeBatch, s.Mode)
	assert.Equal(t, 2, s.Workers)
	assert.Equal(t, []string{"did:plc:alice", "did:plc:bob"}, s.Identifiers)
	require.Len(t, s.Files, 2)
	require.Len(t, s.Files[0].Records, 3)
	assert.Equal(t, "did:plc:bob", s.Files[0].Records[0].Messages[1].Author)
	assert.Equal(t, "en", s.Files[1].Records[0].Messages[0].Fields["lang"])
	assert.Equal(t, []int{2, 1}, s.Expect.Removed)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: y\nidentifier: [a]\nfiles: [{path: a.jsonl}]\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			content: "description: y\nfiles: [{path: a.jsonl}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\nfiles: [{path: a.jsonl}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no files",
			content: "name: x\ndescription: y\n",
			wantErr: "files list is required",
		},
		{
			name:    "bad mode",
			content: "name: x\ndescription: y\nmode: parallel\nfiles: [{path: a.jsonl}]\n",
			wantErr: "unknown mode",
		},
		{
			name:    "absolute path",
			content: "name: x\ndescription: y\nfiles: [{path: /etc/passwd}]\n",
			wantErr: "must be relative",
		},
		{
			name:    "escaping path",
			content: "name: x\ndescription: y\nfiles: [{path: ../a.jsonl}]\n",
			wantErr: "must be relative",
		},
		{
			name:    "bad terminator",
			content: "name: x\ndescription: y\nfiles: [{path: a.jsonl, terminator: cr}]\n",
			wantErr: "terminator must be lf or crlf",
		},
		{
			name:    "raw and messages",
			content: "name: x\ndescription: y\nfiles: [{path: a.jsonl, records: [{raw: '{}', messages: []}]}]\n",
			wantErr: "exactly one of messages or raw",
		},
		{
			name:    "duplicate file",
			content: "name: x\ndescription: y\nfiles: [{path: a.jsonl}, {path: a.jsonl}]\n",
			wantErr: "duplicate path",
		},
		{
			name:    "removed count mismatch",
			content: "name: x\ndescription: y\nidentifiers: [a, b]\nfiles: [{path: a.jsonl}]\nexpect: {removed: [1]}\n",
			wantErr: "expect.removed has 1 entries for 2 identifiers",
		},
		{
			name:    "survivor out of range",
			content: "name: x\ndescription: y\nfiles: [{path: a.jsonl, records: [{raw: '{}'}]}]\nexpect: {survivors: {a.jsonl: [1]}}\n",
			wantErr: "out of range",
		},
		{
			name:    "unknown untouched file",
			content: "name: x\ndescription: y\nfiles: [{path: a.jsonl}]\nexpect: {untouched: [b.jsonl]}\n",
			wantErr: "unknown file b.jsonl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
