package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLog(t *testing.T) {
	output := "\x1eabc123|John@Example.com|2025-09-15T10:00:00Z|John Doe\n" +
		"10\t5\tsrc/auth.ts\n" +
		"3\t1\tsrc/database.ts\n" +
		"-\t-\tassets/logo.png\n" +
		"\n" +
		"\x1edef456|jane@example.com|2025-09-16T16:30:00+02:00|Jane | Smith\n" +
		"25\t0\tsrc/cache.ts\n" +
		"0\t7\tdocs/old name.md\n"

	events, err := parseLog(output)
	require.NoError(t, err)
	require.Len(t, events, 4)

	first := events[0]
	assert.Equal(t, "abc123", first.CommitID)
	assert.Equal(t, "john@example.com", first.AuthorID)
	assert.Equal(t, "src/auth.ts", first.FilePath)
	assert.Equal(t, 10, first.LinesAdded)
	assert.Equal(t, 5, first.LinesRemoved)
	assert.Equal(t, time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC), first.Timestamp)

	last := events[3]
	assert.Equal(t, "def456", last.CommitID)
	assert.Equal(t, "docs/old name.md", last.FilePath)
	assert.Equal(t, 7, last.LinesRemoved)
	assert.Equal(t, time.Date(2025, 9, 16, 14, 30, 0, 0, time.UTC), last.Timestamp)
}

func TestParseLogRejectsBadHeader(t *testing.T) {
	_, err := parseLog("\x1eabc|a@b.c|not-a-date|A\n1\t1\tx.go\n")
	assert.Error(t, err)
}

func TestParseLogEmpty(t *testing.T) {
	events, err := parseLog("")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_DATE=2025-01-02T03:04:05Z",
		"GIT_COMMITTER_DATE=2025-01-02T03:04:05Z",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestHistoryChangeEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping git integration test in short mode")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	run(t, dir, "init", "-q")
	run(t, dir, "config", "user.email", "Dev@Example.com")
	run(t, dir, "config", "user.name", "Dev")
	run(t, dir, "config", "commit.gpgsign", "false")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0644))
	run(t, dir, "add", "main.go")
	run(t, dir, "commit", "-q", "-m", "init | with pipe")

	events, err := NewHistory(dir).ChangeEvents(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "main.go", events[0].FilePath)
	assert.Equal(t, "dev@example.com", events[0].AuthorID)
	assert.Equal(t, 3, events[0].LinesAdded)

	assert.NoError(t, DetectRepo(context.Background(), dir))
	assert.Equal(t, dir, RepoID(context.Background(), dir))

	size, ok := NewWorkTree(dir).SizeOf("main.go")
	assert.True(t, ok)
	assert.Equal(t, 3, size)
}
