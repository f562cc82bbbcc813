package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/logging"
	"github.com/rohankatakam/bugrouter/internal/models"
)

type recordingSource struct {
	since time.Time
}

func (r *recordingSource) ChangeEvents(_ context.Context, since time.Time) ([]models.ChangeEvent, error) {
	r.since = since
	return nil, nil
}

func TestFixedSinceOverridesCheckpoint(t *testing.T) {
	src := &recordingSource{}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := fixedSince{source: src, since: want}.ChangeEvents(context.Background(), time.Now())
	require.NoError(t, err)
	assert.True(t, want.Equal(src.since))
}

func TestResolveRepoOwnerName(t *testing.T) {
	id, path, err := resolveRepo(context.Background(), "acme/does-not-exist-locally")
	require.NoError(t, err)
	assert.Equal(t, "acme/does-not-exist-locally", id)
	assert.Empty(t, path)

	_, _, err = resolveRepo(context.Background(), "not a repo")
	assert.Error(t, err)
}

func TestResolveRepoRejectsNonGitDirectory(t *testing.T) {
	_, _, err := resolveRepo(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"ingest"}, {"assign"}, {"history"}, {"owners"}, {"stale"}, {"release"},
		{"availability", "set"}, {"availability", "status"},
		{"config", "validate"}, {"dlq", "list"}, {"dlq", "purge"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestLoggingConfig(t *testing.T) {
	lc, err := loggingConfig(config.LoggingConfig{Level: "warn"}, false)
	require.NoError(t, err)
	assert.Equal(t, logging.WARN, lc.Level)
	assert.Empty(t, lc.OutputFile)
	assert.False(t, lc.JSONFormat)

	lc, err = loggingConfig(config.LoggingConfig{Level: "error", File: "/tmp/brouter.log"}, true)
	require.NoError(t, err)
	assert.Equal(t, logging.DEBUG, lc.Level)
	assert.Equal(t, "/tmp/brouter.log", lc.OutputFile)
	assert.True(t, lc.JSONFormat)
	assert.Equal(t, 10, lc.MaxBackups)

	lc, err = loggingConfig(config.LoggingConfig{JSON: true}, false)
	require.NoError(t, err)
	assert.Equal(t, logging.INFO, lc.Level)
	assert.True(t, lc.JSONFormat)

	_, err = loggingConfig(config.LoggingConfig{Level: "chatty"}, false)
	assert.Error(t, err)
}

func TestGraphOwnersNeedsGraphConfig(t *testing.T) {
	saved := cfg
	t.Cleanup(func() { cfg = saved })
	cfg = config.Default()

	err := runGraphOwners(context.Background(), "acme/app", "src/auth/login.py", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NEO4J_URI")

	flag := ownersCmd.Flags().Lookup("from-graph")
	require.NotNil(t, flag)
}

func TestCheckGraphRequiresCredentials(t *testing.T) {
	err := checkGraph(context.Background(), config.GraphConfig{URI: "bolt://localhost:7687"})
	assert.Error(t, err)
}

func TestAssignPriorityFlag(t *testing.T) {
	flag := assignCmd.Flags().Lookup("priority")
	require.NotNil(t, flag)
	assert.Equal(t, "medium", flag.DefValue)
}
