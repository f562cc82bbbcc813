package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "checkpoint.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get("acme/widgets")
	require.NoError(t, err)
	assert.False(t, ok)

	t1 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(Cursor{RepoID: "acme/widgets", LastTimestamp: t1, LastCommit: "c9", Events: 10}))

	cur, ok, err := s.Get("acme/widgets")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, t1.Equal(cur.LastTimestamp))
	assert.Equal(t, "c9", cur.LastCommit)

	require.NoError(t, s.Reset("acme/widgets"))
	_, ok, err = s.Get("acme/widgets")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpointNeverMovesBackwards(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	defer s.Close()

	late := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(Cursor{RepoID: "r", LastTimestamp: late, LastCommit: "new"}))
	require.NoError(t, s.Put(Cursor{RepoID: "r", LastTimestamp: late.AddDate(0, -1, 0), LastCommit: "old", Events: 3}))

	cur, _, err := s.Get("r")
	require.NoError(t, err)
	assert.True(t, late.Equal(cur.LastTimestamp))
	assert.Equal(t, "new", cur.LastCommit)
	assert.Equal(t, 3, cur.Events)
}

func TestCheckpointSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(Cursor{RepoID: "r", LastCommit: "abc"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	cur, ok, err := s.Get("r")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", cur.LastCommit)
}
