package storage

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "bugrouter.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func decision(id, bugID, assignee string, at time.Time) *models.AssignmentDecision {
	d := &models.AssignmentDecision{
		ID:            id,
		BugID:         bugID,
		AffectedFiles: []string{"src/auth/login.py"},
		Confidence:    0.9,
		CreatedAt:     at,
		Rationale:     []models.RationaleStep{{State: "ranked", Outcome: "ok"}},
	}
	if assignee == "" {
		d.Escalated = true
		d.EscalationTarget = "team-lead"
		d.EscalationReason = models.ReasonAllUnavailable
	} else {
		d.PrimaryAssignee = &assignee
	}
	return d
}

func testStoreDecisions(t *testing.T, s Store) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	latest, err := s.LatestDecision(ctx, "BUG-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, s.SaveDecision(ctx, decision("d1", "BUG-1", "alice", at)))
	// same timestamp; insertion order decides which is latest
	second := decision("d2", "BUG-1", "", at)
	second.PriorDecisionID = "d1"
	require.NoError(t, s.SaveDecision(ctx, second))
	require.NoError(t, s.SaveDecision(ctx, decision("d3", "BUG-2", "bob", at)))

	latest, err = s.LatestDecision(ctx, "BUG-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "d2", latest.ID)
	assert.True(t, latest.Escalated)
	assert.Nil(t, latest.PrimaryAssignee)
	assert.Equal(t, "d1", latest.PriorDecisionID)

	all, err := s.ListDecisions(ctx, "BUG-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "d1", all[0].ID)
	assert.Equal(t, "alice", all[0].Assignee())
	assert.True(t, at.Equal(all[0].CreatedAt))

	got, err := s.GetDecision(ctx, "d3")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Assignee())
	assert.Equal(t, []string{"src/auth/login.py"}, got.AffectedFiles)

	_, err = s.GetDecision(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// decisions are append-only
	assert.Error(t, s.SaveDecision(ctx, decision("d1", "BUG-1", "carol", at)))
	assert.Error(t, s.SaveDecision(ctx, &models.AssignmentDecision{BugID: "BUG-9"}))
}

func testStoreOwnership(t *testing.T, s Store) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	recs := []models.FileOwnershipRecord{
		{
			FilePath:    "b.go",
			Owners:      map[string]models.OwnerEntry{"alice": {Weight: 2.5, LastContribution: at}},
			LastUpdated: at,
			SeenCommits: []string{"c1"},
			EventCount:  1,
		},
		{
			FilePath:    "a.go",
			Owners:      map[string]models.OwnerEntry{"bob": {Weight: 1, LastContribution: at}},
			LastUpdated: at,
			SeenCommits: []string{"c2"},
			EventCount:  1,
		},
	}
	require.NoError(t, s.SaveOwnership(ctx, "acme/widgets", recs))
	require.NoError(t, s.SaveOwnership(ctx, "acme/widgets", nil))

	loaded, err := s.LoadOwnership(ctx, "acme/widgets")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "a.go", loaded[0].FilePath)
	assert.InDelta(t, 2.5, loaded[1].Owners["alice"].Weight, 1e-9)
	assert.Equal(t, []string{"c1"}, loaded[1].SeenCommits)

	// upsert replaces the stored record
	recs[0].Owners["carol"] = models.OwnerEntry{Weight: 4, LastContribution: at.Add(time.Hour)}
	recs[0].SeenCommits = append(recs[0].SeenCommits, "c3")
	recs[0].Halted = true
	require.NoError(t, s.SaveOwnership(ctx, "acme/widgets", recs[:1]))

	loaded, err = s.LoadOwnership(ctx, "acme/widgets")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Len(t, loaded[1].Owners, 2)
	assert.True(t, loaded[1].Halted)

	other, err := s.LoadOwnership(ctx, "acme/other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteStoreDecisions(t *testing.T) {
	testStoreDecisions(t, newTestStore(t))
}

func TestSQLiteStoreOwnership(t *testing.T) {
	testStoreOwnership(t, newTestStore(t))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bugrouter.db")
	s, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveDecision(context.Background(), decision("d1", "BUG-1", "alice", time.Now().UTC())))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LatestDecision(context.Background(), "BUG-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "d1", got.ID)
}

func TestClosedStoreReportsDatabaseErrors(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "bugrouter.db"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.LoadOwnership(context.Background(), "acme/widgets")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Type: errors.ErrorTypeDatabase}))
	assert.True(t, errors.IsFatal(err))
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open(config.StorageConfig{Type: "sqlite", LocalPath: filepath.Join(t.TempDir(), "x.db")}, nil)
	require.NoError(t, err)
	s.Close()

	_, err = Open(config.StorageConfig{Type: "cassandra"}, nil)
	assert.Error(t, err)

	_, err = Open(config.StorageConfig{Type: "postgres"}, nil)
	assert.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("BUGROUTER_TEST_POSTGRES_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("BUGROUTER_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStore(dsn, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DB().Exec("TRUNCATE assignment_decisions, file_ownership")
	require.NoError(t, err)

	testStoreDecisions(t, s)
	testStoreOwnership(t, s)
}
