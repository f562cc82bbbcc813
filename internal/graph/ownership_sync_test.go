package graph

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/ownership"
)

func TestBatches(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want [][2]int
	}{
		{name: "empty", n: 0, size: 10, want: nil},
		{name: "single partial", n: 3, size: 10, want: [][2]int{{0, 3}}},
		{name: "exact multiple", n: 4, size: 2, want: [][2]int{{0, 2}, {2, 4}}},
		{name: "remainder", n: 5, size: 2, want: [][2]int{{0, 2}, {2, 4}, {4, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, batches(tt.n, tt.size))
		})
	}

	assert.Len(t, batches(501, 0), 2)
}

func TestBatchConfigFor(t *testing.T) {
	assert.Equal(t, SmallRepoBatchConfig(), BatchConfigFor(120))
	assert.Equal(t, DefaultBatchConfig(), BatchConfigFor(500))
	assert.Len(t, batches(450, BatchConfigFor(450).FileBatchSize), 5)
}

func TestOwnershipRows(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("x", 3600))
	rows := ownershipRows([]FileOwners{
		{Path: "z.go", Owners: []ownership.Owner{{AuthorID: "bob", Weight: 0.5, LastContribution: at}}},
		{Path: "a.go", Owners: []ownership.Owner{
			{AuthorID: "alice", Weight: 2, LastContribution: at},
			{AuthorID: "gone", Weight: 0, LastContribution: at},
		}},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "a.go", rows[0]["path"])
	owners := rows[0]["owners"].([]map[string]any)
	require.Len(t, owners, 1)
	assert.Equal(t, "alice", owners[0]["id"])
	assert.Equal(t, "2025-03-01T08:30:00Z", owners[0]["last_contribution"])
	assert.Equal(t, "z.go", rows[1]["path"])
}

func TestGetConfigForOperation(t *testing.T) {
	assert.Equal(t, 5*time.Second, GetConfigForOperation("health_check").Timeout)
	fallback := GetConfigForOperation("something_else")
	assert.Equal(t, 60*time.Second, fallback.Timeout)
	assert.Equal(t, "unknown", fallback.Metadata["type"])
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), config.GraphConfig{URI: "bolt://localhost:7687"})
	assert.Error(t, err)
}

func TestSyncOwnershipIntegration(t *testing.T) {
	uri := os.Getenv("BUGROUTER_TEST_NEO4J_URI")
	if uri == "" || testing.Short() {
		t.Skip("BUGROUTER_TEST_NEO4J_URI not set")
	}
	ctx := context.Background()
	c, err := NewClient(ctx, config.GraphConfig{
		URI:      uri,
		User:     os.Getenv("BUGROUTER_TEST_NEO4J_USER"),
		Password: os.Getenv("BUGROUTER_TEST_NEO4J_PASSWORD"),
	})
	require.NoError(t, err)
	defer c.Close(ctx)
	require.NoError(t, c.EnsureSchema(ctx))

	repo := "test/" + time.Now().Format("150405.000000")
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err = c.SyncOwnership(ctx, repo, []FileOwners{{Path: "a.go", Owners: []ownership.Owner{
		{AuthorID: "alice", Weight: 2, LastContribution: at},
		{AuthorID: "bob", Weight: 1, LastContribution: at},
	}}}, at)
	require.NoError(t, err)

	// bob's weight decayed away; his edge goes
	stats, err := c.SyncOwnership(ctx, repo, []FileOwners{{Path: "a.go", Owners: []ownership.Owner{
		{AuthorID: "alice", Weight: 1.5, LastContribution: at},
	}}}, at)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Edges)

	owners, err := c.TopOwners(ctx, repo, "a.go", 5)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "alice", owners[0].AuthorID)
	assert.InDelta(t, 1.5, owners[0].Weight, 1e-9)
	assert.True(t, at.Equal(owners[0].LastContribution))
}

func TestTimeoutMonitorRecords(t *testing.T) {
	m := NewTimeoutMonitor(nil)

	require.NoError(t, m.Observe(context.Background(), "owner_query", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	}))
	err := m.Observe(context.Background(), "owner_query", func(context.Context) error {
		return fmt.Errorf("boom")
	})
	assert.EqualError(t, err, "boom")

	stats, ok := m.Stats("owner_query")
	require.True(t, ok)
	assert.Equal(t, 2, stats.TotalExecutions)
	assert.Equal(t, 0, stats.TimeoutCount)

	_, ok = m.Stats("ownership_sync")
	assert.False(t, ok)
}
