package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rohankatakam/bugrouter/internal/ownership"
)

// FileOwners is the decayed owner list of one file at sync time
type FileOwners struct {
	Path   string
	Owners []ownership.Owner
}

// SyncStats reports what a sync wrote
type SyncStats struct {
	Files   int
	Edges   int
	Batches int
}

// ownershipQuery replaces the OWNS edges of each file in the batch
const ownershipQuery = `
	UNWIND $rows AS row
	MERGE (f:File {repo_id: $repo_id, path: row.path})
	SET f.synced_at = $synced_at
	WITH f, row
	OPTIONAL MATCH (old:Developer)-[stale:OWNS]->(f)
	WHERE NOT old.id IN [o IN row.owners | o.id]
	DELETE stale
	WITH DISTINCT f, row
	UNWIND row.owners AS owner
	MERGE (d:Developer {id: owner.id})
	MERGE (d)-[o:OWNS]->(f)
	SET o.weight = owner.weight, o.last_contribution = owner.last_contribution
	RETURN count(o) AS edges
`

// SyncOwnership mirrors file ownership into the graph as
// (:Developer)-[:OWNS {weight}]->(:File) edges
func (c *Client) SyncOwnership(ctx context.Context, repoID string, files []FileOwners, syncedAt time.Time) (SyncStats, error) {
	rows := ownershipRows(files)
	stats := SyncStats{Files: len(rows)}

	for _, window := range batches(len(rows), BatchConfigFor(len(rows)).FileBatchSize) {
		result, err := c.write(ctx, "ownership_sync", ownershipQuery, map[string]any{
			"repo_id":   repoID,
			"synced_at": syncedAt.UTC().Format(time.RFC3339),
			"rows":      rows[window[0]:window[1]],
		})
		if err != nil {
			return stats, fmt.Errorf("ownership sync failed (batch %d-%d): %w", window[0], window[1], err)
		}
		stats.Batches++
		if len(result.Records) > 0 {
			if edges, ok := result.Records[0].Get("edges"); ok {
				if n, ok := edges.(int64); ok {
					stats.Edges += int(n)
				}
			}
		}
	}

	c.logger.Info("ownership synced to graph",
		"repo_id", repoID,
		"files", stats.Files,
		"edges", stats.Edges,
		"batches", stats.Batches)
	return stats, nil
}

// TopOwners reads back the strongest OWNS edges of a file
func (c *Client) TopOwners(ctx context.Context, repoID, path string, limit int) ([]ownership.Owner, error) {
	if limit <= 0 {
		limit = 5
	}
	result, err := c.read(ctx, "owner_query", `
		MATCH (d:Developer)-[o:OWNS]->(f:File {repo_id: $repo_id, path: $path})
		RETURN d.id AS author, o.weight AS weight, o.last_contribution AS last
		ORDER BY weight DESC, author ASC
		LIMIT $limit
	`, map[string]any{"repo_id": repoID, "path": path, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("owner query failed for %s: %w", path, err)
	}

	owners := make([]ownership.Owner, 0, len(result.Records))
	for _, record := range result.Records {
		m := record.AsMap()
		author, _ := m["author"].(string)
		weight, _ := m["weight"].(float64)
		var last time.Time
		if s, ok := m["last"].(string); ok {
			last, _ = time.Parse(time.RFC3339, s)
		}
		owners = append(owners, ownership.Owner{AuthorID: author, Weight: weight, LastContribution: last})
	}
	return owners, nil
}

// ownershipRows converts owner lists to UNWIND parameters, sorted by path.
// Owners with no remaining weight are left out so their edges get removed.
func ownershipRows(files []FileOwners) []map[string]any {
	sorted := make([]FileOwners, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	rows := make([]map[string]any, 0, len(sorted))
	for _, f := range sorted {
		owners := make([]map[string]any, 0, len(f.Owners))
		for _, o := range f.Owners {
			if o.Weight <= 0 {
				continue
			}
			owners = append(owners, map[string]any{
				"id":                o.AuthorID,
				"weight":            o.Weight,
				"last_contribution": o.LastContribution.UTC().Format(time.RFC3339),
			})
		}
		rows = append(rows, map[string]any{"path": f.Path, "owners": owners})
	}
	return rows
}
