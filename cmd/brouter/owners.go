package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/bugrouter/internal/graph"
	"github.com/rohankatakam/bugrouter/internal/output"
)

var ownersCmd = &cobra.Command{
	Use:   "owners <path>",
	Short: "Show who owns a file or directory",
	Long: `List owners of a file ranked by decayed ownership weight.

With --module the path is a directory and weights are summed over every
file beneath it. With --rank the file's expertise candidates are shown
instead, with complexity applied. With --from-graph the owners are read
from the graph database written by ingest.`,
	Args: cobra.ExactArgs(1),
	RunE: runOwners,
}

func init() {
	ownersCmd.Flags().Bool("module", false, "aggregate ownership over a directory")
	ownersCmd.Flags().Bool("rank", false, "show expertise candidates for the file")
	ownersCmd.Flags().Bool("from-graph", false, "read owners from the graph database")
	ownersCmd.Flags().Int("limit", 10, "maximum owners to show (0 for all)")
	ownersCmd.Flags().String("repo", ".", "repository path or owner/name")
}

func runOwners(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	target := args[0]

	repoArg, _ := cmd.Flags().GetString("repo")
	if fromGraph, _ := cmd.Flags().GetBool("from-graph"); fromGraph {
		if module, _ := cmd.Flags().GetBool("module"); module {
			return fmt.Errorf("--from-graph reads single files; drop --module")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		return runGraphOwners(ctx, repoArg, target, limit)
	}

	eng, err := openLoadedEngine(ctx, repoArg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if rank, _ := cmd.Flags().GetBool("rank"); rank {
		return output.WriteCandidates(os.Stdout, eng.Ranker().Rank([]string{target}))
	}

	owners := eng.Builder.OwnersOf(target)
	if module, _ := cmd.Flags().GetBool("module"); module {
		owners = eng.Builder.ModuleOwners(target)
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(owners) > limit {
		owners = owners[:limit]
	}
	if err := output.WriteOwners(os.Stdout, target, owners); err != nil {
		return err
	}
	if eng.Builder.IsStale(target) {
		fmt.Printf("\nNote: %s has no recent changes; ownership may be outdated\n", target)
	}
	return nil
}

// runGraphOwners lists a file's owners as last synced to the graph
func runGraphOwners(ctx context.Context, repoArg, target string, limit int) error {
	if !cfg.Graph.Enabled() {
		return fmt.Errorf("graph export is not configured; set graph.uri or NEO4J_URI")
	}
	repoID, _, err := resolveRepo(ctx, repoArg)
	if err != nil {
		return err
	}
	client, err := graph.NewClient(ctx, cfg.Graph)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	owners, err := client.TopOwners(ctx, repoID, target, limit)
	if err != nil {
		return err
	}
	return output.WriteOwners(os.Stdout, target, owners)
}

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List files with no changes inside the stale window",
	RunE:  runStale,
}

func init() {
	staleCmd.Flags().String("repo", ".", "repository path or owner/name")
}

func runStale(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	repoArg, _ := cmd.Flags().GetString("repo")
	eng, err := openLoadedEngine(ctx, repoArg)
	if err != nil {
		return err
	}
	defer eng.Close()

	stale := eng.Builder.StaleFiles()
	if len(stale) == 0 {
		fmt.Println("No stale files")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLAST UPDATED\tTOP OWNER")
	for _, path := range stale {
		last := "-"
		if stats, ok := eng.Builder.Stats(path); ok {
			last = stats.LastUpdated.Format(time.DateOnly)
		}
		top := "-"
		if owners := eng.Builder.OwnersOf(path); len(owners) > 0 {
			top = owners[0].AuthorID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", path, last, top)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d of %d files are stale\n", len(stale), len(eng.Builder.Files()))
	return nil
}
