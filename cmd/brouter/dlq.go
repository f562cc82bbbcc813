package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Review change events ingestion refused",
	Long: `Review change events ingestion refused.

Malformed events (missing author, bad line counts) and events for files
whose ownership was halted are kept here instead of being dropped.`,
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent refused events",
	RunE:  runDLQList,
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize refused events",
	RunE:  runDLQStats,
}

var dlqResolveCmd = &cobra.Command{
	Use:   "resolve <event-key>",
	Short: "Remove a refused event once it has been dealt with",
	Args:  cobra.ExactArgs(1),
	RunE:  runDLQResolve,
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete refused events older than a given age",
	RunE:  runDLQPurge,
}

func init() {
	dlqCmd.PersistentFlags().String("repo", ".", "repository path or owner/name")
	dlqListCmd.Flags().Int("limit", 50, "maximum entries to show")
	dlqPurgeCmd.Flags().Duration("older-than", 30*24*time.Hour, "age of entries to delete")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqStatsCmd)
	dlqCmd.AddCommand(dlqResolveCmd)
	dlqCmd.AddCommand(dlqPurgeCmd)
}

func runDLQList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	repoArg, _ := cmd.Flags().GetString("repo")
	eng, err := openEngine(ctx, repoArg)
	if err != nil {
		return err
	}
	defer eng.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := eng.DLQ.RecentFailures(ctx, eng.RepoID, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No refused events for %s\n", eng.RepoID)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tCODE\tRETRIES\tUPDATED\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			e.EventKey, e.ErrorCode, e.RetryCount, e.UpdatedAt.Format(time.DateTime), e.ErrorMessage)
	}
	return tw.Flush()
}

func runDLQStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	repoArg, _ := cmd.Flags().GetString("repo")
	eng, err := openEngine(ctx, repoArg)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.DLQ.GetStats(ctx, eng.RepoID)
	if err != nil {
		return err
	}
	fmt.Printf("Refused events for %s\n", stats.RepoID)
	fmt.Printf("  Total:        %d\n", stats.TotalEntries)
	fmt.Printf("  Malformed:    %d\n", stats.Malformed)
	fmt.Printf("  Halted files: %d\n", stats.Halted)
	fmt.Printf("  Redeliveries: %d\n", stats.Redeliveries)
	return nil
}

func runDLQResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	repoArg, _ := cmd.Flags().GetString("repo")
	eng, err := openEngine(ctx, repoArg)
	if err != nil {
		return err
	}
	defer eng.Close()

	removed, err := eng.DLQ.MarkResolved(ctx, eng.RepoID, args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no refused event %s for %s", args[0], eng.RepoID)
	}
	fmt.Printf("Resolved %s\n", args[0])
	return nil
}

func runDLQPurge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	repoArg, _ := cmd.Flags().GetString("repo")
	eng, err := openEngine(ctx, repoArg)
	if err != nil {
		return err
	}
	defer eng.Close()

	olderThan, _ := cmd.Flags().GetDuration("older-than")
	n, err := eng.DLQ.PurgeOld(ctx, olderThan)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d entries older than %v\n", n, olderThan)
	return nil
}
