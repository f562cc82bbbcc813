package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/bugrouter/internal/checkpoint"
	"github.com/rohankatakam/bugrouter/internal/cli"
	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/intake"
	"github.com/rohankatakam/bugrouter/internal/output"
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Route a bug report to an engineer",
	Long: `Assign a bug report to the available engineer with the most expertise
in the affected files, or escalate when nobody suitable is available.

Affected files come from --file. Without --file they are extracted from the
stack trace, title and description.

Examples:
  brouter assign --bug BUG-42 --file src/auth/login.py
  brouter assign --bug BUG-42 --stack-trace "$(cat trace.txt)"
  brouter assign --bug BUG-42 --title "crash in payments/refund.go" --format json`,
	RunE: runAssign,
}

func init() {
	assignCmd.Flags().String("bug", "", "bug identifier (required)")
	assignCmd.Flags().StringSlice("file", nil, "affected file, repeatable")
	assignCmd.Flags().String("title", "", "bug title")
	assignCmd.Flags().String("description", "", "bug description")
	assignCmd.Flags().String("stack-trace", "", "stack trace text")
	assignCmd.Flags().String("priority", "medium", "bug priority: critical, high, medium, low")
	assignCmd.Flags().String("format", "", "output format: text, quiet, json, yaml (default text, json under CI)")
	assignCmd.Flags().String("repo", ".", "repository path or owner/name")
	assignCmd.MarkFlagRequired("bug")
}

func runAssign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if result := cfg.Validate(config.ValidationContextAssign); result.HasErrors() {
		return result.Err()
	}
	priority, _ := cmd.Flags().GetString("priority")
	if !intake.ValidPriority(priority) {
		return fmt.Errorf("unknown priority %q (want critical, high, medium or low)", priority)
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = output.DefaultFormat()
	}
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return err
	}

	repoArg, _ := cmd.Flags().GetString("repo")
	eng, err := openLoadedEngine(ctx, repoArg)
	if err != nil {
		return err
	}
	defer eng.Close()

	warnIfStale(cmd, eng)

	report := intake.BugReport{}
	report.BugID, _ = cmd.Flags().GetString("bug")
	report.AffectedFiles, _ = cmd.Flags().GetStringSlice("file")
	report.Title, _ = cmd.Flags().GetString("title")
	report.Description, _ = cmd.Flags().GetString("description")
	report.StackTrace, _ = cmd.Flags().GetString("stack-trace")
	report.Priority = priority

	res, err := eng.Resolver(ctx)
	if err != nil {
		return err
	}
	decision, err := res.Resolve(ctx, report)
	if err != nil {
		return err
	}
	return formatter.Format(decision, os.Stdout)
}

// warnIfStale prints a notice when ownership lags the checkout's HEAD
func warnIfStale(cmd *cobra.Command, eng *cli.Engine) {
	cps, err := checkpoint.Open(cfg.Ingest.CheckpointPath)
	if err != nil {
		logger.WithError(err).Debug("Freshness check skipped")
		return
	}
	defer cps.Close()

	warning, err := cli.CheckFreshness(cmd.Context(), cps, eng.RepoID, eng.RepoPath)
	if err != nil {
		logger.WithError(err).Debug("Freshness check failed")
		return
	}
	if warning != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n\n", warning)
	}
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show every decision recorded for a bug",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().String("bug", "", "bug identifier (required)")
	historyCmd.Flags().String("format", "", "output format: text, quiet, json, yaml")
	historyCmd.Flags().String("repo", ".", "repository path or owner/name")
	historyCmd.MarkFlagRequired("bug")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = output.FormatQuiet
	}
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return err
	}

	repoArg, _ := cmd.Flags().GetString("repo")
	eng, err := openEngine(ctx, repoArg)
	if err != nil {
		return err
	}
	defer eng.Close()

	bugID, _ := cmd.Flags().GetString("bug")
	decisions, err := eng.Store.ListDecisions(ctx, bugID)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		fmt.Printf("No decisions recorded for %s\n", bugID)
		return nil
	}
	for _, d := range decisions {
		if err := formatter.Format(d, os.Stdout); err != nil {
			return err
		}
	}
	return nil
}
