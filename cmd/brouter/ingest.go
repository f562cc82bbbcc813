package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/bugrouter/internal/cli"
	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/git"
	"github.com/rohankatakam/bugrouter/internal/github"
	"github.com/rohankatakam/bugrouter/internal/ingestion"
	"github.com/rohankatakam/bugrouter/internal/models"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build file ownership from commit history",
	Long: `Read a repository's commit history and update per-file ownership.

Ingestion is incremental: each run starts from the last ingested commit
time, so re-running after new commits only reads what changed.

Examples:
  # Ingest the repository in the current directory
  brouter ingest

  # Clone and ingest a remote repository
  brouter ingest --repo https://github.com/acme/app

  # Ingest through the GitHub API without cloning
  brouter ingest --github acme/app

  # Re-read history from a given date
  brouter ingest --since 2024-01-01`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("repo", ".", "local repository path or clone URL")
	ingestCmd.Flags().String("github", "", "ingest owner/name through the GitHub API")
	ingestCmd.Flags().String("since", "", "read history from this date (YYYY-MM-DD) instead of the last checkpoint")
	ingestCmd.MarkFlagsMutuallyExclusive("repo", "github")
}

// fixedSince reads from a fixed point regardless of the checkpoint.
// Events already applied are recognised as duplicates.
type fixedSince struct {
	source ingestion.Source
	since  time.Time
}

func (f fixedSince) ChangeEvents(ctx context.Context, _ time.Time) ([]models.ChangeEvent, error) {
	return f.source.ChangeEvents(ctx, f.since)
}

func runIngest(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	ctx := cmd.Context()

	if result := cfg.Validate(config.ValidationContextIngest); result.HasErrors() {
		return result.Err()
	}

	repoArg, _ := cmd.Flags().GetString("repo")
	githubRepo, _ := cmd.Flags().GetString("github")
	sinceArg, _ := cmd.Flags().GetString("since")

	repoID, repoPath, source, err := ingestSource(ctx, repoArg, githubRepo)
	if err != nil {
		return err
	}
	if sinceArg != "" {
		since, err := time.Parse(time.DateOnly, sinceArg)
		if err != nil {
			return fmt.Errorf("invalid --since %q (expected YYYY-MM-DD): %w", sinceArg, err)
		}
		source = fixedSince{source: source, since: since}
	}

	eng, err := cli.Open(cfg, repoID, repoPath, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	orch, cleanup, err := eng.Orchestrator(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.WithField("repo", repoID).Info("Ingesting commit history")
	res, err := orch.IngestRepository(ctx, repoID, source)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", repoID, err)
	}

	fmt.Printf("Ingested %s\n", repoID)
	fmt.Printf("  Events:     %d\n", res.Events)
	fmt.Printf("  Applied:    %d\n", res.Applied)
	fmt.Printf("  Duplicates: %d\n", res.Duplicates)
	fmt.Printf("  Rejected:   %d\n", res.Rejected)
	fmt.Printf("  Files:      %d touched, %d tracked\n", len(res.Touched), len(eng.Builder.Files()))
	if len(res.Halted) > 0 {
		fmt.Printf("  Halted:     %d files (see 'brouter dlq list')\n", len(res.Halted))
	}
	if res.Rejected > 0 {
		fmt.Printf("\nRejected events were recorded; run 'brouter dlq list' to review them\n")
	}
	fmt.Printf("\nCompleted in %v\n", time.Since(startTime).Round(time.Millisecond))
	return nil
}

// ingestSource picks the change feed for the flags given
func ingestSource(ctx context.Context, repoArg, githubRepo string) (string, string, ingestion.Source, error) {
	if githubRepo != "" {
		owner, name, err := cli.ParseGitHubRepo(githubRepo)
		if err != nil {
			return "", "", nil, err
		}
		if cfg.GitHub.Token == "" {
			logger.Warn("No GitHub token configured; unauthenticated requests are heavily rate limited")
		}
		client := github.NewClient(cfg.GitHub.Token, cfg.GitHub.RateLimit)
		return owner + "/" + name, "", github.NewSource(client, owner, name), nil
	}

	repoPath := repoArg
	if ingestion.IsRemoteURL(repoArg) {
		logger.WithField("url", repoArg).Info("Cloning repository")
		path, err := ingestion.CloneRepository(ctx, repoArg, cfg.Ingest.CloneDir)
		if err != nil {
			return "", "", nil, err
		}
		repoPath = path
	}

	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return "", "", nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", "", nil, fmt.Errorf("repository path: %w", err)
	}
	repoID, err := cli.DetectRepo(ctx, abs)
	if err != nil {
		return "", "", nil, fmt.Errorf("%s is not a git repository: %w", abs, err)
	}
	if ingestion.IsRemoteURL(repoArg) {
		if owner, name, err := git.ParseRepoURL(repoArg); err == nil {
			repoID = owner + "/" + name
		}
	}
	return repoID, abs, git.NewHistory(abs), nil
}
