package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/rohankatakam/bugrouter/internal/checkpoint"
	"github.com/rohankatakam/bugrouter/internal/git"
)

// DetectRepo resolves the repository id for a local checkout
func DetectRepo(ctx context.Context, repoPath string) (string, error) {
	if err := git.DetectRepo(ctx, repoPath); err != nil {
		return "", err
	}
	return git.RepoID(ctx, repoPath), nil
}

// ParseGitHubRepo splits an owner/name argument
func ParseGitHubRepo(arg string) (owner, name string, err error) {
	parts := strings.Split(strings.Trim(arg, "/"), "/")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], parts[1], nil
	}
	if owner, name, err := git.ParseRepoURL(arg); err == nil {
		return owner, name, nil
	}
	return "", "", fmt.Errorf("invalid repository format: %s (expected owner/name)", arg)
}

// CheckFreshness compares the ingest checkpoint with the checkout's HEAD
// and returns a warning when ownership lags behind
func CheckFreshness(ctx context.Context, cps *checkpoint.Store, repoID, repoPath string) (string, error) {
	cur, ok, err := cps.Get(repoID)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("No ingest checkpoint for %s. Run 'brouter ingest' first", repoID), nil
	}
	if repoPath == "" || cur.LastCommit == "" {
		return "", nil
	}

	head, err := git.HeadCommit(ctx, repoPath)
	if err != nil {
		return "", err
	}
	if head == cur.LastCommit {
		return "", nil
	}
	behind, err := git.CommitsBetween(ctx, repoPath, cur.LastCommit, head)
	if err != nil {
		return "Ownership data may be outdated. Run 'brouter ingest' to update", nil
	}
	if behind == 0 {
		return "", nil
	}
	return fmt.Sprintf("Ownership data is %d commits behind. Run 'brouter ingest' to update", behind), nil
}

// FormatNotIngestedError explains how to populate ownership for a repository
func FormatNotIngestedError(repoID string) error {
	return fmt.Errorf(`no ownership data for %s.

To build it:
  1. Make sure you're in the repository directory
  2. Run: brouter ingest

This reads the commit history and stores per-file ownership.`, repoID)
}
