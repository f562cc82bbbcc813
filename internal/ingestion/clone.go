package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CloneRepository clones url under cacheDir, or fetches and fast-forwards
// an existing clone. The full history is kept since ownership is derived
// from it. Returns the path to the working tree.
func CloneRepository(ctx context.Context, url, cacheDir string) (string, error) {
	repoPath := filepath.Join(cacheDir, generateRepoHash(url))

	if _, err := os.Stat(repoPath); err == nil {
		if isValidGitRepo(repoPath) {
			if err := gitCmd(ctx, repoPath, "fetch", "--quiet", "origin"); err != nil {
				return "", err
			}
			if err := gitCmd(ctx, repoPath, "reset", "--hard", "--quiet", "origin/HEAD"); err != nil {
				return "", err
			}
			return repoPath, nil
		}
		// Invalid repo, remove and re-clone
		os.RemoveAll(repoPath)
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}

	if err := gitCmd(ctx, "", "clone", "--quiet", "--single-branch", url, repoPath); err != nil {
		return "", err
	}
	return repoPath, nil
}

func gitCmd(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s failed: %w, output: %s", args[0], err, strings.TrimSpace(string(output)))
	}
	return nil
}

// generateRepoHash creates a unique directory name from a repository URL
func generateRepoHash(url string) string {
	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, ".git")

	h := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%x", h)[:16]
}

// isValidGitRepo checks if directory is a valid git repository
func isValidGitRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsRemoteURL reports whether repo names a remote to clone rather than a
// local path
func IsRemoteURL(repo string) bool {
	return strings.HasPrefix(repo, "https://") ||
		strings.HasPrefix(repo, "http://") ||
		strings.HasPrefix(repo, "ssh://") ||
		strings.HasPrefix(repo, "git@")
}
