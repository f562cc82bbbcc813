package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	httpsRemote = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/]+)`)
	sshRemote   = regexp.MustCompile(`git@[^:]+:([^/]+)/([^/]+)`)
	gitRemote   = regexp.MustCompile(`git://[^/]+/([^/]+)/([^/]+)`)
)

// DetectRepo checks that repoPath is inside a git working tree
func DetectRepo(ctx context.Context, repoPath string) error {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = repoPath
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("not a git repository: %s: %w", repoPath, err)
	}
	return nil
}

// ParseRepoURL extracts owner and repo name from a git remote URL.
// Supports HTTPS, SSH (git@host:owner/repo) and git:// URLs.
func ParseRepoURL(remoteURL string) (owner, repo string, err error) {
	remoteURL = strings.TrimSuffix(remoteURL, ".git")

	for _, re := range []*regexp.Regexp{httpsRemote, sshRemote, gitRemote} {
		if m := re.FindStringSubmatch(remoteURL); len(m) == 3 {
			return m[1], m[2], nil
		}
	}

	return "", "", fmt.Errorf("unrecognized git URL format: %s", remoteURL)
}

// RemoteURL returns the URL of the origin remote
func RemoteURL(ctx context.Context, repoPath string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "config", "--get", "remote.origin.url")
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("no origin remote in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// RepoID names a repository for checkpoints and storage: owner/name when
// the origin remote is recognizable, otherwise the absolute path.
func RepoID(ctx context.Context, repoPath string) string {
	if url, err := RemoteURL(ctx, repoPath); err == nil {
		if owner, name, err := ParseRepoURL(url); err == nil {
			return owner + "/" + name
		}
	}
	if abs, err := filepath.Abs(repoPath); err == nil {
		return abs
	}
	return repoPath
}

// WorkTree measures files in a checkout
type WorkTree struct {
	root string
}

// NewWorkTree creates a WorkTree rooted at root
func NewWorkTree(root string) *WorkTree {
	return &WorkTree{root: root}
}

// SizeOf returns the number of lines in a file, false when it no longer exists
func (w *WorkTree) SizeOf(path string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(path)))
	if err != nil {
		return 0, false
	}
	n := bytes.Count(data, []byte("\n"))
	if len(data) > 0 && data[len(data)-1] != '\n' {
		n++
	}
	return n, true
}

// HeadCommit returns the commit HEAD points at
func HeadCommit(ctx context.Context, repoPath string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get current HEAD: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// CommitsBetween counts the commits reachable from to but not from from
func CommitsBetween(ctx context.Context, repoPath, from, to string) (int, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-list", "--count", from+".."+to)
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to count commits %s..%s: %w", from, to, err)
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%d", &n); err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q", output)
	}
	return n, nil
}
