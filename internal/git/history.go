package git

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rohankatakam/bugrouter/internal/models"
)

// recordSep starts every commit header so subject lines can hold any text
const recordSep = "\x1e"

// History reads change events from a local clone
type History struct {
	repoPath string
}

// NewHistory creates a History for the repository at repoPath
func NewHistory(repoPath string) *History {
	return &History{repoPath: repoPath}
}

// ChangeEvents runs git log --numstat and returns one event per file per
// commit, oldest first. A zero since reads the whole history.
func (h *History) ChangeEvents(ctx context.Context, since time.Time) ([]models.ChangeEvent, error) {
	args := []string{"log",
		"--numstat",
		"--no-renames",
		"--reverse",
		"--pretty=format:" + recordSep + "%H|%ae|%ad|%an",
		"--date=iso-strict",
	}
	if !since.IsZero() {
		args = append(args, "--since="+since.UTC().Format(time.RFC3339))
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = h.repoPath
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git log failed: %w (stderr: %s)", err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("git log failed: %w", err)
	}

	return parseLog(string(output))
}

// parseLog turns git log output into change events. Binary files (numstat
// "-") are skipped; authors are identified by lower-cased email.
func parseLog(output string) ([]models.ChangeEvent, error) {
	var events []models.ChangeEvent
	var sha, author string
	var ts time.Time
	inCommit := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		// Commit header: SEP SHA|Email|Date|Name
		if strings.HasPrefix(line, recordSep) {
			parts := strings.SplitN(strings.TrimPrefix(line, recordSep), "|", 4)
			if len(parts) != 4 {
				return nil, fmt.Errorf("malformed commit header %q", line)
			}
			parsed, err := time.Parse(time.RFC3339, parts[2])
			if err != nil {
				return nil, fmt.Errorf("commit %s has bad date %q: %w", parts[0], parts[2], err)
			}
			sha = parts[0]
			author = strings.ToLower(strings.TrimSpace(parts[1]))
			if author == "" {
				author = strings.TrimSpace(parts[3])
			}
			ts = parsed.UTC()
			inCommit = true
			continue
		}

		if !inCommit {
			continue
		}

		// File change: additions TAB deletions TAB path
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		if fields[0] == "-" || fields[1] == "-" {
			continue
		}
		added, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		removed, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}

		events = append(events, models.ChangeEvent{
			FilePath:     fields[2],
			AuthorID:     author,
			Timestamp:    ts,
			LinesAdded:   added,
			LinesRemoved: removed,
			CommitID:     sha,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning git log output: %w", err)
	}

	return events, nil
}
