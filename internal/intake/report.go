// Package intake normalizes incoming bug reports and derives the set of
// affected files when the reporter did not supply one.
package intake

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

// BugReport is a bug to be routed. Priority is one of critical, high,
// medium or low; empty means medium.
type BugReport struct {
	BugID         string   `json:"bug_id" yaml:"bug_id"`
	Priority      string   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Title         string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	StackTrace    string   `json:"stack_trace,omitempty" yaml:"stack_trace,omitempty"`
	AffectedFiles []string `json:"affected_files,omitempty" yaml:"affected_files,omitempty"`
}

// sourcePath matches tokens that look like source file paths
var sourcePath = regexp.MustCompile(`[\w/\-.]+\.(?:go|py|js|jsx|ts|tsx|java|kt|rb|rs|cpp|cc|c|h|hpp|cs|php|swift|scala)\b`)

// ExtractFiles returns the report's affected files. Explicit files win; when
// none are given, paths are pulled from the stack trace, title and
// description. The result is cleaned, deduplicated and sorted.
func ExtractFiles(r BugReport) []string {
	if files := Normalize(r.AffectedFiles); len(files) > 0 {
		return files
	}

	var found []string
	for _, text := range []string{r.StackTrace, r.Title, r.Description} {
		text = strings.ReplaceAll(text, "\\", "/")
		found = append(found, sourcePath.FindAllString(text, -1)...)
	}
	return Normalize(found)
}

// Normalize cleans repository-relative paths, dropping empties, URLs and
// paths that escape the repository
func Normalize(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || strings.Contains(p, "://") {
			continue
		}
		p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
		p = strings.TrimPrefix(p, "/")
		if p == "." || p == "" || p == ".." || strings.HasPrefix(p, "../") {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MatchKnown maps extracted paths onto tracked files. A path that is not
// tracked but ends in "/"+tracked (an absolute path from a stack trace, for
// instance) resolves to the longest such tracked file. Unmatched paths are
// kept as given.
func MatchKnown(paths, known []string) []string {
	index := make(map[string]struct{}, len(known))
	for _, k := range known {
		index[k] = struct{}{}
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := index[p]; ok {
			out = append(out, p)
			continue
		}
		best := ""
		for _, k := range known {
			if len(k) > len(best) && strings.HasSuffix(p, "/"+k) {
				best = k
			}
		}
		if best != "" {
			out = append(out, best)
		} else {
			out = append(out, p)
		}
	}
	return Normalize(out)
}
