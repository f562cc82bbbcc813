// Package expertise ranks candidate owners for a set of affected files.
//
// The scorer reads ownership and complexity without holding any lock across
// the whole ranking. Under concurrent ingestion a ranking may reflect
// ownership a few events old; that staleness is accepted.
package expertise

import (
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/rohankatakam/bugrouter/internal/complexity"
	"github.com/rohankatakam/bugrouter/internal/models"
	"github.com/rohankatakam/bugrouter/internal/ownership"
)

// OwnershipSource returns a file's owners, non-increasing by weight
type OwnershipSource interface {
	OwnersOf(path string) []ownership.Owner
}

// ModuleSource aggregates ownership over the files beneath a directory.
// An OwnershipSource that also implements it gets directory fallback.
type ModuleSource interface {
	ModuleOwners(dir string) []ownership.Owner
	ModuleSize(dir string) int
}

// moduleDiscount scales the per-file share of directory ownership used for
// a file with no history of its own
const moduleDiscount = 0.5

// Scorer combines ownership and complexity into a ranking
type Scorer struct {
	owners     OwnershipSource
	modules    ModuleSource
	complexity complexity.Estimator
	logger     *slog.Logger
}

// NewScorer creates a scorer
func NewScorer(owners OwnershipSource, estimator complexity.Estimator) *Scorer {
	s := &Scorer{
		owners:     owners,
		complexity: estimator,
		logger:     slog.Default().With("component", "expertise"),
	}
	if ms, ok := owners.(ModuleSource); ok {
		s.modules = ms
	}
	return s
}

type tally struct {
	score   float64
	last    time.Time
	files   map[string]float64
	primary []string
	modules map[string]struct{}
}

// Rank scores every author who touched any of the files. An author's score
// is the sum over files of ownership weight times file complexity. A file
// with no owners borrows the owners of its nearest directory that has any,
// each weight divided by the directory's file count and discounted. Ties
// are broken by the more recent contribution, then by author id. Authors
// with a zero total are dropped; an empty result is not an error.
func (s *Scorer) Rank(files []string) []models.ExpertiseCandidate {
	tallies := make(map[string]*tally)
	get := func(author string) *tally {
		t, ok := tallies[author]
		if !ok {
			t = &tally{files: make(map[string]float64), modules: make(map[string]struct{})}
			tallies[author] = t
		}
		return t
	}

	for _, file := range dedupe(files) {
		owners := s.owners.OwnersOf(file)
		module := ""
		if len(owners) == 0 {
			module, owners = s.moduleOwners(file)
		}
		if len(owners) == 0 {
			continue
		}
		weight := s.complexity.ScoreOf(file).Score

		for i, o := range owners {
			contrib := o.Weight * weight
			t := get(o.AuthorID)
			t.score += contrib
			t.files[file] += contrib
			if module != "" {
				t.modules[module] = struct{}{}
			} else if i == 0 {
				t.primary = append(t.primary, file)
			}
			if o.LastContribution.After(t.last) {
				t.last = o.LastContribution
			}
		}
	}

	candidates := make([]models.ExpertiseCandidate, 0, len(tallies))
	for author, t := range tallies {
		if t.score <= 0 {
			continue
		}
		c := models.ExpertiseCandidate{
			AuthorID:         author,
			FilePath:         topFile(t.files),
			Files:            sortedKeys(t.files),
			PrimaryFiles:     t.primary,
			RawScore:         t.score,
			LastContribution: t.last,
		}
		if len(t.modules) > 0 {
			c.Modules = sortedKeys(t.modules)
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.RawScore != b.RawScore {
			return a.RawScore > b.RawScore
		}
		if !a.LastContribution.Equal(b.LastContribution) {
			return a.LastContribution.After(b.LastContribution)
		}
		return a.AuthorID < b.AuthorID
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}

	s.logger.Debug("ranked candidates", "files", len(files), "candidates", len(candidates))
	return candidates
}

// moduleOwners walks up from the file's directory to the first one with
// owners. The repository root is never used.
func (s *Scorer) moduleOwners(file string) (string, []ownership.Owner) {
	if s.modules == nil {
		return "", nil
	}
	for dir := path.Dir(file); dir != "." && dir != "/"; dir = path.Dir(dir) {
		owners := s.modules.ModuleOwners(dir)
		n := s.modules.ModuleSize(dir)
		if len(owners) == 0 || n == 0 {
			continue
		}
		scaled := make([]ownership.Owner, len(owners))
		for i, o := range owners {
			o.Weight = o.Weight / float64(n) * moduleDiscount
			scaled[i] = o
		}
		s.logger.Debug("directory fallback", "file", file, "module", dir, "owners", len(owners))
		return dir, scaled
	}
	return "", nil
}

func dedupe(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f]; ok || f == "" {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// topFile picks the file contributing most, smallest path on ties
func topFile(files map[string]float64) string {
	best := ""
	for _, path := range sortedKeys(files) {
		if best == "" || files[path] > files[best] {
			best = path
		}
	}
	return best
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
