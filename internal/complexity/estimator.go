// Package complexity scores how significant a file is, so that owning a
// large, busy, widely shared file counts for more than owning a small one.
package complexity

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rohankatakam/bugrouter/internal/models"
)

// MaxScore is the upper bound of every score
const MaxScore = 3.0

// Metadata is the input a score is computed from
type Metadata = models.ComplexityInputs

// Estimator scores files
type Estimator interface {
	ScoreOf(path string) models.ComplexityScore
}

// StatsSource provides history-derived metadata for a file
type StatsSource interface {
	Stats(path string) (models.FileStats, bool)
}

// SizeSource provides the current size of a file in lines
type SizeSource interface {
	SizeOf(path string) (int, bool)
}

// Weights for the normalized components
type Weights struct {
	Size    float64
	Churn   float64
	Authors float64
}

// Caps are the values at which a component saturates to 1
type Caps struct {
	SizeLines   float64
	ChurnPerDay float64
	Authors     float64
}

// Policy is the default weighted-sum formula
type Policy struct {
	Weights  Weights
	Caps     Caps
	MinScore float64
}

// DefaultPolicy weights size and churn 0.4 each and author diversity 0.2
func DefaultPolicy() Policy {
	return Policy{
		Weights:  Weights{Size: 0.4, Churn: 0.4, Authors: 0.2},
		Caps:     Caps{SizeLines: 1000, ChurnPerDay: 1.0, Authors: 5},
		MinScore: 0.1,
	}
}

// Score is a pure function of the metadata. Each component is normalized
// against its cap and clipped to [0,1]; the weighted mean is scaled to
// [0, MaxScore] and floored at MinScore.
func (p Policy) Score(m Metadata) float64 {
	total := p.Weights.Size + p.Weights.Churn + p.Weights.Authors
	if total <= 0 {
		return clamp(p.MinScore, 0, MaxScore)
	}

	sum := p.Weights.Size*normalize(m.SizeLines, p.Caps.SizeLines) +
		p.Weights.Churn*normalize(m.ChurnPerDay, p.Caps.ChurnPerDay) +
		p.Weights.Authors*normalize(float64(m.DistinctAuthors), p.Caps.Authors)

	score := MaxScore * sum / total
	return clamp(score, math.Max(p.MinScore, 0), MaxScore)
}

func normalize(v, limit float64) float64 {
	if limit <= 0 || math.IsNaN(v) {
		return 0
	}
	return clamp(v/limit, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

type memoEntry struct {
	meta  Metadata
	score float64
}

// HistoryEstimator derives metadata from ownership history and memoizes one
// score per path along with the metadata it was computed from. A file is
// recomputed only when its inputs change.
type HistoryEstimator struct {
	stats  StatsSource
	sizes  SizeSource
	policy Policy
	now    func() time.Time
	logger *slog.Logger

	mu   sync.RWMutex
	memo map[string]memoEntry
}

// NewHistoryEstimator creates an estimator. sizes may be nil, in which case
// the net lines observed in history stand in for file size.
func NewHistoryEstimator(stats StatsSource, sizes SizeSource, policy Policy) *HistoryEstimator {
	return &HistoryEstimator{
		stats:  stats,
		sizes:  sizes,
		policy: policy,
		now:    time.Now,
		logger: slog.Default().With("component", "complexity"),
		memo:   make(map[string]memoEntry),
	}
}

// MetadataOf collects the inputs for a file. Unknown files have zero metadata.
func (e *HistoryEstimator) MetadataOf(path string) Metadata {
	var m Metadata
	st, ok := e.stats.Stats(path)
	if ok {
		m.SizeLines = float64(st.NetLines)
		m.DistinctAuthors = st.DistinctAuthors
		m.ChurnPerDay = churnPerDay(st)
	}
	if e.sizes != nil {
		if lines, ok := e.sizes.SizeOf(path); ok {
			m.SizeLines = float64(lines)
		}
	}
	return m
}

// churnPerDay is events per day over the file's observed history, with a
// one day minimum span.
func churnPerDay(st models.FileStats) float64 {
	days := st.LastUpdated.Sub(st.FirstSeen).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(st.EventCount) / days
}

// ScoreOf returns the file's complexity score
func (e *HistoryEstimator) ScoreOf(path string) models.ComplexityScore {
	meta := e.MetadataOf(path)

	e.mu.RLock()
	cached, ok := e.memo[path]
	e.mu.RUnlock()

	score := cached.score
	if !ok || cached.meta != meta {
		score = e.policy.Score(meta)
		e.mu.Lock()
		e.memo[path] = memoEntry{meta: meta, score: score}
		e.mu.Unlock()
		e.logger.Debug("complexity computed",
			"file", path,
			"score", score,
			"size_lines", meta.SizeLines,
			"authors", meta.DistinctAuthors,
			"churn_per_day", meta.ChurnPerDay)
	}

	return models.ComplexityScore{
		FilePath:   path,
		Score:      score,
		ComputedAt: e.now(),
		Inputs:     meta,
	}
}

// Fixed returns the same score for every file, with per-file overrides
type Fixed struct {
	Default   float64
	Overrides map[string]float64
}

// ScoreOf implements Estimator
func (f Fixed) ScoreOf(path string) models.ComplexityScore {
	score := f.Default
	if v, ok := f.Overrides[path]; ok {
		score = v
	}
	return models.ComplexityScore{FilePath: path, Score: score}
}
