// Package ownership maintains a time-decayed, per-file model of who has
// contributed to which files.
//
// Updates are serialized per file: the file map is only locked to look up or
// insert a file's state, and each file carries its own mutex for the update
// itself. Concurrent events for different files never contend.
package ownership

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
)

// ApplyOutcome reports what Apply did with a valid event
type ApplyOutcome int

const (
	OutcomeApplied ApplyOutcome = iota
	OutcomeDuplicate
	OutcomeRejected
)

func (o ApplyOutcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRejected:
		return "rejected"
	default:
		return "applied"
	}
}

// Owner is an author's weight on a file at a point in time
type Owner struct {
	AuthorID         string
	Weight           float64
	LastContribution time.Time
}

// Options configures a Builder. Zero fields take defaults.
type Options struct {
	Decay        DecayFunc
	Contribution ContributionFunc
	StaleWindow  time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// DefaultOptions are a 90 day half-life, log-scaled contributions with
// deletions at half weight, and a 180 day stale window.
func DefaultOptions() Options {
	return Options{
		Decay:        HalfLifeDecay(90),
		Contribution: LogContribution(0.5),
		StaleWindow:  180 * 24 * time.Hour,
		Now:          time.Now,
	}
}

type fileState struct {
	mu     sync.RWMutex
	rec    models.FileOwnershipRecord
	seen   map[string]struct{}
	exists bool
}

// Builder owns all FileOwnershipRecord state
type Builder struct {
	mu     sync.RWMutex
	files  map[string]*fileState
	opts   Options
	logger *slog.Logger
}

// NewBuilder creates an empty ownership model
func NewBuilder(opts Options) *Builder {
	def := DefaultOptions()
	if opts.Decay == nil {
		opts.Decay = def.Decay
	}
	if opts.Contribution == nil {
		opts.Contribution = def.Contribution
	}
	if opts.StaleWindow <= 0 {
		opts.StaleWindow = def.StaleWindow
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		files:  make(map[string]*fileState),
		opts:   opts,
		logger: logger.With("component", "ownership_builder"),
	}
}

// Validate rejects events that cannot be applied
func Validate(ev models.ChangeEvent) error {
	switch {
	case strings.TrimSpace(ev.FilePath) == "":
		return errors.MalformedEventf("change event in commit %q has no file path", ev.CommitID)
	case strings.TrimSpace(ev.AuthorID) == "":
		return errors.MalformedEventf("change event for %s has no author", ev.FilePath)
	case strings.TrimSpace(ev.CommitID) == "":
		return errors.MalformedEventf("change event for %s has no commit id", ev.FilePath)
	case ev.Timestamp.IsZero():
		return errors.MalformedEventf("change event %s/%s has no timestamp", ev.CommitID, ev.FilePath)
	case ev.LinesAdded < 0 || ev.LinesRemoved < 0:
		return errors.MalformedEventf("change event %s/%s has negative line counts", ev.CommitID, ev.FilePath)
	}
	return nil
}

// Apply folds one change event into the file's record. Malformed events
// are rejected before any state is touched; a repeated (commit, file) pair
// is a no-op.
func (b *Builder) Apply(ev models.ChangeEvent) (ApplyOutcome, error) {
	if err := Validate(ev); err != nil {
		return OutcomeRejected, err
	}

	fs := b.stateFor(ev.FilePath)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.rec.Halted {
		return OutcomeRejected, errors.InconsistentStatef("updates to %s are halted after an invariant violation", ev.FilePath)
	}
	if _, dup := fs.seen[ev.CommitID]; dup {
		return OutcomeDuplicate, nil
	}

	delta := b.opts.Contribution(ev.LinesAdded, ev.LinesRemoved)
	owners := make(map[string]models.OwnerEntry, len(fs.rec.Owners)+1)
	lastUpdated := fs.rec.LastUpdated

	switch {
	case !fs.exists:
		lastUpdated = ev.Timestamp
	case ev.Timestamp.After(lastUpdated):
		// Bring every stored weight forward to the new event time.
		elapsed := ev.Timestamp.Sub(lastUpdated)
		for author, entry := range fs.rec.Owners {
			entry.Weight = b.opts.Decay(entry.Weight, elapsed)
			owners[author] = entry
		}
		lastUpdated = ev.Timestamp
	default:
		// Late event: age its contribution to the record's time instead.
		for author, entry := range fs.rec.Owners {
			owners[author] = entry
		}
		delta = b.opts.Decay(delta, lastUpdated.Sub(ev.Timestamp))
	}

	// A zero-line change does not make a new owner.
	if entry, ok := owners[ev.AuthorID]; ok || delta > 0 {
		entry.Weight += delta
		if ev.Timestamp.After(entry.LastContribution) {
			entry.LastContribution = ev.Timestamp
		}
		owners[ev.AuthorID] = entry
	}

	if err := checkWeights(ev.FilePath, owners); err != nil {
		fs.rec.Halted = true
		fs.exists = true
		fs.rec.FilePath = ev.FilePath
		b.logger.Error("ownership invariant violated, halting updates for file",
			"file", ev.FilePath,
			"commit", ev.CommitID,
			"author", ev.AuthorID,
			"error", err)
		return OutcomeRejected, err
	}

	if !fs.exists || ev.Timestamp.Before(fs.rec.FirstSeen) {
		fs.rec.FirstSeen = ev.Timestamp
	}
	fs.rec.FilePath = ev.FilePath
	fs.rec.Owners = owners
	fs.rec.LastUpdated = lastUpdated
	fs.rec.EventCount++
	fs.rec.NetLines += ev.LinesAdded - ev.LinesRemoved
	if fs.rec.NetLines < 0 {
		fs.rec.NetLines = 0
	}
	fs.seen[ev.CommitID] = struct{}{}
	fs.exists = true

	return OutcomeApplied, nil
}

func checkWeights(path string, owners map[string]models.OwnerEntry) error {
	for author, entry := range owners {
		if math.IsNaN(entry.Weight) || math.IsInf(entry.Weight, 0) || entry.Weight < 0 {
			return errors.InconsistentStatef("weight %v for %s on %s", entry.Weight, author, path)
		}
	}
	return nil
}

func (b *Builder) stateFor(path string) *fileState {
	b.mu.RLock()
	fs, ok := b.files[path]
	b.mu.RUnlock()
	if ok {
		return fs
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if fs, ok = b.files[path]; ok {
		return fs
	}
	fs = &fileState{seen: make(map[string]struct{})}
	b.files[path] = fs
	return fs
}

func (b *Builder) lookup(path string) *fileState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.files[path]
}

// OwnersOf returns the file's owners decayed to now, non-increasing by weight
func (b *Builder) OwnersOf(path string) []Owner {
	return b.OwnersAt(path, b.opts.Now())
}

// OwnersAt returns the file's owners decayed to t. Ties are broken by the
// more recent contribution, then by author id. Never-seen files return nil.
func (b *Builder) OwnersAt(path string, t time.Time) []Owner {
	fs := b.lookup(path)
	if fs == nil {
		return nil
	}

	fs.mu.RLock()
	if !fs.exists || len(fs.rec.Owners) == 0 {
		fs.mu.RUnlock()
		return nil
	}
	elapsed := t.Sub(fs.rec.LastUpdated)
	owners := make([]Owner, 0, len(fs.rec.Owners))
	for author, entry := range fs.rec.Owners {
		owners = append(owners, Owner{
			AuthorID:         author,
			Weight:           b.opts.Decay(entry.Weight, elapsed),
			LastContribution: entry.LastContribution,
		})
	}
	fs.mu.RUnlock()

	sortOwners(owners)
	return owners
}

func sortOwners(owners []Owner) {
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].Weight != owners[j].Weight {
			return owners[i].Weight > owners[j].Weight
		}
		if !owners[i].LastContribution.Equal(owners[j].LastContribution) {
			return owners[i].LastContribution.After(owners[j].LastContribution)
		}
		return owners[i].AuthorID < owners[j].AuthorID
	})
}

// ModuleOwners aggregates decayed weights over every file under dir
func (b *Builder) ModuleOwners(dir string) []Owner {
	prefix := strings.TrimSuffix(dir, "/")
	if prefix != "" {
		prefix += "/"
	}
	now := b.opts.Now()

	totals := make(map[string]*Owner)
	for _, path := range b.Files() {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		for _, o := range b.OwnersAt(path, now) {
			agg, ok := totals[o.AuthorID]
			if !ok {
				agg = &Owner{AuthorID: o.AuthorID}
				totals[o.AuthorID] = agg
			}
			agg.Weight += o.Weight
			if o.LastContribution.After(agg.LastContribution) {
				agg.LastContribution = o.LastContribution
			}
		}
	}

	owners := make([]Owner, 0, len(totals))
	for _, o := range totals {
		owners = append(owners, *o)
	}
	sortOwners(owners)
	return owners
}

// ModuleSize counts the tracked files beneath dir
func (b *Builder) ModuleSize(dir string) int {
	prefix := strings.TrimSuffix(dir, "/")
	if prefix != "" {
		prefix += "/"
	}
	n := 0
	for _, path := range b.Files() {
		if strings.HasPrefix(path, prefix) {
			n++
		}
	}
	return n
}

// Record returns a copy of the file's record as stored (not decayed)
func (b *Builder) Record(path string) (models.FileOwnershipRecord, bool) {
	fs := b.lookup(path)
	if fs == nil {
		return models.FileOwnershipRecord{}, false
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if !fs.exists {
		return models.FileOwnershipRecord{}, false
	}
	return copyRecord(fs), true
}

func copyRecord(fs *fileState) models.FileOwnershipRecord {
	rec := fs.rec
	rec.Owners = make(map[string]models.OwnerEntry, len(fs.rec.Owners))
	for k, v := range fs.rec.Owners {
		rec.Owners[k] = v
	}
	rec.SeenCommits = make([]string, 0, len(fs.seen))
	for c := range fs.seen {
		rec.SeenCommits = append(rec.SeenCommits, c)
	}
	sort.Strings(rec.SeenCommits)
	return rec
}

// Stats returns the history-derived complexity inputs for a file
func (b *Builder) Stats(path string) (models.FileStats, bool) {
	fs := b.lookup(path)
	if fs == nil {
		return models.FileStats{}, false
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if !fs.exists {
		return models.FileStats{}, false
	}
	return models.FileStats{
		FilePath:        path,
		NetLines:        fs.rec.NetLines,
		DistinctAuthors: len(fs.rec.Owners),
		EventCount:      fs.rec.EventCount,
		FirstSeen:       fs.rec.FirstSeen,
		LastUpdated:     fs.rec.LastUpdated,
	}, true
}

// IsStale reports whether a tracked file has gone without events for the
// stale window. Stale records are kept.
func (b *Builder) IsStale(path string) bool {
	rec, ok := b.Record(path)
	if !ok {
		return false
	}
	return b.opts.Now().Sub(rec.LastUpdated) > b.opts.StaleWindow
}

// StaleFiles lists tracked files past the stale window, sorted
func (b *Builder) StaleFiles() []string {
	var stale []string
	for _, path := range b.Files() {
		if b.IsStale(path) {
			stale = append(stale, path)
		}
	}
	return stale
}

// Files lists every tracked file, sorted
func (b *Builder) Files() []string {
	b.mu.RLock()
	paths := make([]string, 0, len(b.files))
	for path, fs := range b.files {
		fs.mu.RLock()
		if fs.exists {
			paths = append(paths, path)
		}
		fs.mu.RUnlock()
	}
	b.mu.RUnlock()
	sort.Strings(paths)
	return paths
}

// Snapshot copies every record, sorted by path
func (b *Builder) Snapshot() []models.FileOwnershipRecord {
	paths := b.Files()
	records := make([]models.FileOwnershipRecord, 0, len(paths))
	for _, path := range paths {
		if rec, ok := b.Record(path); ok {
			records = append(records, rec)
		}
	}
	return records
}

// Restore loads records, replacing any state held for the same files
func (b *Builder) Restore(records []models.FileOwnershipRecord) error {
	for _, rec := range records {
		if rec.FilePath == "" {
			return errors.ValidationErrorf("restored ownership record has no file path")
		}
		if !rec.Halted {
			if err := checkWeights(rec.FilePath, rec.Owners); err != nil {
				return err
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range records {
		fs := &fileState{
			rec:    rec,
			seen:   make(map[string]struct{}, len(rec.SeenCommits)),
			exists: true,
		}
		fs.rec.Owners = make(map[string]models.OwnerEntry, len(rec.Owners))
		for k, v := range rec.Owners {
			fs.rec.Owners[k] = v
		}
		for _, c := range rec.SeenCommits {
			fs.seen[c] = struct{}{}
		}
		fs.rec.SeenCommits = nil
		b.files[rec.FilePath] = fs
	}
	return nil
}

// Now returns the builder's clock reading
func (b *Builder) Now() time.Time {
	return b.opts.Now()
}
