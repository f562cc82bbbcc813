package ingestion

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/bugrouter/internal/checkpoint"
	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/graph"
	"github.com/rohankatakam/bugrouter/internal/models"
	"github.com/rohankatakam/bugrouter/internal/ownership"
	"github.com/rohankatakam/bugrouter/internal/telemetry"
)

// Source delivers change events newer than since, at least once
type Source interface {
	ChangeEvents(ctx context.Context, since time.Time) ([]models.ChangeEvent, error)
}

// SnapshotStore persists ownership records between runs
type SnapshotStore interface {
	SaveOwnership(ctx context.Context, repoID string, records []models.FileOwnershipRecord) error
	LoadOwnership(ctx context.Context, repoID string) ([]models.FileOwnershipRecord, error)
}

// DeadLetters receives events the builder refused
type DeadLetters interface {
	Enqueue(ctx context.Context, repoID string, ev models.ChangeEvent, cause error) error
}

// Checkpoints tracks how far each repository has been read
type Checkpoints interface {
	Get(repoID string) (checkpoint.Cursor, bool, error)
	Put(cur checkpoint.Cursor) error
}

// GraphSink mirrors ownership into the graph
type GraphSink interface {
	SyncOwnership(ctx context.Context, repoID string, files []graph.FileOwners, syncedAt time.Time) (graph.SyncStats, error)
}

// Options wires the orchestrator's collaborators. Nil collaborators are
// skipped.
type Options struct {
	Workers     int
	Lookback    time.Duration // how far back a first ingest reads
	Store       SnapshotStore
	DLQ         DeadLetters
	Checkpoints Checkpoints
	Graph       GraphSink
	Instruments *telemetry.Instruments
	Logger      *logrus.Logger
}

// Orchestrator feeds change events into the ownership builder
type Orchestrator struct {
	builder *ownership.Builder
	opts    Options
	logger  *logrus.Logger

	mu       sync.Mutex
	restored map[string]bool
}

// NewOrchestrator creates a new ingestion orchestrator
func NewOrchestrator(builder *ownership.Builder, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		builder:  builder,
		opts:     opts,
		logger:   logger,
		restored: make(map[string]bool),
	}
}

// Rejection is an event the builder refused and why
type Rejection struct {
	Event models.ChangeEvent
	Err   error
}

// IngestResult contains the results of an ingestion
type IngestResult struct {
	RepoID        string
	Events        int
	Applied       int
	Duplicates    int
	Rejected      int
	Rejections    []Rejection
	Halted        []string
	Touched       []string
	LastCommit    string
	LastTimestamp time.Time
	Duration      time.Duration
}

type shardResult struct {
	applied    int
	duplicates int
	rejections []Rejection
	touched    map[string]struct{}
}

// Ingest applies events to the builder. Events are ordered by timestamp and
// partitioned by file, so each file's events are applied in order by a
// single worker. Malformed events are reported in the result rather than
// failing the batch.
func (o *Orchestrator) Ingest(ctx context.Context, repoID string, events []models.ChangeEvent) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{RepoID: repoID, Events: len(events)}
	if len(events) == 0 {
		return result, nil
	}

	sorted := make([]models.ChangeEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	shards := partition(sorted, o.opts.Workers)
	results := make([]shardResult, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		if len(shard) == 0 {
			continue
		}
		g.Go(func() error {
			res := shardResult{touched: make(map[string]struct{})}
			for _, ev := range shard {
				if err := gctx.Err(); err != nil {
					return err
				}
				outcome, err := o.builder.Apply(ev)
				switch outcome {
				case ownership.OutcomeApplied:
					res.applied++
					res.touched[ev.FilePath] = struct{}{}
				case ownership.OutcomeDuplicate:
					res.duplicates++
				default:
					res.rejections = append(res.rejections, Rejection{Event: ev, Err: err})
					if errors.IsFatal(err) {
						res.touched[ev.FilePath] = struct{}{}
					}
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingestion interrupted: %w", err)
	}

	touched := make(map[string]struct{})
	halted := make(map[string]struct{})
	for _, res := range results {
		result.Applied += res.applied
		result.Duplicates += res.duplicates
		result.Rejections = append(result.Rejections, res.rejections...)
		for path := range res.touched {
			touched[path] = struct{}{}
		}
		for _, rej := range res.rejections {
			if errors.IsFatal(rej.Err) {
				halted[rej.Event.FilePath] = struct{}{}
			}
		}
	}
	result.Rejected = len(result.Rejections)
	result.Touched = sortedKeys(touched)
	result.Halted = sortedKeys(halted)
	sort.SliceStable(result.Rejections, func(i, j int) bool {
		return result.Rejections[i].Event.Timestamp.Before(result.Rejections[j].Event.Timestamp)
	})

	last := sorted[len(sorted)-1]
	result.LastCommit = last.CommitID
	result.LastTimestamp = last.Timestamp

	if o.opts.DLQ != nil {
		for _, rej := range result.Rejections {
			if err := o.opts.DLQ.Enqueue(ctx, repoID, rej.Event, rej.Err); err != nil {
				o.logger.WithError(err).WithField("file", rej.Event.FilePath).Warn("Failed to record rejected event")
			}
		}
	}

	o.opts.Instruments.IngestEvents(ctx, "applied", int64(result.Applied))
	o.opts.Instruments.IngestEvents(ctx, "duplicate", int64(result.Duplicates))
	o.opts.Instruments.IngestEvents(ctx, "rejected", int64(result.Rejected))

	result.Duration = time.Since(start)
	fields := logrus.Fields{
		"repo":       repoID,
		"events":     result.Events,
		"applied":    result.Applied,
		"duplicates": result.Duplicates,
		"rejected":   result.Rejected,
		"duration":   result.Duration.String(),
	}
	if len(result.Halted) > 0 {
		o.logger.WithFields(fields).WithField("halted", result.Halted).Error("Ownership updates halted for some files")
	} else {
		o.logger.WithFields(fields).Info("Change events ingested")
	}
	return result, nil
}

// IngestRepository performs an incremental ingestion of one repository:
// restore the stored snapshot once, read events past the checkpoint,
// ingest them, then persist the touched records before advancing the
// checkpoint.
func (o *Orchestrator) IngestRepository(ctx context.Context, repoID string, source Source) (*IngestResult, error) {
	if err := o.restore(ctx, repoID); err != nil {
		return nil, err
	}

	since, err := o.since(repoID)
	if err != nil {
		return nil, err
	}
	o.logger.WithFields(logrus.Fields{
		"repo":  repoID,
		"since": since,
	}).Info("Starting repository ingestion")

	events, err := source.ChangeEvents(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("read change events: %w", err)
	}

	result, err := o.Ingest(ctx, repoID, events)
	if err != nil {
		return nil, err
	}
	if result.Events == 0 {
		return result, nil
	}

	if o.opts.Store != nil {
		records := make([]models.FileOwnershipRecord, 0, len(result.Touched))
		for _, path := range result.Touched {
			if rec, ok := o.builder.Record(path); ok {
				records = append(records, rec)
			}
		}
		if err := o.opts.Store.SaveOwnership(ctx, repoID, records); err != nil {
			return nil, fmt.Errorf("save ownership snapshot: %w", err)
		}
	}

	if o.opts.Checkpoints != nil {
		prev, _, _ := o.opts.Checkpoints.Get(repoID)
		if err := o.opts.Checkpoints.Put(checkpoint.Cursor{
			RepoID:        repoID,
			LastTimestamp: result.LastTimestamp,
			LastCommit:    result.LastCommit,
			Events:        prev.Events + result.Events,
			UpdatedAt:     time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("advance checkpoint: %w", err)
		}
	}

	if o.opts.Graph != nil && len(result.Touched) > 0 {
		files := make([]graph.FileOwners, 0, len(result.Touched))
		for _, path := range result.Touched {
			files = append(files, graph.FileOwners{Path: path, Owners: o.builder.OwnersOf(path)})
		}
		if _, err := o.opts.Graph.SyncOwnership(ctx, repoID, files, o.builder.Now()); err != nil {
			// the graph is an export; the stored snapshot stays authoritative
			o.logger.WithError(err).WithField("repo", repoID).Warn("Ownership graph sync failed")
		}
	}

	return result, nil
}

// restore loads the stored snapshot into the builder the first time a
// repository is seen by this orchestrator
func (o *Orchestrator) restore(ctx context.Context, repoID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.restored[repoID] || o.opts.Store == nil {
		return nil
	}

	records, err := o.opts.Store.LoadOwnership(ctx, repoID)
	if err != nil {
		return fmt.Errorf("load ownership snapshot: %w", err)
	}
	if err := o.builder.Restore(records); err != nil {
		return fmt.Errorf("restore ownership snapshot: %w", err)
	}
	o.restored[repoID] = true

	if len(records) > 0 {
		o.logger.WithFields(logrus.Fields{
			"repo":  repoID,
			"files": len(records),
		}).Debug("Ownership snapshot restored")
	}
	return nil
}

// since is the checkpoint time, or the lookback window for a first ingest.
// Events at exactly the checkpoint are read again and dropped as duplicates.
func (o *Orchestrator) since(repoID string) (time.Time, error) {
	if o.opts.Checkpoints != nil {
		cur, ok, err := o.opts.Checkpoints.Get(repoID)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return cur.LastTimestamp, nil
		}
	}
	if o.opts.Lookback > 0 {
		return o.builder.Now().Add(-o.opts.Lookback), nil
	}
	return time.Time{}, nil
}

// partition splits events into n shards by file path, preserving order
func partition(events []models.ChangeEvent, n int) [][]models.ChangeEvent {
	if n <= 0 {
		n = 1
	}
	shards := make([][]models.ChangeEvent, n)
	for _, ev := range events {
		h := fnv.New32a()
		h.Write([]byte(ev.FilePath))
		idx := int(h.Sum32() % uint32(n))
		shards[idx] = append(shards[idx], ev)
	}
	return shards
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
