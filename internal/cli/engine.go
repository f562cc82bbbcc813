// Package cli assembles the routing engine from configuration for the
// brouter commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/bugrouter/internal/availability"
	"github.com/rohankatakam/bugrouter/internal/checkpoint"
	"github.com/rohankatakam/bugrouter/internal/complexity"
	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/dlq"
	"github.com/rohankatakam/bugrouter/internal/expertise"
	"github.com/rohankatakam/bugrouter/internal/git"
	"github.com/rohankatakam/bugrouter/internal/graph"
	"github.com/rohankatakam/bugrouter/internal/ingestion"
	"github.com/rohankatakam/bugrouter/internal/ownership"
	"github.com/rohankatakam/bugrouter/internal/resolver"
	"github.com/rohankatakam/bugrouter/internal/storage"
	"github.com/rohankatakam/bugrouter/internal/telemetry"
)

// statusReadRetries is how many times the resolver retries a failed
// availability lookup
const statusReadRetries = 2

// Engine holds the components one command needs, all scoped to a single
// repository
type Engine struct {
	Config      *config.Config
	RepoID      string
	RepoPath    string
	Store       storage.Store
	Builder     *ownership.Builder
	DLQ         *dlq.Queue
	Instruments *telemetry.Instruments

	tracker availability.Service
	logger  *logrus.Logger
}

// Open connects storage for repoID. repoPath is the local checkout used to
// measure file sizes and may be empty.
func Open(cfg *config.Config, repoID, repoPath string, logger *logrus.Logger) (*Engine, error) {
	if logger == nil {
		logger = logrus.New()
	}
	store, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &Engine{
		Config:      cfg,
		RepoID:      repoID,
		RepoPath:    repoPath,
		Store:       store,
		Builder:     ownership.NewBuilder(OwnershipOptions(cfg.Ownership)),
		DLQ:         dlq.NewQueue(store.DB()),
		Instruments: telemetry.NewInstruments(nil),
		logger:      logger,
	}, nil
}

// Close releases storage and the availability backend
func (e *Engine) Close() error {
	if c, ok := e.tracker.(io.Closer); ok {
		c.Close()
	}
	return e.Store.Close()
}

// OwnershipOptions maps the ownership section onto builder options
func OwnershipOptions(cfg config.OwnershipConfig) ownership.Options {
	return ownership.Options{
		Decay:        ownership.HalfLifeDecay(cfg.DecayHalfLifeDays),
		Contribution: ownership.LogContribution(cfg.DeletionCoefficient),
		StaleWindow:  time.Duration(cfg.StaleWindowDays * float64(24*time.Hour)),
	}
}

// ComplexityPolicy maps the complexity section onto a scoring policy
func ComplexityPolicy(cfg config.ComplexityConfig) complexity.Policy {
	return complexity.Policy{
		Weights: complexity.Weights{
			Size:    cfg.WeightSize,
			Churn:   cfg.WeightChurn,
			Authors: cfg.WeightAuthors,
		},
		Caps: complexity.Caps{
			SizeLines:   cfg.SizeCapLines,
			ChurnPerDay: cfg.ChurnCapPerDay,
			Authors:     cfg.AuthorCap,
		},
		MinScore: cfg.MinScore,
	}
}

// LoadOwnership restores the stored ownership snapshot into the builder
func (e *Engine) LoadOwnership(ctx context.Context) error {
	records, err := e.Store.LoadOwnership(ctx, e.RepoID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return FormatNotIngestedError(e.RepoID)
	}
	if err := e.Builder.Restore(records); err != nil {
		return fmt.Errorf("restore ownership: %w", err)
	}
	e.logger.WithFields(logrus.Fields{
		"repo":  e.RepoID,
		"files": len(records),
	}).Debug("Ownership loaded")
	return nil
}

// Tracker connects the configured availability backend on first use
func (e *Engine) Tracker(ctx context.Context) (availability.Service, error) {
	if e.tracker != nil {
		return e.tracker, nil
	}
	svc, err := availability.New(ctx, e.Config.Availability, e.Store.DB())
	if err != nil {
		return nil, err
	}
	if e.Config.Availability.Backend == "memory" {
		e.logger.Warn("Using in-process availability; reservations last for this command only")
	}
	e.tracker = svc
	return svc, nil
}

// Ranker builds the expertise scorer over the loaded ownership
func (e *Engine) Ranker() *expertise.Scorer {
	var sizes complexity.SizeSource
	if e.RepoPath != "" {
		sizes = git.NewWorkTree(e.RepoPath)
	}
	estimator := complexity.NewHistoryEstimator(e.Builder, sizes, ComplexityPolicy(e.Config.Complexity))
	return expertise.NewScorer(e.Builder, estimator)
}

// Resolver builds the assignment resolver. Decisions are persisted to the
// store, which also supplies prior decisions for re-resolution.
func (e *Engine) Resolver(ctx context.Context) (*resolver.Resolver, error) {
	tracker, err := e.Tracker(ctx)
	if err != nil {
		return nil, err
	}
	ac := e.Config.Assignment
	return resolver.New(e.Ranker(), tracker, resolver.Options{
		EscalationTarget:    ac.EscalationTarget,
		AvailabilityTimeout: ac.AvailabilityTimeout,
		ReadRetries:         statusReadRetries,
		MaxBackups:          ac.MaxBackups,
		Sink:                e.Store,
		History:             e.Store,
		Known:               e.Builder,
		Instruments:         e.Instruments,
	}), nil
}

// Orchestrator builds the ingestion pipeline. The returned cleanup closes
// the checkpoint file and the graph connection.
func (e *Engine) Orchestrator(ctx context.Context) (*ingestion.Orchestrator, func(), error) {
	cps, err := checkpoint.Open(e.Config.Ingest.CheckpointPath)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { cps.Close() }

	opts := ingestion.Options{
		Workers:     e.Config.Ingest.Workers,
		Lookback:    time.Duration(e.Config.Ingest.LookbackDays) * 24 * time.Hour,
		Store:       e.Store,
		DLQ:         e.DLQ,
		Checkpoints: cps,
		Instruments: e.Instruments,
		Logger:      e.logger,
	}

	if e.Config.Graph.Enabled() {
		client, err := graph.NewClient(ctx, e.Config.Graph)
		if err != nil {
			e.logger.WithError(err).Warn("Graph export disabled")
		} else if err := client.EnsureSchema(ctx); err != nil {
			e.logger.WithError(err).Warn("Graph export disabled")
			client.Close(ctx)
		} else {
			opts.Graph = client
			cleanup = func() {
				cps.Close()
				client.Close(context.Background())
			}
		}
	}

	return ingestion.NewOrchestrator(e.Builder, opts), cleanup, nil
}
