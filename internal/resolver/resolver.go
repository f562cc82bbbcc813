// Package resolver turns a bug report into an assignment decision.
//
// Resolution is a fixed sequence of states:
//
//	Extracting -> Ranking -> Filtering -> Deciding -> Assigned | Escalated
//
// Every business failure ends in an escalated decision routed to the
// configured escalation target. Only a report without a bug id is rejected
// with an error. A cancelled context is honored at each state boundary and
// returns ctx.Err() with no reservation taken; once a reservation commits
// the decision is returned, and releasing it on abandonment is up to the
// caller.
package resolver

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rohankatakam/bugrouter/internal/availability"
	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/intake"
	"github.com/rohankatakam/bugrouter/internal/models"
	"github.com/rohankatakam/bugrouter/internal/telemetry"
)

// State names recorded in decision rationale
const (
	StateExtracting = "extracting"
	StateRanking    = "ranking"
	StateFiltering  = "filtering"
	StateDeciding   = "deciding"
	StateAssigned   = "assigned"
	StateEscalated  = "escalated"
)

// Ranker orders candidate owners for a set of files
type Ranker interface {
	Rank(files []string) []models.ExpertiseCandidate
}

// Sink receives every emitted decision
type Sink interface {
	SaveDecision(ctx context.Context, d *models.AssignmentDecision) error
}

// History looks up the previous decision for a bug. A nil decision with
// nil error means the bug has never been resolved.
type History interface {
	LatestDecision(ctx context.Context, bugID string) (*models.AssignmentDecision, error)
}

// KnownFiles lists tracked file paths
type KnownFiles interface {
	Files() []string
}

// Options configures a Resolver
type Options struct {
	EscalationTarget string
	// AvailabilityTimeout bounds each availability call
	AvailabilityTimeout time.Duration
	// ReadRetries is how many times a failed status lookup is retried.
	// Reservations are never retried.
	ReadRetries int
	MaxBackups  int

	Sink        Sink
	History     History
	Known       KnownFiles
	Instruments *telemetry.Instruments
	Logger      *slog.Logger
	Now         func() time.Time
	NewID       func() string
}

// Resolver produces assignment decisions
type Resolver struct {
	ranker  Ranker
	tracker availability.Tracker
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates a resolver
func New(ranker Ranker, tracker availability.Tracker, opts Options) *Resolver {
	if opts.EscalationTarget == "" {
		opts.EscalationTarget = "team-lead"
	}
	if opts.AvailabilityTimeout <= 0 {
		opts.AvailabilityTimeout = 2 * time.Second
	}
	if opts.ReadRetries < 0 {
		opts.ReadRetries = 0
	}
	if opts.MaxBackups < 0 {
		opts.MaxBackups = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		ranker:  ranker,
		tracker: tracker,
		opts:    opts,
		logger:  logger.With("component", "resolver"),
		tracer:  telemetry.Tracer("github.com/rohankatakam/bugrouter/resolver"),
	}
}

// resolution carries one resolution through its states
type resolution struct {
	decision *models.AssignmentDecision
	span     trace.Span
}

func (r *resolution) step(s models.RationaleStep) {
	r.decision.Rationale = append(r.decision.Rationale, s)
}

func (r *resolution) enter(state string) {
	r.span.AddEvent(state)
}

// Resolve runs the state machine for one report
func (r *Resolver) Resolve(ctx context.Context, report intake.BugReport) (*models.AssignmentDecision, error) {
	if report.BugID == "" {
		return nil, errors.InvalidRequestf("bug report has no bug id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "resolver.Resolve", trace.WithAttributes(attribute.String("bug_id", report.BugID)))
	defer span.End()

	run := &resolution{
		decision: &models.AssignmentDecision{
			ID:              r.opts.NewID(),
			BugID:           report.BugID,
			Priority:        intake.NormalizePriority(report.Priority),
			AffectedFiles:   []string{},
			Rationale:       []models.RationaleStep{},
			PriorDecisionID: r.priorDecisionID(ctx, report.BugID),
			CreatedAt:       r.opts.Now(),
		},
		span: span,
	}

	decision, err := r.resolve(ctx, run, report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	r.emit(ctx, decision, time.Since(start))
	return decision, nil
}

func (r *Resolver) resolve(ctx context.Context, run *resolution, report intake.BugReport) (*models.AssignmentDecision, error) {
	d := run.decision

	// Extracting
	run.enter(StateExtracting)
	files := intake.ExtractFiles(report)
	if r.opts.Known != nil && len(files) > 0 {
		files = intake.MatchKnown(files, r.opts.Known.Files())
	}
	d.AffectedFiles = files
	d.EstimatedComplexity = intake.EstimateComplexity(report, files)
	if len(files) == 0 {
		run.step(models.RationaleStep{State: StateExtracting, Outcome: "no files identified"})
		return r.escalate(run, models.ReasonInsufficientContext), nil
	}
	run.step(models.RationaleStep{State: StateExtracting, Outcome: fmt.Sprintf("%d affected files", len(files))})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Ranking
	run.enter(StateRanking)
	candidates := r.ranker.Rank(files)
	if len(candidates) == 0 {
		run.step(models.RationaleStep{State: StateRanking, Outcome: "no candidates"})
		return r.escalate(run, models.ReasonNoKnownOwner), nil
	}
	run.step(models.RationaleStep{State: StateRanking, Outcome: fmt.Sprintf("%d candidates", len(candidates))})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Filtering
	run.enter(StateFiltering)
	var available []models.ExpertiseCandidate
	for _, c := range candidates {
		st, err := r.statusOf(ctx, c.AuthorID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.logger.Warn("availability lookup failed", "bug_id", d.BugID, "author", c.AuthorID, "error", err)
			run.step(models.RationaleStep{State: StateFiltering, AuthorID: c.AuthorID, Score: c.RawScore, Outcome: "unknown", Reason: err.Error()})
			return r.escalate(run, models.ReasonAvailabilityUnavailable), nil
		}
		switch st.Status {
		case models.StatusAway, models.StatusOverloaded:
			run.step(models.RationaleStep{State: StateFiltering, AuthorID: c.AuthorID, Score: c.RawScore, Outcome: "skipped", Reason: string(st.Status)})
		default:
			run.step(models.RationaleStep{State: StateFiltering, AuthorID: c.AuthorID, Score: c.RawScore, Outcome: "available"})
			available = append(available, c)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Deciding
	run.enter(StateDeciding)
	for i, c := range available {
		err := r.reserve(ctx, c.AuthorID)
		if err == nil {
			run.step(models.RationaleStep{State: StateDeciding, AuthorID: c.AuthorID, Score: c.RawScore, Outcome: "reserved"})
			return r.assign(run, candidates, available, i), nil
		}
		if stderrors.Is(err, errors.ErrOverloaded) {
			run.step(models.RationaleStep{State: StateDeciding, AuthorID: c.AuthorID, Score: c.RawScore, Outcome: "skipped", Reason: string(models.StatusOverloaded)})
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Warn("reservation failed", "bug_id", d.BugID, "author", c.AuthorID, "error", err)
		run.step(models.RationaleStep{State: StateDeciding, AuthorID: c.AuthorID, Score: c.RawScore, Outcome: "unknown", Reason: err.Error()})
		return r.escalate(run, models.ReasonAvailabilityUnavailable), nil
	}

	return r.escalate(run, models.ReasonAllUnavailable), nil
}

// statusOf reads availability under a per-attempt timeout with a bounded
// number of retries
func (r *Resolver) statusOf(ctx context.Context, authorID string) (models.Availability, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = r.opts.AvailabilityTimeout

	var st models.Availability
	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.opts.AvailabilityTimeout)
		defer cancel()

		var err error
		st, err = r.tracker.StatusOf(callCtx, authorID)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.opts.ReadRetries)), ctx))
	return st, err
}

func (r *Resolver) reserve(ctx context.Context, authorID string) error {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.AvailabilityTimeout)
	defer cancel()

	err := r.tracker.Reserve(callCtx, authorID)
	outcome := "reserved"
	switch {
	case err == nil:
	case stderrors.Is(err, errors.ErrOverloaded):
		outcome = "overloaded"
	default:
		outcome = "error"
	}
	r.opts.Instruments.Reservation(ctx, outcome)
	return err
}

func (r *Resolver) assign(run *resolution, ranked, available []models.ExpertiseCandidate, idx int) *models.AssignmentDecision {
	d := run.decision
	winner := available[idx]
	assignee := winner.AuthorID

	d.PrimaryAssignee = &assignee
	d.Escalated = false
	d.Confidence = confidence(winner, ranked, d.AffectedFiles, intake.PriorityMultiplier(d.Priority))
	d.RoutingReason = routingReason(winner, len(d.AffectedFiles))

	for _, c := range available[idx+1:] {
		if len(d.BackupAssignees) >= r.opts.MaxBackups {
			break
		}
		d.BackupAssignees = append(d.BackupAssignees, c.AuthorID)
	}

	run.enter(StateAssigned)
	run.span.SetAttributes(attribute.String("assignee", assignee))
	return d
}

func (r *Resolver) escalate(run *resolution, reason string) *models.AssignmentDecision {
	d := run.decision
	d.PrimaryAssignee = nil
	d.Escalated = true
	d.EscalationTarget = r.opts.EscalationTarget
	d.EscalationReason = reason
	d.RoutingReason = fmt.Sprintf("No clear owner identified (%s). Escalating to %s.", reason, r.opts.EscalationTarget)
	d.Confidence = 0
	run.step(models.RationaleStep{State: StateEscalated, AuthorID: r.opts.EscalationTarget, Outcome: "escalated", Reason: reason})

	run.enter(StateEscalated)
	run.span.SetAttributes(attribute.String("escalation_reason", reason))
	return d
}

// confidence scales the winner's priority-weighted score into [0,1],
// boosted when the winner is the top-ranked owner and when they have
// touched every affected file
func confidence(winner models.ExpertiseCandidate, ranked []models.ExpertiseCandidate, files []string, multiplier float64) float64 {
	c := math.Min(winner.RawScore*multiplier/10, 1)
	if len(ranked) > 0 && ranked[0].AuthorID == winner.AuthorID {
		c = math.Min(c+0.2, 1)
	}
	if len(files) > 0 && len(winner.Files) == len(files) {
		c = math.Min(c+0.1, 1)
	}
	return math.Round(c*100) / 100
}

// highOwnershipScore marks a raw score worth calling out in the routing reason
const highOwnershipScore = 5

// routingReason explains an assignment in one line
func routingReason(winner models.ExpertiseCandidate, affected int) string {
	var reasons []string
	if n := len(winner.PrimaryFiles); n > 0 {
		reasons = append(reasons, fmt.Sprintf("Primary owner of %d of %d affected %s", n, affected, plural(affected, "file")))
	}
	if len(winner.Modules) > 0 {
		reasons = append(reasons, "Owns related code in "+strings.Join(winner.Modules, ", "))
	}
	if winner.RawScore > highOwnershipScore {
		reasons = append(reasons, "High code ownership score in affected areas")
	}
	if winner.Rank > 1 {
		reasons = append(reasons, fmt.Sprintf("Ranked #%d; higher-ranked owners unavailable", winner.Rank))
	}
	if len(reasons) == 0 {
		return "Best available match based on repository activity"
	}
	return strings.Join(reasons, "; ")
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func (r *Resolver) priorDecisionID(ctx context.Context, bugID string) string {
	if r.opts.History == nil {
		return ""
	}
	prior, err := r.opts.History.LatestDecision(ctx, bugID)
	if err != nil {
		r.logger.Warn("prior decision lookup failed", "bug_id", bugID, "error", err)
		return ""
	}
	if prior == nil {
		return ""
	}
	return prior.ID
}

// emit records the decision. Sink failures are logged; the caller still
// gets the decision.
func (r *Resolver) emit(ctx context.Context, d *models.AssignmentDecision, took time.Duration) {
	if r.opts.Sink != nil {
		if err := r.opts.Sink.SaveDecision(ctx, d); err != nil {
			r.logger.Error("failed to persist decision", "bug_id", d.BugID, "decision_id", d.ID, "error", err)
		}
	}
	r.opts.Instruments.Decision(ctx, d.Escalated, d.EscalationReason, took)

	if d.Escalated {
		r.logger.Info("bug escalated",
			"bug_id", d.BugID,
			"decision_id", d.ID,
			"target", d.EscalationTarget,
			"reason", d.EscalationReason)
		return
	}
	r.logger.Info("bug assigned",
		"bug_id", d.BugID,
		"decision_id", d.ID,
		"assignee", d.Assignee(),
		"confidence", d.Confidence,
		"backups", d.BackupAssignees)
}
