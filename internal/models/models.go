package models

import (
	"time"
)

// ChangeEvent is one file touched by one commit
type ChangeEvent struct {
	FilePath     string    `json:"file_path" db:"file_path"`
	AuthorID     string    `json:"author_id" db:"author_id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	LinesAdded   int       `json:"lines_added" db:"lines_added"`
	LinesRemoved int       `json:"lines_removed" db:"lines_removed"`
	CommitID     string    `json:"commit_id" db:"commit_id"`
}

// Key identifies an event for duplicate detection
func (e ChangeEvent) Key() string {
	return e.CommitID + "\x00" + e.FilePath
}

// OwnerEntry is one author's decayed contribution to a file
type OwnerEntry struct {
	Weight           float64   `json:"weight"`
	LastContribution time.Time `json:"last_contribution"`
}

// FileOwnershipRecord holds per-author weights for a file. Weights are
// stored as of LastUpdated and decayed on read.
type FileOwnershipRecord struct {
	FilePath    string                `json:"file_path"`
	Owners      map[string]OwnerEntry `json:"owners"`
	LastUpdated time.Time             `json:"last_updated"`
	FirstSeen   time.Time             `json:"first_seen"`
	EventCount  int                   `json:"event_count"`
	NetLines    int                   `json:"net_lines"`
	SeenCommits []string              `json:"seen_commits"`
	Halted      bool                  `json:"halted"`
}

// ComplexityInputs are the file metadata a complexity score is derived from
type ComplexityInputs struct {
	SizeLines       float64 `json:"size_lines"`
	DistinctAuthors int     `json:"distinct_authors"`
	ChurnPerDay     float64 `json:"churn_per_day"`
}

// ComplexityScore weights ownership significance of a file, in [0, 3]
type ComplexityScore struct {
	FilePath   string           `json:"file_path"`
	Score      float64          `json:"score"`
	ComputedAt time.Time        `json:"computed_at"`
	Inputs     ComplexityInputs `json:"inputs"`
}

// ExpertiseCandidate is a ranked owner for a set of affected files.
// FilePath is the file contributing most to RawScore. PrimaryFiles are the
// files the author is top owner of; Modules are directories whose
// ownership stood in for files with no history.
type ExpertiseCandidate struct {
	AuthorID         string    `json:"author_id"`
	FilePath         string    `json:"file_path"`
	Files            []string  `json:"files"`
	PrimaryFiles     []string  `json:"primary_files,omitempty"`
	Modules          []string  `json:"modules,omitempty"`
	RawScore         float64   `json:"raw_score"`
	Rank             int       `json:"rank"`
	LastContribution time.Time `json:"last_contribution"`
}

// AvailabilityStatus is an engineer's current state
type AvailabilityStatus string

const (
	StatusActive     AvailabilityStatus = "active"
	StatusAway       AvailabilityStatus = "away"
	StatusOverloaded AvailabilityStatus = "overloaded"
)

// Availability is an engineer's workload snapshot
type Availability struct {
	AuthorID            string             `json:"author_id"`
	OpenAssignmentCount int                `json:"open_assignment_count"`
	Status              AvailabilityStatus `json:"status"`
	MaxCapacity         int                `json:"max_capacity"`
}

// DeriveStatus computes the status from the away flag and workload
func DeriveStatus(away bool, open, capacity int) AvailabilityStatus {
	switch {
	case away:
		return StatusAway
	case open >= capacity:
		return StatusOverloaded
	default:
		return StatusActive
	}
}

// Escalation reasons recorded on decisions
const (
	ReasonInsufficientContext     = "insufficient context"
	ReasonNoKnownOwner            = "no known owner"
	ReasonAllUnavailable          = "all domain experts unavailable"
	ReasonAvailabilityUnavailable = "availability service unavailable"
)

// RationaleStep records one step of a resolution
type RationaleStep struct {
	State    string  `json:"state" yaml:"state"`
	AuthorID string  `json:"author_id,omitempty" yaml:"author_id,omitempty"`
	Score    float64 `json:"score,omitempty" yaml:"score,omitempty"`
	Outcome  string  `json:"outcome" yaml:"outcome"`
	Reason   string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// AssignmentDecision is the immutable result of resolving a bug report
type AssignmentDecision struct {
	ID                  string          `json:"id" yaml:"id"`
	BugID               string          `json:"bug_id" yaml:"bug_id"`
	Priority            string          `json:"priority" yaml:"priority"`
	AffectedFiles       []string        `json:"affected_files" yaml:"affected_files"`
	PrimaryAssignee     *string         `json:"primary_assignee" yaml:"primary_assignee"`
	Escalated           bool            `json:"escalated" yaml:"escalated"`
	EscalationTarget    string          `json:"escalation_target,omitempty" yaml:"escalation_target,omitempty"`
	EscalationReason    string          `json:"escalation_reason,omitempty" yaml:"escalation_reason,omitempty"`
	RoutingReason       string          `json:"routing_reason" yaml:"routing_reason"`
	EstimatedComplexity string          `json:"estimated_complexity" yaml:"estimated_complexity"`
	Rationale           []RationaleStep `json:"rationale" yaml:"rationale"`
	BackupAssignees     []string        `json:"backup_assignees,omitempty" yaml:"backup_assignees,omitempty"`
	Confidence          float64         `json:"confidence" yaml:"confidence"`
	PriorDecisionID     string          `json:"prior_decision_id,omitempty" yaml:"prior_decision_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at" yaml:"created_at"`
}

// Assignee returns the primary assignee or "" when escalated
func (d *AssignmentDecision) Assignee() string {
	if d.PrimaryAssignee == nil {
		return ""
	}
	return *d.PrimaryAssignee
}

// FileStats are the history-derived inputs to complexity estimation
type FileStats struct {
	FilePath        string    `json:"file_path"`
	NetLines        int       `json:"net_lines"`
	DistinctAuthors int       `json:"distinct_authors"`
	EventCount      int       `json:"event_count"`
	FirstSeen       time.Time `json:"first_seen"`
	LastUpdated     time.Time `json:"last_updated"`
}
