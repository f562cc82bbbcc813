package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rohankatakam/bugrouter/internal/models"
	"github.com/rohankatakam/bugrouter/internal/ownership"
)

// StandardFormatter outputs the decision with its rationale (default)
type StandardFormatter struct{}

func (f *StandardFormatter) Format(d *models.AssignmentDecision, w io.Writer) error {
	fmt.Fprintf(w, "Bug %s\n", d.BugID)
	fmt.Fprintf(w, "Decision: %s\n", d.ID)
	if len(d.AffectedFiles) > 0 {
		fmt.Fprintf(w, "Affected files: %s\n", strings.Join(d.AffectedFiles, ", "))
	}

	if d.Escalated {
		fmt.Fprintf(w, "Escalated to %s: %s\n", d.EscalationTarget, d.EscalationReason)
	} else {
		fmt.Fprintf(w, "Assigned to %s (confidence %.2f)\n", d.Assignee(), d.Confidence)
	}
	if d.RoutingReason != "" {
		fmt.Fprintf(w, "Reason: %s\n", d.RoutingReason)
	}
	if d.Priority != "" || d.EstimatedComplexity != "" {
		fmt.Fprintf(w, "Priority: %s, estimated complexity: %s\n", orDash(d.Priority), orDash(d.EstimatedComplexity))
	}
	if len(d.BackupAssignees) > 0 {
		fmt.Fprintf(w, "Backups: %s\n", strings.Join(d.BackupAssignees, ", "))
	}
	if d.PriorDecisionID != "" {
		fmt.Fprintf(w, "Supersedes: %s\n", d.PriorDecisionID)
	}

	if len(d.Rationale) > 0 {
		fmt.Fprintf(w, "\nRationale:\n")
		for i, step := range d.Rationale {
			fmt.Fprintf(w, "%d. %s\n", i+1, formatStep(step))
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatStep(s models.RationaleStep) string {
	var sb strings.Builder
	sb.WriteString(s.State)
	if s.AuthorID != "" {
		fmt.Fprintf(&sb, " %s", s.AuthorID)
		if s.Score != 0 {
			fmt.Fprintf(&sb, " (score %.3f)", s.Score)
		}
	}
	fmt.Fprintf(&sb, ": %s", s.Outcome)
	if s.Reason != "" {
		fmt.Fprintf(&sb, " - %s", s.Reason)
	}
	return sb.String()
}

// WriteOwners prints an owner table for a file or module
func WriteOwners(w io.Writer, target string, owners []ownership.Owner) error {
	if len(owners) == 0 {
		_, err := fmt.Fprintf(w, "No known owners for %s\n", target)
		return err
	}
	fmt.Fprintf(w, "Owners of %s\n", target)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tAUTHOR\tWEIGHT\tLAST CONTRIBUTION")
	for i, o := range owners {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%s\n", i+1, o.AuthorID, o.Weight, o.LastContribution.Format(time.DateOnly))
	}
	return tw.Flush()
}

// WriteCandidates prints ranked expertise candidates
func WriteCandidates(w io.Writer, candidates []models.ExpertiseCandidate) error {
	if len(candidates) == 0 {
		_, err := fmt.Fprintln(w, "No candidates")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tAUTHOR\tSCORE\tTOP FILE")
	for _, c := range candidates {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%s\n", c.Rank, c.AuthorID, c.RawScore, c.FilePath)
	}
	return tw.Flush()
}
