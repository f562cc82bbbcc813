package output

import (
	"fmt"
	"io"

	"github.com/rohankatakam/bugrouter/internal/models"
)

// QuietFormatter outputs a one-line summary (for scripts and hooks)
type QuietFormatter struct{}

func (f *QuietFormatter) Format(d *models.AssignmentDecision, w io.Writer) error {
	if d.Escalated {
		_, err := fmt.Fprintf(w, "%s -> %s (escalated: %s)\n", d.BugID, d.EscalationTarget, d.EscalationReason)
		return err
	}
	_, err := fmt.Fprintf(w, "%s -> %s (confidence %.2f)\n", d.BugID, d.Assignee(), d.Confidence)
	return err
}
