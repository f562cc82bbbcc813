package intake

import (
	"path"
	"regexp"
	"strings"
)

// Priority levels
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Estimated complexity levels
const (
	ComplexityLow      = "low"
	ComplexityMedium   = "medium"
	ComplexityHigh     = "high"
	ComplexityCritical = "critical"
)

var priorityMultipliers = map[string]float64{
	PriorityCritical: 1.5,
	PriorityHigh:     1.2,
	PriorityMedium:   1.0,
	PriorityLow:      0.8,
}

// errorType matches exception and error class names such as ValueError or
// NullPointerException
var errorType = regexp.MustCompile(`\b\w*(?:Error|Exception)\b`)

// ValidPriority reports whether p names a priority level
func ValidPriority(p string) bool {
	if strings.TrimSpace(p) == "" {
		return true
	}
	_, ok := priorityMultipliers[strings.ToLower(strings.TrimSpace(p))]
	return ok
}

// NormalizePriority lower-cases p. Empty and unknown values are medium.
func NormalizePriority(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if _, ok := priorityMultipliers[p]; ok {
		return p
	}
	return PriorityMedium
}

// PriorityMultiplier scales expertise scores by urgency
func PriorityMultiplier(p string) float64 {
	return priorityMultipliers[NormalizePriority(p)]
}

// ErrorTypes lists the distinct error class names mentioned in the report,
// in order of first appearance
func ErrorTypes(r BugReport) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, text := range []string{r.StackTrace, r.Title, r.Description} {
		for _, m := range errorType.FindAllString(text, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// EstimateComplexity grades a bug from the breadth of code it touches and
// the errors it reports, scored as 0.5*files + directories + 0.3*errorTypes.
func EstimateComplexity(r BugReport, files []string) string {
	dirs := make(map[string]struct{}, len(files))
	for _, f := range files {
		dirs[path.Dir(f)] = struct{}{}
	}
	score := float64(len(files))*0.5 + float64(len(dirs)) + float64(len(ErrorTypes(r)))*0.3

	switch {
	case score < 1:
		return ComplexityLow
	case score < 3:
		return ComplexityMedium
	case score < 5:
		return ComplexityHigh
	default:
		return ComplexityCritical
	}
}
