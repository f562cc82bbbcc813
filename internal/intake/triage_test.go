package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityLevels(t *testing.T) {
	assert.True(t, ValidPriority(""))
	assert.True(t, ValidPriority("High"))
	assert.False(t, ValidPriority("urgent"))

	assert.Equal(t, PriorityCritical, NormalizePriority(" CRITICAL "))
	assert.Equal(t, PriorityMedium, NormalizePriority(""))
	assert.Equal(t, PriorityMedium, NormalizePriority("urgent"))

	assert.Equal(t, 1.5, PriorityMultiplier("critical"))
	assert.Equal(t, 1.2, PriorityMultiplier("high"))
	assert.Equal(t, 1.0, PriorityMultiplier(""))
	assert.Equal(t, 0.8, PriorityMultiplier("low"))
}

func TestErrorTypes(t *testing.T) {
	r := BugReport{
		Title:       "ValueError on login",
		StackTrace:  "KeyError: 'user'\nraise ValueError(msg)",
		Description: "Java side throws NullPointerException too",
	}
	assert.Equal(t, []string{"KeyError", "ValueError", "NullPointerException"}, ErrorTypes(r))
	assert.Empty(t, ErrorTypes(BugReport{Title: "page is slow"}))
}

func TestEstimateComplexity(t *testing.T) {
	tests := []struct {
		name   string
		report BugReport
		files  []string
		want   string
	}{
		{"nothing known", BugReport{}, nil, ComplexityLow},
		{"errors only", BugReport{Title: "KeyError and ValueError and TypeError"}, nil, ComplexityLow},
		{"one file", BugReport{}, []string{"src/auth/login.py"}, ComplexityMedium},
		{"one directory", BugReport{Title: "ValueError"}, []string{"src/auth/a.py", "src/auth/b.py"}, ComplexityMedium},
		{"two directories", BugReport{}, []string{"src/auth/a.py", "src/db/b.py"}, ComplexityHigh},
		{"spread out", BugReport{}, []string{"a/x.go", "b/x.go", "c/x.go", "d/x.go"}, ComplexityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateComplexity(tt.report, tt.files))
		})
	}
}
