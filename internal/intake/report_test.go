package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFiles(t *testing.T) {
	tests := []struct {
		name   string
		report BugReport
		want   []string
	}{
		{
			name:   "explicit files win",
			report: BugReport{AffectedFiles: []string{"./b.go", "a.go", "a.go"}, Description: "see c.go"},
			want:   []string{"a.go", "b.go"},
		},
		{
			name: "paths from stack trace and text",
			report: BugReport{
				Title:       "panic in internal/api/handler.go",
				Description: "started after the change to pkg/util/strings.py",
				StackTrace:  "goroutine 1 [running]:\nmain.run()\n\tinternal/api/handler.go:42 +0x1d\n",
			},
			want: []string{"internal/api/handler.go", "pkg/util/strings.py"},
		},
		{
			name:   "nothing recognizable",
			report: BugReport{Title: "login is slow", Description: "users report timeouts"},
			want:   []string{},
		},
		{
			name:   "windows stack trace",
			report: BugReport{StackTrace: `Traceback: File "C:\srv\app\auth.py", line 12, in login`},
			want:   []string{"srv/app/auth.py"},
		},
		{
			name:   "longest extension wins",
			report: BugReport{Description: "crash in src/engine.cpp and include/engine.hpp"},
			want:   []string{"include/engine.hpp", "src/engine.cpp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFiles(tt.report))
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{" ", "/abs/x.go", "../escape.go", "dir\\win.go", "https://example.com/a.go", "a/./b/../c.go"})
	assert.Equal(t, []string{"a/c.go", "abs/x.go", "dir/win.go"}, got)
}

func TestMatchKnown(t *testing.T) {
	known := []string{"handler.go", "internal/api/handler.go", "main.go"}
	got := MatchKnown([]string{
		"home/ci/repo/internal/api/handler.go",
		"main.go",
		"vendor/lib/other.go",
	}, known)
	assert.Equal(t, []string{"internal/api/handler.go", "main.go", "vendor/lib/other.go"}, got)
}
