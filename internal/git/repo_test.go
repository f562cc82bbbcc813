package git

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"https://github.com/acme/widgets.git", "acme", "widgets", false},
		{"http://github.com/acme/widgets", "acme", "widgets", false},
		{"git@github.com:acme/widgets.git", "acme", "widgets", false},
		{"git://github.com/acme/widgets", "acme", "widgets", false},
		{"/local/path/only", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestWorkTreeSizeOf(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "a.go"), []byte("one\ntwo\nthree"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.go"), nil, 0644))

	w := NewWorkTree(dir)

	n, ok := w.SizeOf("pkg/a.go")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	n, ok = w.SizeOf("empty.go")
	assert.True(t, ok)
	assert.Equal(t, 0, n)

	_, ok = w.SizeOf("deleted.go")
	assert.False(t, ok)
}
