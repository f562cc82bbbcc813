package github

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/bugrouter/internal/errors"
)

func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var detailCalls atomic.Int64
	mux := http.NewServeMux()

	mux.HandleFunc("/repos/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"sha":"c1"}]`)
			return
		}
		next := fmt.Sprintf(`<%s/repos/acme/widgets/commits?page=2>; rel="next"`, "http://"+r.Host)
		w.Header().Set("Link", next)
		fmt.Fprint(w, `[{"sha":"c2"}]`)
	})

	mux.HandleFunc("/repos/acme/widgets/commits/c1", func(w http.ResponseWriter, r *http.Request) {
		detailCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"sha": "c1",
			"commit": {"author": {"email": "Alice@Example.com", "date": "2025-01-01T10:00:00Z"}},
			"files": [
				{"filename": "svc/api.go", "additions": 30, "deletions": 2, "changes": 32, "patch": "@@"},
				{"filename": "logo.png", "additions": 0, "deletions": 0, "changes": 0}
			]
		}`)
	})

	mux.HandleFunc("/repos/acme/widgets/commits/c2", func(w http.ResponseWriter, r *http.Request) {
		detailCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"sha": "c2",
			"author": {"login": "bobby"},
			"commit": {"author": {"email": "", "date": "2025-01-03T10:00:00Z"}},
			"files": [
				{"filename": "svc/api.go", "additions": 0, "deletions": 12, "changes": 12, "patch": "@@"}
			]
		}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &detailCalls
}

func TestFetchChangeEvents(t *testing.T) {
	srv, calls := newTestServer(t)
	client, err := NewClient("", 1000).WithBaseURL(srv.URL)
	require.NoError(t, err)

	events, err := client.FetchChangeEvents(context.Background(), "acme", "widgets", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), calls.Load())

	assert.Equal(t, "c1", events[0].CommitID)
	assert.Equal(t, "alice@example.com", events[0].AuthorID)
	assert.Equal(t, "svc/api.go", events[0].FilePath)
	assert.Equal(t, 30, events[0].LinesAdded)

	assert.Equal(t, "c2", events[1].CommitID)
	assert.Equal(t, "bobby", events[1].AuthorID)
	assert.Equal(t, 12, events[1].LinesRemoved)
	assert.True(t, events[0].Timestamp.Before(events[1].Timestamp))
}

func TestFetchChangeEventsPropagatesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient("token", 1000).WithBaseURL(srv.URL)
	require.NoError(t, err)

	_, err = client.FetchChangeEvents(context.Background(), "acme", "widgets", time.Time{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Type: errors.ErrorTypeExternal}))
	assert.Equal(t, errors.SeverityMedium, errors.GetSeverity(err))
	assert.Contains(t, err.Error(), "acme/widgets")
}

func TestSourceUsesClient(t *testing.T) {
	srv, _ := newTestServer(t)
	client, err := NewClient("", 1000).WithBaseURL(srv.URL)
	require.NoError(t, err)

	events, err := NewSource(client, "acme", "widgets").ChangeEvents(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
