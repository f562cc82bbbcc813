package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
)

// Client wraps the GitHub API client with rate limiting and concurrency
type Client struct {
	client      *github.Client
	rateLimiter *rate.Limiter
	maxWorkers  int
	logger      *slog.Logger
}

// NewClient creates a new GitHub client with rate limiting. An empty token
// makes unauthenticated requests.
func NewClient(token string, rateLimit int) *Client {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if rateLimit <= 0 {
		rateLimit = 10
	}

	return &Client{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		maxWorkers:  8, // Concurrent commit detail fetches
		logger:      slog.Default().With("component", "github"),
	}
}

// WithBaseURL points the client at another API root (GitHub Enterprise, tests)
func (c *Client) WithBaseURL(raw string) (*Client, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c.client.BaseURL = u
	return c, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// ListCommitSHAs lists commit SHAs on the default branch since the given time
func (c *Client) ListCommitSHAs(ctx context.Context, owner, name string, since time.Time) ([]string, error) {
	opts := &github.CommitsListOptions{
		Since: since,
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}

	var shas []string
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		commits, resp, err := c.client.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			return nil, errors.ExternalErrorf(err, "fetch commits of %s/%s", owner, name)
		}
		for _, commit := range commits {
			shas = append(shas, commit.GetSHA())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return shas, nil
}

// FetchCommitEvents fetches one commit's file changes as change events.
// Binary files (no patch, no line changes) are skipped.
func (c *Client) FetchCommitEvents(ctx context.Context, owner, name, sha string) ([]models.ChangeEvent, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	commit, _, err := c.client.Repositories.GetCommit(ctx, owner, name, sha, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, errors.ExternalErrorf(err, "fetch commit %s", sha)
	}

	author := strings.ToLower(commit.GetCommit().GetAuthor().GetEmail())
	if author == "" {
		author = commit.GetAuthor().GetLogin()
	}
	ts := commit.GetCommit().GetAuthor().GetDate().Time.UTC()

	events := make([]models.ChangeEvent, 0, len(commit.Files))
	for _, f := range commit.Files {
		if f.Patch == nil && f.GetChanges() == 0 {
			continue
		}
		events = append(events, models.ChangeEvent{
			FilePath:     f.GetFilename(),
			AuthorID:     author,
			Timestamp:    ts,
			LinesAdded:   f.GetAdditions(),
			LinesRemoved: f.GetDeletions(),
			CommitID:     commit.GetSHA(),
		})
	}
	return events, nil
}

// FetchChangeEvents lists commits since the given time and fetches their
// file changes concurrently. Events are returned oldest first.
func (c *Client) FetchChangeEvents(ctx context.Context, owner, name string, since time.Time) ([]models.ChangeEvent, error) {
	shas, err := c.ListCommitSHAs(ctx, owner, name, since)
	if err != nil {
		return nil, err
	}
	c.logger.Info("fetching commit details", "repo", owner+"/"+name, "commits", len(shas))

	perCommit := make([][]models.ChangeEvent, len(shas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)
	for i, sha := range shas {
		i, sha := i, sha
		g.Go(func() error {
			events, err := c.FetchCommitEvents(gctx, owner, name, sha)
			if err != nil {
				return err
			}
			perCommit[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var events []models.ChangeEvent
	for _, batch := range perCommit {
		events = append(events, batch...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// Source adapts a repository to the ingestion pipeline
type Source struct {
	client *Client
	owner  string
	name   string
}

// NewSource creates an event source for owner/name
func NewSource(client *Client, owner, name string) *Source {
	return &Source{client: client, owner: owner, name: name}
}

// ChangeEvents implements ingestion.Source
func (s *Source) ChangeEvents(ctx context.Context, since time.Time) ([]models.ChangeEvent, error) {
	return s.client.FetchChangeEvents(ctx, s.owner, s.name, since)
}
