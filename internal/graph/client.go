package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rohankatakam/bugrouter/internal/config"
)

// Client wraps the Neo4j driver with the ownership graph queries
type Client struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
	monitor  *TimeoutMonitor
}

// NewClient connects using the graph section of the configuration
func NewClient(ctx context.Context, cfg config.GraphConfig) (*Client, error) {
	if cfg.URI == "" || cfg.User == "" || cfg.Password == "" {
		return nil, fmt.Errorf("neo4j credentials missing: uri=%s, user=%s", cfg.URI, cfg.User)
	}
	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = 20
			c.ConnectionAcquisitionTimeout = 30 * time.Second
			c.MaxConnectionLifetime = time.Hour
			c.SocketConnectTimeout = 5 * time.Second
			c.SocketKeepalive = true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	// fail fast on startup
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", cfg.URI, err)
	}

	logger := slog.Default().With("component", "neo4j")
	logger.Info("neo4j client connected", "uri", cfg.URI, "database", database)

	return &Client{
		driver:   driver,
		logger:   logger,
		database: database,
		monitor:  NewTimeoutMonitor(nil),
	}, nil
}

// Close closes the Neo4j driver connection
func (c *Client) Close(ctx context.Context) error {
	if err := c.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	c.logger.Info("neo4j client closed")
	return nil
}

// HealthCheck verifies Neo4j connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := withOperationTimeout(ctx, "health_check")
	defer cancel()
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j health check failed: %w", err)
	}
	return nil
}

// EnsureSchema creates the uniqueness constraints the sync relies on
func (c *Client) EnsureSchema(ctx context.Context) error {
	ctx, cancel := withOperationTimeout(ctx, "index_creation")
	defer cancel()

	statements := []string{
		`CREATE CONSTRAINT developer_id IF NOT EXISTS FOR (d:Developer) REQUIRE d.id IS UNIQUE`,
		`CREATE CONSTRAINT file_key IF NOT EXISTS FOR (f:File) REQUIRE (f.repo_id, f.path) IS UNIQUE`,
	}
	for _, stmt := range statements {
		if _, err := neo4j.ExecuteQuery(ctx, c.driver, stmt, nil,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(c.database)); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// read runs a query with reader routing under the operation's timeout
func (c *Client) read(ctx context.Context, operation, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return c.execute(ctx, operation, query, params, neo4j.ExecuteQueryWithReadersRouting())
}

// write runs a query with writer routing under the operation's timeout
func (c *Client) write(ctx context.Context, operation, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return c.execute(ctx, operation, query, params, neo4j.ExecuteQueryWithWritersRouting())
}

func (c *Client) execute(ctx context.Context, operation, query string, params map[string]any, routing neo4j.ExecuteQueryConfigurationOption) (*neo4j.EagerResult, error) {
	var result *neo4j.EagerResult
	err := c.monitor.Observe(ctx, operation, func(ctx context.Context) error {
		var err error
		result, err = neo4j.ExecuteQuery(ctx, c.driver, query, params,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(c.database),
			routing)
		return err
	})
	return result, err
}
