package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Client wraps the Neo4j driver and implements Store.
type Client struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
}

// NewClient connects to Neo4j and verifies connectivity before returning.
func NewClient(ctx context.Context, uri, username, password, database string) (*Client, error) {
	if uri == "" || username == "" {
		return nil, fmt.Errorf("neo4j credentials missing: uri=%q user=%q", uri, username)
	}
	if database == "" {
		database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(uri,
		neo4j.BasicAuth(username, password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 50
			config.ConnectionAcquisitionTimeout = 60 * time.Second
			config.MaxConnectionLifetime = time.Hour
			config.SocketConnectTimeout = 5 * time.Second
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	// Fail fast on startup rather than on the first record.
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", uri, err)
	}

	logger := slog.Default().With("component", "neo4j")
	logger.Info("neo4j client connected", "uri", uri, "database", database)

	return &Client{driver: driver, logger: logger, database: database}, nil
}

// Write executes one write statement. Each call is one transaction: the
// store's merge semantics are the atomicity unit for a record upsert.
func (c *Client) Write(ctx context.Context, query string, params map[string]any) (*WriteResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database))
	if err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	out := &WriteResult{Records: collectRecords(result.Records)}
	if result.Summary != nil {
		counters := result.Summary.Counters()
		out.Counters = Counters{
			NodesCreated:         counters.NodesCreated(),
			NodesDeleted:         counters.NodesDeleted(),
			RelationshipsCreated: counters.RelationshipsCreated(),
			RelationshipsDeleted: counters.RelationshipsDeleted(),
		}
	}
	return out, nil
}

// Read executes a read statement, routed to readers in cluster deployments.
func (c *Client) Read(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	result, err := neo4j.ExecuteQuery(ctx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	return collectRecords(result.Records), nil
}

// HealthCheck verifies connectivity, for the status command.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	if err := c.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	c.logger.Info("neo4j client closed")
	return nil
}

func collectRecords(records []*neo4j.Record) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, Record(rec.AsMap()))
	}
	return out
}
