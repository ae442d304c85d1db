package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

var constraints = []string{
	"CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE",
	"CREATE CONSTRAINT product_id IF NOT EXISTS FOR (p:Product) REQUIRE p.id IS UNIQUE",
}

// Client wraps the Neo4j driver and the target database name.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

// New opens a pooled driver and verifies connectivity.
func New(ctx context.Context, cfg config.Neo4jConfig, logg *logger.Logger) (*Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4jconfig.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			}
			if cfg.ConnectionTimeout > 0 {
				c.SocketConnectTimeout = cfg.ConnectionTimeout
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "neo4j connection established")
	}
	return &Client{driver: driver, database: cfg.Database}, nil
}

// Read runs a query against a reader and returns every record.
func (c *Client) Read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	return c.execute(ctx, query, params, neo4j.ExecuteQueryWithReadersRouting())
}

// Write runs a query against the leader and returns every record.
func (c *Client) Write(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	return c.execute(ctx, query, params, neo4j.ExecuteQueryWithWritersRouting())
}

func (c *Client) execute(ctx context.Context, query string, params map[string]any, routing neo4j.ExecuteQueryConfigurationOption) ([]*neo4j.Record, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{routing}
	if c.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(c.database))
	}
	result, err := neo4j.ExecuteQuery(ctx, c.driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// EnsureConstraints creates the node uniqueness constraints.
func (c *Client) EnsureConstraints(ctx context.Context) error {
	for _, stmt := range constraints {
		if _, err := c.Write(ctx, stmt, nil); err != nil {
			return fmt.Errorf("apply constraint: %w", err)
		}
	}
	return nil
}

// Ping verifies the cluster is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Close releases pooled connections.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Classify maps a driver failure into the platform error taxonomy.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	case neo4j.IsConnectivityError(err), neo4j.IsRetryable(err):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
