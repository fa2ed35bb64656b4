package database

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/yishak-cs/menu-recommender/internal/logging"
)

// Neo4jClient wraps the Neo4j driver with application-specific methods
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
}

// Config holds the Neo4j connection configuration
type Config struct {
	URI      string
	Username string
	Password string
	Database string // typically "neo4j" for AuraDB
}

// NewNeo4jClient creates a new Neo4j client connection
func NewNeo4jClient(config Config) (*Neo4jClient, error) {
	driver, err := neo4j.NewDriverWithContext(config.URI, neo4j.BasicAuth(config.Username, config.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	logging.Info().Str("uri", config.URI).Str("database", config.Database).Msg("Successfully connected to Neo4j")
	return &Neo4jClient{
		driver:   driver,
		database: config.Database,
	}, nil
}

// Close closes the Neo4j driver connection
func (c *Neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// ExecuteWrite executes a write query (CREATE, MERGE, DELETE, etc.)
func (c *Neo4jClient) ExecuteWrite(ctx context.Context, query string, params map[string]interface{}) error {
	_, err := neo4j.ExecuteQuery(
		ctx,
		c.driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithWritersRouting())

	if err != nil {
		return fmt.Errorf("failed to execute write query: %w", err)
	}

	return nil
}

// ExecuteRead executes a read query and returns each record as a map keyed by column
func (c *Neo4jClient) ExecuteRead(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		c.driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithReadersRouting())

	if err != nil {
		return nil, fmt.Errorf("failed to execute read query: %w", err)
	}

	results := make([]map[string]interface{}, 0, len(result.Records))
	for _, record := range result.Records {
		recordMap := make(map[string]interface{}, len(record.Keys))
		for i, key := range record.Keys {
			recordMap[key] = record.Values[i]
		}
		results = append(results, recordMap)
	}

	return results, nil
}

// Health checks the database connection health
func (c *Neo4jClient) Health(ctx context.Context) error {
	_, err := neo4j.ExecuteQuery(
		ctx,
		c.driver,
		"RETURN 1",
		nil,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithReadersRouting())

	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}
