package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yishak-cs/menu-recommender/internal/logging"
)

// sqlExecer is satisfied by *pgxpool.Pool
type sqlExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// cypherWriter is satisfied by *Neo4jClient
type cypherWriter interface {
	ExecuteWrite(ctx context.Context, query string, params map[string]interface{}) error
}

type migrationStep struct {
	name string
	fn   func(context.Context) error
}

// Migrator creates the schema this service owns: the interaction log and,
// when the graph backend is enabled, the lookup indexes the aggregate queries rely on.
// Menu, order and customer data are owned elsewhere and are never written here.
type Migrator struct {
	pg    sqlExecer
	graph cypherWriter
}

// NewMigrator creates a migrator. graph may be nil when Neo4j is not configured.
func NewMigrator(pg sqlExecer, graph cypherWriter) *Migrator {
	return &Migrator{pg: pg, graph: graph}
}

// Run applies every step in order. All statements are idempotent.
func (m *Migrator) Run(ctx context.Context) error {
	logger := logging.Component("migrations")
	logger.Info().Msg("Starting schema migrations")

	steps := []migrationStep{
		{"interaction_log", m.createInteractionLog},
		{"interaction_log_indexes", m.createInteractionIndexes},
	}
	if m.graph != nil {
		steps = append(steps, migrationStep{"graph_indexes", m.createGraphIndexes})
	}

	for _, step := range steps {
		logger.Debug().Str("step", step.name).Msg("Applying migration")
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("failed to apply %s: %w", step.name, err)
		}
		logger.Info().Str("step", step.name).Msg("Migration applied")
	}

	logger.Info().Int("steps", len(steps)).Msg("Schema migrations completed")
	return nil
}

func (m *Migrator) createInteractionLog(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS recommendation_interactions (
			id                  UUID PRIMARY KEY,
			customer_id         BIGINT NOT NULL,
			tenant_id           TEXT NOT NULL,
			recommended_item_id BIGINT NOT NULL,
			action              TEXT NOT NULL CHECK (action IN ('viewed', 'clicked', 'added', 'dismissed')),
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`

	_, err := m.pg.Exec(ctx, query)
	return err
}

func (m *Migrator) createInteractionIndexes(ctx context.Context) error {
	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_recommendation_interactions_tenant_created
			ON recommendation_interactions (tenant_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendation_interactions_customer
			ON recommendation_interactions (tenant_id, customer_id)`,
	}

	for _, query := range queries {
		if _, err := m.pg.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) createGraphIndexes(ctx context.Context) error {
	queries := []string{
		`CREATE INDEX item_tenant_db_id IF NOT EXISTS FOR (i:Item) ON (i.tenant_id, i.db_id)`,
		`CREATE INDEX item_tenant_category IF NOT EXISTS FOR (i:Item) ON (i.tenant_id, i.category)`,
		`CREATE INDEX order_tenant_created IF NOT EXISTS FOR (o:Order) ON (o.tenant_id, o.created_at)`,
		`CREATE INDEX user_db_id IF NOT EXISTS FOR (u:User) ON (u.db_id)`,
	}

	for _, query := range queries {
		if err := m.graph.ExecuteWrite(ctx, query, nil); err != nil {
			return err
		}
	}
	return nil
}
