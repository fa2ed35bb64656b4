package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yishak-cs/menu-recommender/internal/models"
)

// PostgresInteractionStore is the append-only recommendation interaction log
type PostgresInteractionStore struct {
	pool *pgxpool.Pool
}

func NewPostgresInteractionStore(pool *pgxpool.Pool) *PostgresInteractionStore {
	return &PostgresInteractionStore{pool: pool}
}

// InsertInteraction appends a record. Rows are never updated.
func (s *PostgresInteractionStore) InsertInteraction(ctx context.Context, interaction models.RecommendationInteraction) error {
	query := `
		INSERT INTO recommendation_interactions
			(id, customer_id, tenant_id, recommended_item_id, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		interaction.ID,
		interaction.CustomerID,
		interaction.TenantID,
		interaction.RecommendedItemID,
		string(interaction.Action),
		interaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

// CountActions returns per-action record counts for the tenant since the given time
func (s *PostgresInteractionStore) CountActions(ctx context.Context, tenantID string, since time.Time) (map[models.InteractionAction]int, error) {
	query := `
		SELECT action, COUNT(*)
		FROM recommendation_interactions
		WHERE tenant_id = $1 AND created_at >= $2
		GROUP BY action
	`

	rows, err := s.pool.Query(ctx, query, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count interactions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.InteractionAction]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan interaction count: %w", err)
		}
		counts[models.InteractionAction(action)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interaction counts: %w", err)
	}

	return counts, nil
}

// Health pings the pool
func (s *PostgresInteractionStore) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
