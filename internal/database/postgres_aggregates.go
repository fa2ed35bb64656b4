package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yishak-cs/menu-recommender/internal/models"
)

// Relational model (owned by the menu and ordering subsystems, read-only here):
//
//	menu_items(id, tenant_id, name, category, price, image_url, is_available, dietary_tags text[])
//	orders(id, tenant_id, customer_id, created_at, rating)
//	order_items(order_id, menu_item_id, quantity)
//	customer_dietary_preferences(customer_id, tenant_id, tag)

// PostgresAggregates answers aggregate queries with SQL against the ordering tables
type PostgresAggregates struct {
	pool *pgxpool.Pool
}

// NewPostgresAggregates creates the relational aggregate layer
func NewPostgresAggregates(pool *pgxpool.Pool) *PostgresAggregates {
	return &PostgresAggregates{pool: pool}
}

const itemColumns = `m.id, m.name, m.category, m.price::float8, COALESCE(m.image_url, '')`

func (a *PostgresAggregates) CoOccurrenceCandidates(ctx context.Context, tenantID string, anchorIDs []int) ([]models.CoOccurrenceRow, error) {
	query := `
		WITH anchor_orders AS (
			SELECT DISTINCT oi.order_id
			FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE o.tenant_id = $1 AND oi.menu_item_id = ANY($2::bigint[])
		)
		SELECT ` + itemColumns + `,
		       COUNT(DISTINCT oi.order_id) AS co_occurrences,
		       (SELECT COUNT(*) FROM anchor_orders) AS total_anchor_orders
		FROM order_items oi
		JOIN anchor_orders ao ON ao.order_id = oi.order_id
		JOIN menu_items m ON m.id = oi.menu_item_id
		WHERE m.tenant_id = $1
		  AND m.is_available
		  AND NOT (m.id = ANY($2::bigint[]))
		GROUP BY m.id, m.name, m.category, m.price, m.image_url
		HAVING COUNT(DISTINCT oi.order_id) >= $3
		ORDER BY co_occurrences DESC, m.id
		LIMIT $4
	`

	rows, err := a.pool.Query(ctx, query, tenantID, int64s(anchorIDs), coOccurrenceFloorCount, coOccurrenceLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get co-occurrence candidates: %w", err)
	}
	defer rows.Close()

	var result []models.CoOccurrenceRow
	for rows.Next() {
		var row models.CoOccurrenceRow
		if err := rows.Scan(
			&row.Item.DbID, &row.Item.Name, &row.Item.Category, &row.Item.Price, &row.Item.Image,
			&row.CoOccurrenceCount, &row.TotalAnchorOrders,
		); err != nil {
			return nil, fmt.Errorf("failed to scan co-occurrence row: %w", err)
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func (a *PostgresAggregates) CustomerFrequentItems(ctx context.Context, customerID int, tenantID string) ([]models.FrequentItemRow, error) {
	query := `
		SELECT m.id, m.category, COUNT(DISTINCT o.id) AS times
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN menu_items m ON m.id = oi.menu_item_id
		WHERE o.customer_id = $1 AND o.tenant_id = $2
		GROUP BY m.id, m.category
		ORDER BY times DESC, m.id
		LIMIT $3
	`

	rows, err := a.pool.Query(ctx, query, customerID, tenantID, frequentItemsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer frequent items: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.FrequentItemRow, error) {
		var r models.FrequentItemRow
		err := row.Scan(&r.ItemID, &r.Category, &r.Times)
		return r, err
	})
}

func (a *PostgresAggregates) CustomerDietaryPreferences(ctx context.Context, customerID int, tenantID string) ([]string, error) {
	query := `
		SELECT tag
		FROM customer_dietary_preferences
		WHERE customer_id = $1 AND tenant_id = $2
		ORDER BY tag
	`

	rows, err := a.pool.Query(ctx, query, customerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dietary preferences: %w", err)
	}

	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (a *PostgresAggregates) CustomerLastOrderItems(ctx context.Context, customerID int, tenantID string) ([]int, error) {
	query := `
		SELECT oi.menu_item_id
		FROM order_items oi
		WHERE oi.order_id = (
			SELECT o.id FROM orders o
			WHERE o.customer_id = $1 AND o.tenant_id = $2
			ORDER BY o.created_at DESC
			LIMIT 1
		)
		ORDER BY oi.menu_item_id
	`

	rows, err := a.pool.Query(ctx, query, customerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get last order items: %w", err)
	}

	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func (a *PostgresAggregates) CategoryItems(ctx context.Context, tenantID string, categories []string) ([]models.MenuItemRef, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM menu_items m
		WHERE m.tenant_id = $1 AND m.is_available AND m.category = ANY($2::text[])
		ORDER BY m.id
	`

	rows, err := a.pool.Query(ctx, query, tenantID, categories)
	if err != nil {
		return nil, fmt.Errorf("failed to get category items: %w", err)
	}

	return pgx.CollectRows(rows, scanMenuItem)
}

func (a *PostgresAggregates) DietaryCompatibleItems(ctx context.Context, tenantID string, tags []string) ([]models.MenuItemRef, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM menu_items m
		WHERE m.tenant_id = $1 AND m.is_available AND m.dietary_tags && $2::text[]
		ORDER BY m.id
	`

	rows, err := a.pool.Query(ctx, query, tenantID, tags)
	if err != nil {
		return nil, fmt.Errorf("failed to get dietary compatible items: %w", err)
	}

	return pgx.CollectRows(rows, scanMenuItem)
}

func (a *PostgresAggregates) TrendingItems(ctx context.Context, tenantID string, windowDays, minOrderCount int) ([]models.TrendingRow, error) {
	query := `
		SELECT ` + itemColumns + `,
		       COUNT(DISTINCT o.id) AS order_count,
		       COALESCE(AVG(o.rating), 0)::float8 AS avg_rating
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN menu_items m ON m.id = oi.menu_item_id
		WHERE o.tenant_id = $1
		  AND m.is_available
		  AND o.created_at >= NOW() - make_interval(days => $2)
		GROUP BY m.id, m.name, m.category, m.price, m.image_url
		HAVING COUNT(DISTINCT o.id) >= $3
		ORDER BY order_count DESC, avg_rating DESC
		LIMIT $4
	`

	rows, err := a.pool.Query(ctx, query, tenantID, windowDays, minOrderCount, trendingLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trending items: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TrendingRow, error) {
		var r models.TrendingRow
		err := row.Scan(&r.Item.DbID, &r.Item.Name, &r.Item.Category, &r.Item.Price, &r.Item.Image, &r.OrderCount, &r.AvgRating)
		return r, err
	})
}

func scanMenuItem(row pgx.CollectableRow) (models.MenuItemRef, error) {
	var item models.MenuItemRef
	err := row.Scan(&item.DbID, &item.Name, &item.Category, &item.Price, &item.Image)
	return item, err
}
