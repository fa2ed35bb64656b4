package database

import (
	"context"
	"fmt"

	"github.com/yishak-cs/menu-recommender/internal/models"
)

// Graph model:
//
//	(:User {db_id, tenant_id, dietary_preferences})-[:HAS_MADE]->(:Order {db_id, tenant_id, created_at, rating})
//	(:Order)-[:HAS_ITEM {quantity}]->(:Item {db_id, tenant_id, name, category, price, image, available, dietary_tags})

const (
	frequentItemsLimit     = 10
	coOccurrenceLimit      = 20
	coOccurrenceFloorCount = 3
	trendingLimit          = 8
)

// cypherReader is the subset of Neo4jClient the aggregate queries need
type cypherReader interface {
	ExecuteRead(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error)
}

// Neo4jAggregates answers aggregate queries with Cypher against the order graph
type Neo4jAggregates struct {
	client cypherReader
}

// NewNeo4jAggregates creates the graph-backed aggregate layer
func NewNeo4jAggregates(client *Neo4jClient) *Neo4jAggregates {
	return &Neo4jAggregates{client: client}
}

// CoOccurrenceCandidates answers: "across all orders containing any anchor, what else was in them?"
func (a *Neo4jAggregates) CoOccurrenceCandidates(ctx context.Context, tenantID string, anchorIDs []int) ([]models.CoOccurrenceRow, error) {
	query := `
		MATCH (o:Order {tenant_id: $tenantId})-[:HAS_ITEM]->(anchor:Item)
		WHERE anchor.db_id IN $anchorIds
		WITH collect(DISTINCT o) AS anchorOrders
		WITH anchorOrders, size(anchorOrders) AS totalAnchorOrders
		UNWIND anchorOrders AS o
		MATCH (o)-[:HAS_ITEM]->(coItem:Item)
		WHERE NOT coItem.db_id IN $anchorIds AND coalesce(coItem.available, true)
		WITH coItem, totalAnchorOrders, count(DISTINCT o) AS coOccurrences
		WHERE coOccurrences >= $minCount
		RETURN coItem.db_id AS item_id,
			   coItem.name AS name,
			   coItem.category AS category,
			   coItem.price AS price,
			   coItem.image AS image,
			   coOccurrences,
			   totalAnchorOrders
		ORDER BY coOccurrences DESC, item_id
		LIMIT $limit
	`

	params := map[string]interface{}{
		"tenantId":  tenantID,
		"anchorIds": anchorIDs,
		"minCount":  coOccurrenceFloorCount,
		"limit":     coOccurrenceLimit,
	}

	results, err := a.client.ExecuteRead(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get co-occurrence candidates: %w", err)
	}

	rows := make([]models.CoOccurrenceRow, 0, len(results))
	for _, result := range results {
		rows = append(rows, models.CoOccurrenceRow{
			Item:              itemFromRecord(result),
			CoOccurrenceCount: asInt(result["coOccurrences"]),
			TotalAnchorOrders: asInt(result["totalAnchorOrders"]),
		})
	}

	return rows, nil
}

// CustomerFrequentItems answers: "what does this customer order most often here?"
func (a *Neo4jAggregates) CustomerFrequentItems(ctx context.Context, customerID int, tenantID string) ([]models.FrequentItemRow, error) {
	query := `
		MATCH (u:User {db_id: $userId})-[:HAS_MADE]->(o:Order {tenant_id: $tenantId})-[:HAS_ITEM]->(i:Item)
		WITH i, count(DISTINCT o) AS times
		RETURN i.db_id AS item_id,
			   i.category AS category,
			   times
		ORDER BY times DESC, item_id
		LIMIT $limit
	`

	params := map[string]interface{}{
		"userId":   customerID,
		"tenantId": tenantID,
		"limit":    frequentItemsLimit,
	}

	results, err := a.client.ExecuteRead(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get user frequent items: %w", err)
	}

	rows := make([]models.FrequentItemRow, 0, len(results))
	for _, result := range results {
		rows = append(rows, models.FrequentItemRow{
			ItemID:   asInt(result["item_id"]),
			Category: asString(result["category"]),
			Times:    asInt(result["times"]),
		})
	}

	return rows, nil
}

func (a *Neo4jAggregates) CustomerDietaryPreferences(ctx context.Context, customerID int, tenantID string) ([]string, error) {
	query := `
		MATCH (u:User {db_id: $userId, tenant_id: $tenantId})
		RETURN coalesce(u.dietary_preferences, []) AS tags
	`

	params := map[string]interface{}{
		"userId":   customerID,
		"tenantId": tenantID,
	}

	results, err := a.client.ExecuteRead(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get dietary preferences: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	return asStrings(results[0]["tags"]), nil
}

func (a *Neo4jAggregates) CustomerLastOrderItems(ctx context.Context, customerID int, tenantID string) ([]int, error) {
	query := `
		MATCH (u:User {db_id: $userId})-[:HAS_MADE]->(o:Order {tenant_id: $tenantId})
		WITH o ORDER BY o.created_at DESC LIMIT 1
		MATCH (o)-[:HAS_ITEM]->(i:Item)
		RETURN i.db_id AS item_id
		ORDER BY item_id
	`

	params := map[string]interface{}{
		"userId":   customerID,
		"tenantId": tenantID,
	}

	results, err := a.client.ExecuteRead(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get last order items: %w", err)
	}

	ids := make([]int, 0, len(results))
	for _, result := range results {
		ids = append(ids, asInt(result["item_id"]))
	}

	return ids, nil
}

func (a *Neo4jAggregates) CategoryItems(ctx context.Context, tenantID string, categories []string) ([]models.MenuItemRef, error) {
	query := `
		MATCH (i:Item {tenant_id: $tenantId})
		WHERE i.category IN $categories AND coalesce(i.available, true)
		RETURN i.db_id AS item_id,
			   i.name AS name,
			   i.category AS category,
			   i.price AS price,
			   i.image AS image
		ORDER BY item_id
	`

	params := map[string]interface{}{
		"tenantId":   tenantID,
		"categories": categories,
	}

	results, err := a.client.ExecuteRead(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get category items: %w", err)
	}

	return itemsFromRecords(results), nil
}

func (a *Neo4jAggregates) DietaryCompatibleItems(ctx context.Context, tenantID string, tags []string) ([]models.MenuItemRef, error) {
	query := `
		MATCH (i:Item {tenant_id: $tenantId})
		WHERE coalesce(i.available, true)
		  AND any(tag IN coalesce(i.dietary_tags, []) WHERE tag IN $tags)
		RETURN i.db_id AS item_id,
			   i.name AS name,
			   i.category AS category,
			   i.price AS price,
			   i.image AS image
		ORDER BY item_id
	`

	params := map[string]interface{}{
		"tenantId": tenantID,
		"tags":     tags,
	}

	results, err := a.client.ExecuteRead(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get dietary compatible items: %w", err)
	}

	return itemsFromRecords(results), nil
}

// TrendingItems gets items ordered at least minOrderCount times in the last windowDays
func (a *Neo4jAggregates) TrendingItems(ctx context.Context, tenantID string, windowDays, minOrderCount int) ([]models.TrendingRow, error) {
	query := `
		MATCH (o:Order {tenant_id: $tenantId})-[:HAS_ITEM]->(i:Item)
		WHERE o.created_at > datetime() - duration({days: $days})
		  AND coalesce(i.available, true)
		WITH i, count(DISTINCT o) AS recent_orders, avg(o.rating) AS avg_rating
		WHERE recent_orders >= $minOrderCount
		RETURN i.db_id AS item_id,
			   i.name AS name,
			   i.category AS category,
			   i.price AS price,
			   i.image AS image,
			   recent_orders,
			   coalesce(avg_rating, 0.0) AS avg_rating
		ORDER BY recent_orders DESC, avg_rating DESC
		LIMIT $limit
	`

	params := map[string]interface{}{
		"tenantId":      tenantID,
		"days":          windowDays,
		"minOrderCount": minOrderCount,
		"limit":         trendingLimit,
	}

	results, err := a.client.ExecuteRead(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get trending items: %w", err)
	}

	rows := make([]models.TrendingRow, 0, len(results))
	for _, result := range results {
		rows = append(rows, models.TrendingRow{
			Item:       itemFromRecord(result),
			OrderCount: asInt(result["recent_orders"]),
			AvgRating:  asFloat(result["avg_rating"]),
		})
	}

	return rows, nil
}

func itemsFromRecords(results []map[string]interface{}) []models.MenuItemRef {
	items := make([]models.MenuItemRef, 0, len(results))
	for _, result := range results {
		items = append(items, itemFromRecord(result))
	}
	return items
}

func itemFromRecord(result map[string]interface{}) models.MenuItemRef {
	return models.MenuItemRef{
		DbID:     asInt(result["item_id"]),
		Name:     asString(result["name"]),
		Category: asString(result["category"]),
		Price:    asFloat(result["price"]),
		Image:    asString(result["image"]),
	}
}

// Neo4j returns integers as int64 and floats as float64; properties may also be missing (nil).

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asStrings(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, elem := range list {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
