package models

import "time"

// MenuItemRef is a read-only reference to a sellable menu item
type MenuItemRef struct {
	DbID     int     `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Image    string  `json:"image,omitempty"`
}

// CandidateItem is a scored recommendation produced by a generator
type CandidateItem struct {
	Item       MenuItemRef `json:"item"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason"`
	Strategy   string      `json:"strategy"`
}

// CustomerOrderPattern summarizes a customer's order history for one tenant
type CustomerOrderPattern struct {
	CustomerID          int      `json:"customer_id"`
	FrequentItemIDs     []int    `json:"frequent_item_ids"`
	PreferredCategories []string `json:"preferred_categories"`
	DietaryPreferences  []string `json:"dietary_preferences"`
	LastOrderItemIDs    []int    `json:"last_order_item_ids"`
}

// HasHistory reports whether the customer has any frequently ordered items
func (p CustomerOrderPattern) HasHistory() bool {
	return len(p.FrequentItemIDs) > 0
}

// InteractionAction is a step in the recommendation lifecycle
type InteractionAction string

const (
	ActionViewed    InteractionAction = "viewed"
	ActionClicked   InteractionAction = "clicked"
	ActionAdded     InteractionAction = "added"
	ActionDismissed InteractionAction = "dismissed"
)

// Valid reports whether a is one of the known lifecycle actions
func (a InteractionAction) Valid() bool {
	switch a {
	case ActionViewed, ActionClicked, ActionAdded, ActionDismissed:
		return true
	}
	return false
}

// RecommendationInteraction is an append-only log record
type RecommendationInteraction struct {
	ID                string            `json:"id"`
	CustomerID        int               `json:"customer_id"`
	TenantID          string            `json:"tenant_id"`
	RecommendedItemID int               `json:"recommended_item_id"`
	Action            InteractionAction `json:"action"`
	CreatedAt         time.Time         `json:"created_at"`
}

// RecommendationAnalytics is the summary of a tenant's interactions over a window.
// Rates are percentages.
type RecommendationAnalytics struct {
	TotalRecommendations int     `json:"total_recommendations"`
	Clicks               int     `json:"clicks"`
	Conversions          int     `json:"conversions"`
	ClickRate            float64 `json:"click_rate"`
	ConversionRate       float64 `json:"conversion_rate"`
}

// CoOccurrenceRow is one item found in the same orders as the anchor items
type CoOccurrenceRow struct {
	Item              MenuItemRef `json:"item"`
	CoOccurrenceCount int         `json:"co_occurrence_count"`
	TotalAnchorOrders int         `json:"total_anchor_orders"`
}

// FrequentItemRow is one of a customer's most ordered items
type FrequentItemRow struct {
	ItemID   int    `json:"item_id"`
	Category string `json:"category"`
	Times    int    `json:"times"`
}

// TrendingRow is an item with its recent order volume and rating
type TrendingRow struct {
	Item       MenuItemRef `json:"item"`
	OrderCount int         `json:"order_count"`
	AvgRating  float64     `json:"avg_rating"`
}
