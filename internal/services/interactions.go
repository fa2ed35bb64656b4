package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yishak-cs/menu-recommender/internal/metrics"
	"github.com/yishak-cs/menu-recommender/internal/models"
)

// InteractionTracker appends recommendation lifecycle events to the interaction log.
// It does not check item or customer ids against the menu or customer stores.
type InteractionTracker struct {
	store     InteractionStore
	publisher InteractionPublisher
	now       func() time.Time
	logger    zerolog.Logger
}

// NewInteractionTracker creates a tracker. publisher may be nil.
func NewInteractionTracker(store InteractionStore, publisher InteractionPublisher, logger zerolog.Logger) *InteractionTracker {
	return &InteractionTracker{
		store:     store,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("component", "interactions").Logger(),
	}
}

// RecordInteraction writes one immutable record with a server-assigned timestamp.
// Write failures are returned so the caller can retry.
func (t *InteractionTracker) RecordInteraction(ctx context.Context, customerID int, tenantID string, itemID int, action models.InteractionAction) (models.RecommendationInteraction, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return models.RecommendationInteraction{}, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	if !action.Valid() {
		return models.RecommendationInteraction{}, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, action)
	}

	interaction := models.RecommendationInteraction{
		ID:                uuid.NewString(),
		CustomerID:        customerID,
		TenantID:          tenantID,
		RecommendedItemID: itemID,
		Action:            action,
		CreatedAt:         t.now(),
	}

	if err := t.store.InsertInteraction(ctx, interaction); err != nil {
		metrics.InteractionWriteErrors.Inc()
		t.logger.Error().
			Err(err).
			Str("tenant_id", tenantID).
			Int("customer_id", customerID).
			Int("item_id", itemID).
			Str("action", string(action)).
			Msg("Failed to record interaction")
		return models.RecommendationInteraction{}, fmt.Errorf("failed to record interaction: %w", err)
	}
	metrics.InteractionsRecorded.WithLabelValues(string(action)).Inc()

	t.publish(ctx, interaction)

	return interaction, nil
}

// RecordImpressions records a viewed interaction for every shown item.
// It stops at the first failed write and reports how many were recorded.
func (t *InteractionTracker) RecordImpressions(ctx context.Context, customerID int, tenantID string, itemIDs []int) (int, error) {
	recorded := 0
	for _, itemID := range itemIDs {
		if _, err := t.RecordInteraction(ctx, customerID, tenantID, itemID, models.ActionViewed); err != nil {
			return recorded, err
		}
		recorded++
	}
	return recorded, nil
}

// publish is best effort: the durable copy is already in the store
func (t *InteractionTracker) publish(ctx context.Context, interaction models.RecommendationInteraction) {
	if t.publisher == nil {
		return
	}
	if err := t.publisher.PublishInteraction(ctx, interaction); err != nil {
		metrics.InteractionPublishErrors.Inc()
		t.logger.Warn().
			Err(err).
			Str("interaction_id", interaction.ID).
			Msg("Failed to publish interaction event")
	}
}
