package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/yishak-cs/menu-recommender/internal/models"
)

// DefaultAnalyticsWindowDays is used when the caller gives no window
const DefaultAnalyticsWindowDays = 30

// AnalyticsService summarizes the interaction log. It keeps no counters of its own.
type AnalyticsService struct {
	store             InteractionStore
	defaultWindowDays int
	now               func() time.Time
	logger            zerolog.Logger
}

func NewAnalyticsService(store InteractionStore, defaultWindowDays int, logger zerolog.Logger) *AnalyticsService {
	if defaultWindowDays <= 0 {
		defaultWindowDays = DefaultAnalyticsWindowDays
	}
	return &AnalyticsService{
		store:             store,
		defaultWindowDays: defaultWindowDays,
		now:               func() time.Time { return time.Now().UTC() },
		logger:            logger.With().Str("component", "analytics").Logger(),
	}
}

// GetAnalytics computes impressions, clicks and conversions for the trailing windowDays.
func (s *AnalyticsService) GetAnalytics(ctx context.Context, tenantID string, windowDays int) (models.RecommendationAnalytics, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return models.RecommendationAnalytics{}, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	if windowDays <= 0 {
		windowDays = s.defaultWindowDays
	}

	since := s.now().AddDate(0, 0, -windowDays)
	counts, err := s.store.CountActions(ctx, tenantID, since)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Int("window_days", windowDays).Msg("Failed to count interactions")
		return models.RecommendationAnalytics{}, fmt.Errorf("failed to count interactions: %w", err)
	}

	return ComputeAnalytics(counts), nil
}

// ComputeAnalytics derives the summary from per-action counts.
// Impressions are the viewed records; with no impressions every rate is 0.
func ComputeAnalytics(counts map[models.InteractionAction]int) models.RecommendationAnalytics {
	analytics := models.RecommendationAnalytics{
		TotalRecommendations: counts[models.ActionViewed],
		Clicks:               counts[models.ActionClicked],
		Conversions:          counts[models.ActionAdded],
	}

	if analytics.TotalRecommendations > 0 {
		total := float64(analytics.TotalRecommendations)
		analytics.ClickRate = float64(analytics.Clicks) / total * 100
		analytics.ConversionRate = float64(analytics.Conversions) / total * 100
	}

	return analytics
}
